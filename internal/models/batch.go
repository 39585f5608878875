package models

import "time"

// Batch is a Mahad cohort that enrollments can reference. Membership is
// carried by the enrollment rows, not the batch itself.
type Batch struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Schedule      string    `db:"schedule" json:"schedule"`
	LeadTeacherID *string   `db:"lead_teacher_id" json:"lead_teacher_id,omitempty"`
	Active        bool      `db:"active" json:"active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// BatchDetail enriches Batch with its active enrollment count.
type BatchDetail struct {
	Batch
	EnrolledCount int `db:"enrolled_count" json:"enrolled_count"`
}

// BatchFilter provides filters for listing batches.
type BatchFilter struct {
	Search    string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
