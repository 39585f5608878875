package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusRegistered EnrollmentStatus = "REGISTERED"
	EnrollmentStatusEnrolled   EnrollmentStatus = "ENROLLED"
	EnrollmentStatusOnHold     EnrollmentStatus = "ON_HOLD"
	EnrollmentStatusWithdrawn  EnrollmentStatus = "WITHDRAWN"
	EnrollmentStatusCompleted  EnrollmentStatus = "COMPLETED"
)

// Valid reports whether the status value is known.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusRegistered, EnrollmentStatusEnrolled, EnrollmentStatusOnHold,
		EnrollmentStatusWithdrawn, EnrollmentStatusCompleted:
		return true
	}
	return false
}

var enrollmentTransitions = map[EnrollmentStatus][]EnrollmentStatus{
	EnrollmentStatusRegistered: {EnrollmentStatusEnrolled, EnrollmentStatusWithdrawn},
	EnrollmentStatusEnrolled:   {EnrollmentStatusOnHold, EnrollmentStatusWithdrawn, EnrollmentStatusCompleted},
	EnrollmentStatusOnHold:     {EnrollmentStatusEnrolled, EnrollmentStatusWithdrawn},
	EnrollmentStatusWithdrawn:  {},
	EnrollmentStatusCompleted:  {},
}

// CanTransitionTo reports whether moving from s to next is allowed.
// Withdrawn and completed are terminal.
func (s EnrollmentStatus) CanTransitionTo(next EnrollmentStatus) bool {
	for _, allowed := range enrollmentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s EnrollmentStatus) Terminal() bool {
	return len(enrollmentTransitions[s]) == 0
}

// Enrollment is a time-bounded status record linking a program profile
// to an optional batch. Only Mahad enrollments may carry a batch.
type Enrollment struct {
	ID               string           `db:"id" json:"id"`
	ProgramProfileID string           `db:"program_profile_id" json:"program_profile_id"`
	BatchID          *string          `db:"batch_id" json:"batch_id,omitempty"`
	Status           EnrollmentStatus `db:"status" json:"status"`
	StartDate        time.Time        `db:"start_date" json:"start_date"`
	EndDate          *time.Time       `db:"end_date" json:"end_date,omitempty"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
}

// Open reports whether the enrollment is open-ended and not withdrawn.
func (e Enrollment) Open() bool {
	return e.EndDate == nil && e.Status != EnrollmentStatusWithdrawn
}

// EnrollmentDetail enriches Enrollment with person and batch info.
type EnrollmentDetail struct {
	Enrollment
	PersonName string  `db:"person_name" json:"person_name"`
	Program    Program `db:"program" json:"program"`
	BatchName  *string `db:"batch_name" json:"batch_name,omitempty"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	ProgramProfileID string
	BatchID          string
	Program          Program
	Status           EnrollmentStatus
	Page             int
	PageSize         int
	SortBy           string
	SortOrder        string
}
