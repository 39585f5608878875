package models

import "time"

// TeacherCheckIn records a teacher's presence on one date. One row per
// teacher per date; check-out closes the open row.
type TeacherCheckIn struct {
	ID         string     `db:"id" json:"id"`
	PersonID   string     `db:"person_id" json:"person_id"`
	Program    Program    `db:"program" json:"program"`
	Date       time.Time  `db:"date" json:"date"`
	CheckInAt  time.Time  `db:"check_in_at" json:"check_in_at"`
	CheckOutAt *time.Time `db:"check_out_at" json:"check_out_at,omitempty"`
	Notes      *string    `db:"notes" json:"notes,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// TeacherCheckInDetail enriches a check-in with the teacher's name.
type TeacherCheckInDetail struct {
	TeacherCheckIn
	PersonName string `db:"person_name" json:"person_name"`
}

// CheckInFilter provides filters for listing check-ins.
type CheckInFilter struct {
	PersonID  string
	Program   Program
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
