package models

import "time"

// AttendanceStatus enumerates valid daily attendance markings.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "PRESENT"
	AttendanceStatusAbsent  AttendanceStatus = "ABSENT"
	AttendanceStatusLate    AttendanceStatus = "LATE"
	AttendanceStatusExcused AttendanceStatus = "EXCUSED"
)

// Valid reports whether the status value is known.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusLate, AttendanceStatusExcused:
		return true
	}
	return false
}

// AttendanceRecord marks one enrollment's attendance on one date.
// Unique on (enrollment_id, date); repeat marks upsert.
type AttendanceRecord struct {
	ID           string           `db:"id" json:"id"`
	EnrollmentID string           `db:"enrollment_id" json:"enrollment_id"`
	Date         time.Time        `db:"date" json:"date"`
	Status       AttendanceStatus `db:"status" json:"status"`
	Notes        *string          `db:"notes" json:"notes,omitempty"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

// AttendanceDetail enriches a record with person and batch context.
type AttendanceDetail struct {
	AttendanceRecord
	PersonName string  `db:"person_name" json:"person_name"`
	Program    Program `db:"program" json:"program"`
	BatchName  *string `db:"batch_name" json:"batch_name,omitempty"`
}

// AttendanceFilter provides filters for listing attendance.
type AttendanceFilter struct {
	EnrollmentID string
	BatchID      string
	Program      Program
	Status       *AttendanceStatus
	DateFrom     *time.Time
	DateTo       *time.Time
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// AttendanceSummary aggregates one enrollment's attendance counts.
type AttendanceSummary struct {
	EnrollmentID string  `db:"enrollment_id" json:"enrollment_id"`
	Present      int     `db:"present" json:"present"`
	Absent       int     `db:"absent" json:"absent"`
	Late         int     `db:"late" json:"late"`
	Excused      int     `db:"excused" json:"excused"`
	Total        int     `db:"total" json:"total"`
	Rate         float64 `json:"rate"`
}
