package models

import "time"

// Person is the canonical identity record shared across roles. A person
// exists independently of being a student, teacher or parent.
type Person struct {
	ID          string     `db:"id" json:"id"`
	FullName    string     `db:"full_name" json:"full_name"`
	DateOfBirth *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Gender      string     `db:"gender" json:"gender"`
	Notes       *string    `db:"notes" json:"notes,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// PersonFilter encapsulates allowed search parameters for listing people.
type PersonFilter struct {
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// PersonRole names a role a person can hold in the organisation.
type PersonRole string

const (
	PersonRoleStudent PersonRole = "STUDENT"
	PersonRoleTeacher PersonRole = "TEACHER"
	PersonRoleParent  PersonRole = "PARENT"
)

// PersonMatch is a lookup result: a person together with every role
// they hold and the programs they participate in.
type PersonMatch struct {
	Person        Person         `json:"person"`
	Roles         []PersonRole   `json:"roles"`
	Programs      []Program      `json:"programs"`
	ContactPoints []ContactPoint `json:"contact_points,omitempty"`
}
