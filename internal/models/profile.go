package models

import "time"

// ProfileStatus represents the lifecycle of a program profile.
type ProfileStatus string

const (
	ProfileStatusActive    ProfileStatus = "ACTIVE"
	ProfileStatusWithdrawn ProfileStatus = "WITHDRAWN"
)

// ProgramProfile is a person's participation record within one program.
// A person may hold profiles in both programs independently.
type ProgramProfile struct {
	ID                string        `db:"id" json:"id"`
	PersonID          string        `db:"person_id" json:"person_id"`
	Program           Program       `db:"program" json:"program"`
	EducationLevel    string        `db:"education_level" json:"education_level"`
	GradeLevel        string        `db:"grade_level" json:"grade_level"`
	FamilyReferenceID *string       `db:"family_reference_id" json:"family_reference_id,omitempty"`
	Status            ProfileStatus `db:"status" json:"status"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updated_at"`
}

// ProgramProfileDetail enriches a profile with person info.
type ProgramProfileDetail struct {
	ProgramProfile
	PersonName string `db:"person_name" json:"person_name"`
}

// ProgramProfileFilter provides filters for listing profiles.
type ProgramProfileFilter struct {
	PersonID          string
	Program           Program
	Status            ProfileStatus
	FamilyReferenceID string
	Search            string
	Page              int
	PageSize          int
	SortBy            string
	SortOrder         string
}
