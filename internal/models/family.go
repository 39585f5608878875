package models

import "time"

// GuardianRelationship links a guardian person to a student person.
type GuardianRelationship struct {
	ID           string    `db:"id" json:"id"`
	GuardianID   string    `db:"guardian_id" json:"guardian_id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	Relationship string    `db:"relationship" json:"relationship"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// SiblingDetectionMethod records how a sibling link was discovered.
type SiblingDetectionMethod string

const (
	SiblingDetectionManual          SiblingDetectionMethod = "MANUAL"
	SiblingDetectionSharedGuardian  SiblingDetectionMethod = "SHARED_GUARDIAN_CONTACT"
	SiblingDetectionFamilyReference SiblingDetectionMethod = "FAMILY_REFERENCE"
)

// Valid reports whether the detection method is known.
func (m SiblingDetectionMethod) Valid() bool {
	switch m {
	case SiblingDetectionManual, SiblingDetectionSharedGuardian, SiblingDetectionFamilyReference:
		return true
	}
	return false
}

// Confidence returns the default confidence score for the method.
func (m SiblingDetectionMethod) Confidence() float64 {
	switch m {
	case SiblingDetectionManual:
		return 1.0
	case SiblingDetectionFamilyReference:
		return 0.95
	case SiblingDetectionSharedGuardian:
		return 0.8
	}
	return 0
}

// SiblingRelationship is a symmetric family link stored once per pair
// with person1_id < person2_id. Soft-removed pairs are reactivated on
// re-insert rather than duplicated.
type SiblingRelationship struct {
	ID              string                 `db:"id" json:"id"`
	Person1ID       string                 `db:"person1_id" json:"person1_id"`
	Person2ID       string                 `db:"person2_id" json:"person2_id"`
	DetectionMethod SiblingDetectionMethod `db:"detection_method" json:"detection_method"`
	Confidence      float64                `db:"confidence" json:"confidence"`
	IsActive        bool                   `db:"is_active" json:"is_active"`
	CreatedAt       time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time              `db:"updated_at" json:"updated_at"`
}

// SortedPair returns the two person ids in canonical order.
func SortedPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

// FamilyGroup is a set of program profiles believed to belong to the
// same household.
type FamilyGroup struct {
	FamilyReferenceID string                 `json:"family_reference_id"`
	Members           []ProgramProfileDetail `json:"members"`
}

// SiblingCandidate is a detected, not-yet-recorded sibling pair.
type SiblingCandidate struct {
	Person1ID       string                 `db:"person1_id" json:"person1_id"`
	Person2ID       string                 `db:"person2_id" json:"person2_id"`
	SharedValue     string                 `db:"shared_value" json:"shared_value"`
	DetectionMethod SiblingDetectionMethod `json:"detection_method"`
	Confidence      float64                `json:"confidence"`
}
