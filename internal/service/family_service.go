package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/markazapp/markaz-admin-api/internal/models"
	appErrors "github.com/markazapp/markaz-admin-api/pkg/errors"
)

type familyRepository interface {
	CreateGuardian(ctx context.Context, rel *models.GuardianRelationship) error
	DeactivateGuardian(ctx context.Context, id string) error
	ListGuardiansByStudent(ctx context.Context, studentID string) ([]models.GuardianRelationship, error)
	ListStudentsByGuardian(ctx context.Context, guardianID string) ([]models.GuardianRelationship, error)
	UpsertSibling(ctx context.Context, rel *models.SiblingRelationship) error
	FindSibling(ctx context.Context, person1ID, person2ID string) (*models.SiblingRelationship, error)
	DeactivateSibling(ctx context.Context, person1ID, person2ID string) error
	ListSiblingsByPerson(ctx context.Context, personID string) ([]models.SiblingRelationship, error)
	SharedGuardianContactPairs(ctx context.Context) ([]models.SiblingCandidate, error)
	FamilyReferencePairs(ctx context.Context) ([]models.SiblingCandidate, error)
}

type familyProfileRepository interface {
	FindByID(ctx context.Context, id string) (*models.ProgramProfile, error)
	ListByFamilyReference(ctx context.Context, familyReferenceID string) ([]models.ProgramProfile, error)
	CountActiveDugsiInFamily(ctx context.Context, familyReferenceID string) (int, error)
	List(ctx context.Context, filter models.ProgramProfileFilter) ([]models.ProgramProfileDetail, int, error)
}

// Dugsi monthly rates per student in cents, tiered by how many active
// students a family has. Families of four or more sit on the lowest
// tier.
var dugsiRateTiers = []int64{12000, 11000, 10000, 9000}

// CreateGuardianRequest links a guardian person to a student person.
type CreateGuardianRequest struct {
	GuardianID   string `json:"guardian_id" validate:"required"`
	StudentID    string `json:"student_id" validate:"required"`
	Relationship string `json:"relationship" validate:"required,oneof=FATHER MOTHER GRANDPARENT UNCLE AUNT SIBLING OTHER"`
}

// CreateSiblingRequest records a manually confirmed sibling pair.
type CreateSiblingRequest struct {
	Person1ID string `json:"person1_id" validate:"required"`
	Person2ID string `json:"person2_id" validate:"required"`
}

// FamilyService manages guardian links, sibling relationships and
// family-tiered pricing.
type FamilyService struct {
	families  familyRepository
	profiles  familyProfileRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewFamilyService constructs the family service.
func NewFamilyService(families familyRepository, profiles familyProfileRepository, validate *validator.Validate, logger *zap.Logger) *FamilyService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FamilyService{families: families, profiles: profiles, validator: validate, logger: logger}
}

// AddGuardian links a guardian to a student. Re-adding a previously
// removed link reactivates it.
func (s *FamilyService) AddGuardian(ctx context.Context, req CreateGuardianRequest) (*models.GuardianRelationship, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid guardian payload")
	}
	if req.GuardianID == req.StudentID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "guardian and student must be different people")
	}
	rel := &models.GuardianRelationship{
		GuardianID:   req.GuardianID,
		StudentID:    req.StudentID,
		Relationship: req.Relationship,
		IsActive:     true,
	}
	if err := s.families.CreateGuardian(ctx, rel); err != nil {
		return nil, appErrors.FromError(err)
	}
	return rel, nil
}

// RemoveGuardian deactivates a guardian link.
func (s *FamilyService) RemoveGuardian(ctx context.Context, id string) error {
	if err := s.families.DeactivateGuardian(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "guardian relationship not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove guardian")
	}
	return nil
}

// GuardiansOf lists a student's active guardians.
func (s *FamilyService) GuardiansOf(ctx context.Context, studentID string) ([]models.GuardianRelationship, error) {
	rels, err := s.families.ListGuardiansByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list guardians")
	}
	return rels, nil
}

// StudentsOf lists the students a guardian is responsible for.
func (s *FamilyService) StudentsOf(ctx context.Context, guardianID string) ([]models.GuardianRelationship, error) {
	rels, err := s.families.ListStudentsByGuardian(ctx, guardianID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return rels, nil
}

// AddSibling records a manually confirmed sibling pair with full
// confidence. The pair is stored once in canonical order.
func (s *FamilyService) AddSibling(ctx context.Context, req CreateSiblingRequest) (*models.SiblingRelationship, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid sibling payload")
	}
	if req.Person1ID == req.Person2ID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a person cannot be their own sibling")
	}
	p1, p2 := models.SortedPair(req.Person1ID, req.Person2ID)
	rel := &models.SiblingRelationship{
		Person1ID:       p1,
		Person2ID:       p2,
		DetectionMethod: models.SiblingDetectionManual,
		Confidence:      models.SiblingDetectionManual.Confidence(),
		IsActive:        true,
	}
	if err := s.families.UpsertSibling(ctx, rel); err != nil {
		return nil, appErrors.FromError(err)
	}
	return rel, nil
}

// RemoveSibling deactivates a sibling pair.
func (s *FamilyService) RemoveSibling(ctx context.Context, person1ID, person2ID string) error {
	p1, p2 := models.SortedPair(person1ID, person2ID)
	if err := s.families.DeactivateSibling(ctx, p1, p2); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "sibling relationship not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove sibling")
	}
	return nil
}

// SiblingsOf lists a person's active sibling links.
func (s *FamilyService) SiblingsOf(ctx context.Context, personID string) ([]models.SiblingRelationship, error) {
	rels, err := s.families.ListSiblingsByPerson(ctx, personID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list siblings")
	}
	return rels, nil
}

// DetectSiblings scans for probable sibling pairs from shared family
// references and shared guardian contacts, records every new pair, and
// returns the candidates found. Existing pairs keep their higher
// confidence.
func (s *FamilyService) DetectSiblings(ctx context.Context) ([]models.SiblingCandidate, error) {
	byRef, err := s.families.FamilyReferencePairs(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to scan family references")
	}
	for i := range byRef {
		byRef[i].DetectionMethod = models.SiblingDetectionFamilyReference
		byRef[i].Confidence = models.SiblingDetectionFamilyReference.Confidence()
	}

	byContact, err := s.families.SharedGuardianContactPairs(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to scan guardian contacts")
	}
	for i := range byContact {
		byContact[i].DetectionMethod = models.SiblingDetectionSharedGuardian
		byContact[i].Confidence = models.SiblingDetectionSharedGuardian.Confidence()
	}

	seen := make(map[[2]string]bool)
	var candidates []models.SiblingCandidate
	for _, c := range append(byRef, byContact...) {
		p1, p2 := models.SortedPair(c.Person1ID, c.Person2ID)
		key := [2]string{p1, p2}
		if seen[key] {
			continue
		}
		seen[key] = true
		rel := &models.SiblingRelationship{
			Person1ID:       p1,
			Person2ID:       p2,
			DetectionMethod: c.DetectionMethod,
			Confidence:      c.Confidence,
			IsActive:        true,
		}
		if err := s.families.UpsertSibling(ctx, rel); err != nil {
			s.logger.Warn("failed to record detected sibling pair",
				zap.String("person1_id", p1), zap.String("person2_id", p2), zap.Error(err))
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// FamilyGroup returns the profiles sharing a family reference id.
func (s *FamilyService) FamilyGroup(ctx context.Context, familyReferenceID string) (*models.FamilyGroup, error) {
	if familyReferenceID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "family reference id is required")
	}
	members, _, err := s.profiles.List(ctx, models.ProgramProfileFilter{
		FamilyReferenceID: familyReferenceID,
		Page:              1,
		PageSize:          100,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load family group")
	}
	if len(members) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no profiles share this family reference")
	}
	return &models.FamilyGroup{FamilyReferenceID: familyReferenceID, Members: members}, nil
}

// CalculateDugsiRate returns the monthly per-student rate in cents for
// a family with the given number of active Dugsi students. Every
// student in the family pays the same rate; larger families fall into
// cheaper tiers, capped at the 4-student tier.
func CalculateDugsiRate(activeStudents int) int64 {
	if activeStudents < 1 {
		activeStudents = 1
	}
	if activeStudents > len(dugsiRateTiers) {
		activeStudents = len(dugsiRateTiers)
	}
	return dugsiRateTiers[activeStudents-1]
}

// FamilyMonthlyTotal computes a family's monthly charge: the family's
// per-student rate times its active Dugsi student count.
func (s *FamilyService) FamilyMonthlyTotal(ctx context.Context, familyReferenceID string) (int64, int, error) {
	count, err := s.profiles.CountActiveDugsiInFamily(ctx, familyReferenceID)
	if err != nil {
		return 0, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count family students")
	}
	if count == 0 {
		return 0, 0, nil
	}
	return int64(count) * CalculateDugsiRate(count), count, nil
}
