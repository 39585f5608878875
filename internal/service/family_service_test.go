package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/markazapp/markaz-admin-api/internal/models"
	appErrors "github.com/markazapp/markaz-admin-api/pkg/errors"
)

type familyRepoStub struct {
	guardians    []*models.GuardianRelationship
	siblings     []*models.SiblingRelationship
	refPairs     []models.SiblingCandidate
	contactPairs []models.SiblingCandidate
	upsertErr    error
}

func (s *familyRepoStub) CreateGuardian(ctx context.Context, rel *models.GuardianRelationship) error {
	s.guardians = append(s.guardians, rel)
	return nil
}

func (s *familyRepoStub) DeactivateGuardian(ctx context.Context, id string) error {
	return nil
}

func (s *familyRepoStub) ListGuardiansByStudent(ctx context.Context, studentID string) ([]models.GuardianRelationship, error) {
	return nil, nil
}

func (s *familyRepoStub) ListStudentsByGuardian(ctx context.Context, guardianID string) ([]models.GuardianRelationship, error) {
	return nil, nil
}

func (s *familyRepoStub) UpsertSibling(ctx context.Context, rel *models.SiblingRelationship) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.siblings = append(s.siblings, rel)
	return nil
}

func (s *familyRepoStub) FindSibling(ctx context.Context, person1ID, person2ID string) (*models.SiblingRelationship, error) {
	return nil, sql.ErrNoRows
}

func (s *familyRepoStub) DeactivateSibling(ctx context.Context, person1ID, person2ID string) error {
	return nil
}

func (s *familyRepoStub) ListSiblingsByPerson(ctx context.Context, personID string) ([]models.SiblingRelationship, error) {
	return nil, nil
}

func (s *familyRepoStub) SharedGuardianContactPairs(ctx context.Context) ([]models.SiblingCandidate, error) {
	return s.contactPairs, nil
}

func (s *familyRepoStub) FamilyReferencePairs(ctx context.Context) ([]models.SiblingCandidate, error) {
	return s.refPairs, nil
}

type familyProfileStub struct {
	details []models.ProgramProfileDetail
}

func (s familyProfileStub) FindByID(ctx context.Context, id string) (*models.ProgramProfile, error) {
	return nil, sql.ErrNoRows
}

func (s familyProfileStub) ListByFamilyReference(ctx context.Context, familyReferenceID string) ([]models.ProgramProfile, error) {
	return nil, nil
}

func (s familyProfileStub) CountActiveDugsiInFamily(ctx context.Context, familyReferenceID string) (int, error) {
	return len(s.details), nil
}

func (s familyProfileStub) List(ctx context.Context, filter models.ProgramProfileFilter) ([]models.ProgramProfileDetail, int, error) {
	return s.details, len(s.details), nil
}

func TestCalculateDugsiRateTiers(t *testing.T) {
	assert.Equal(t, int64(12000), CalculateDugsiRate(1))
	assert.Equal(t, int64(11000), CalculateDugsiRate(2))
	assert.Equal(t, int64(10000), CalculateDugsiRate(3))
	assert.Equal(t, int64(9000), CalculateDugsiRate(4))
	assert.Equal(t, int64(9000), CalculateDugsiRate(7), "families past four students stay on the lowest tier")
	assert.Equal(t, int64(12000), CalculateDugsiRate(0))
}

func TestFamilyServiceAddGuardianRejectsSelfLink(t *testing.T) {
	svc := NewFamilyService(&familyRepoStub{}, familyProfileStub{}, nil, zap.NewNop())

	_, err := svc.AddGuardian(context.Background(), CreateGuardianRequest{
		GuardianID:   "person-1",
		StudentID:    "person-1",
		Relationship: "FATHER",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestFamilyServiceAddGuardianRejectsUnknownRelationship(t *testing.T) {
	svc := NewFamilyService(&familyRepoStub{}, familyProfileStub{}, nil, zap.NewNop())

	_, err := svc.AddGuardian(context.Background(), CreateGuardianRequest{
		GuardianID:   "person-1",
		StudentID:    "person-2",
		Relationship: "NEIGHBOR",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestFamilyServiceAddSiblingStoresCanonicalOrder(t *testing.T) {
	repo := &familyRepoStub{}
	svc := NewFamilyService(repo, familyProfileStub{}, nil, zap.NewNop())

	rel, err := svc.AddSibling(context.Background(), CreateSiblingRequest{Person1ID: "person-b", Person2ID: "person-a"})
	require.NoError(t, err)
	assert.Equal(t, "person-a", rel.Person1ID)
	assert.Equal(t, "person-b", rel.Person2ID)
	assert.Equal(t, models.SiblingDetectionManual, rel.DetectionMethod)
	require.Len(t, repo.siblings, 1)
}

func TestFamilyServiceDetectSiblingsDedupesAcrossMethods(t *testing.T) {
	repo := &familyRepoStub{
		refPairs: []models.SiblingCandidate{
			{Person1ID: "person-a", Person2ID: "person-b", SharedValue: "fam-1"},
		},
		contactPairs: []models.SiblingCandidate{
			// Same pair in reverse order, found via a shared guardian phone.
			{Person1ID: "person-b", Person2ID: "person-a", SharedValue: "+15551234567"},
			{Person1ID: "person-c", Person2ID: "person-d", SharedValue: "+15551234567"},
		},
	}
	svc := NewFamilyService(repo, familyProfileStub{}, nil, zap.NewNop())

	candidates, err := svc.DetectSiblings(context.Background())
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, models.SiblingDetectionFamilyReference, candidates[0].DetectionMethod)
	require.Len(t, repo.siblings, 2)
	assert.Equal(t, "person-a", repo.siblings[0].Person1ID)
	assert.Equal(t, "person-c", repo.siblings[1].Person1ID)
}

func TestFamilyServiceFamilyGroupEmpty(t *testing.T) {
	svc := NewFamilyService(&familyRepoStub{}, familyProfileStub{}, nil, zap.NewNop())

	_, err := svc.FamilyGroup(context.Background(), "fam-404")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestFamilyServiceFamilyMonthlyTotal(t *testing.T) {
	profiles := familyProfileStub{details: []models.ProgramProfileDetail{
		{ProgramProfile: models.ProgramProfile{ID: "prof-1"}},
		{ProgramProfile: models.ProgramProfile{ID: "prof-2"}},
		{ProgramProfile: models.ProgramProfile{ID: "prof-3"}},
	}}
	svc := NewFamilyService(&familyRepoStub{}, profiles, nil, zap.NewNop())

	total, students, err := svc.FamilyMonthlyTotal(context.Background(), "fam-1")
	require.NoError(t, err)
	assert.Equal(t, 3, students)
	assert.Equal(t, int64(30000), total, "every student pays the family's tier rate")
}
