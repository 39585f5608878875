package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/markazapp/markaz-admin-api/internal/models"
	appErrors "github.com/markazapp/markaz-admin-api/pkg/errors"
	"github.com/markazapp/markaz-admin-api/pkg/stripeclient"
)

type profileRepoStub struct {
	profiles      map[string]*models.ProgramProfile
	family        []models.ProgramProfile
	statusUpdates map[string]models.ProfileStatus
	hardDeleted   []string
	familyDeleted []string
}

func (s *profileRepoStub) List(ctx context.Context, filter models.ProgramProfileFilter) ([]models.ProgramProfileDetail, int, error) {
	return nil, 0, nil
}

func (s *profileRepoStub) FindByID(ctx context.Context, id string) (*models.ProgramProfile, error) {
	if p, ok := s.profiles[id]; ok {
		return p, nil
	}
	return nil, sql.ErrNoRows
}

func (s *profileRepoStub) FindByPersonAndProgram(ctx context.Context, personID string, program models.Program) (*models.ProgramProfile, error) {
	for _, p := range s.profiles {
		if p.PersonID == personID && p.Program == program {
			return p, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *profileRepoStub) Create(ctx context.Context, profile *models.ProgramProfile) error {
	if s.profiles == nil {
		s.profiles = map[string]*models.ProgramProfile{}
	}
	profile.ID = "prof-new"
	s.profiles[profile.ID] = profile
	return nil
}

func (s *profileRepoStub) Update(ctx context.Context, profile *models.ProgramProfile) error {
	return nil
}

func (s *profileRepoStub) UpdateStatus(ctx context.Context, id string, status models.ProfileStatus) error {
	if s.statusUpdates == nil {
		s.statusUpdates = map[string]models.ProfileStatus{}
	}
	s.statusUpdates[id] = status
	return nil
}

func (s *profileRepoStub) ListByFamilyReference(ctx context.Context, familyReferenceID string) ([]models.ProgramProfile, error) {
	return s.family, nil
}

func (s *profileRepoStub) HardDelete(ctx context.Context, id string) error {
	s.hardDeleted = append(s.hardDeleted, id)
	return nil
}

func (s *profileRepoStub) HardDeleteFamily(ctx context.Context, familyReferenceID string) ([]string, error) {
	for _, member := range s.family {
		s.familyDeleted = append(s.familyDeleted, member.ID)
	}
	return s.familyDeleted, nil
}

type profileEnrollmentStub struct {
	open      []models.Enrollment
	withdrawn []string
}

func (s *profileEnrollmentStub) ListOpenByProfile(ctx context.Context, programProfileID string) ([]models.Enrollment, error) {
	return s.open, nil
}

func (s *profileEnrollmentStub) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, endDate *time.Time) error {
	s.withdrawn = append(s.withdrawn, id)
	return nil
}

type profileBillingStub struct {
	subs          []models.Subscription
	deactivated   []string
	statusUpdates []string
}

func (s *profileBillingStub) DeactivateAssignmentsByProfile(ctx context.Context, programProfileID string) (int64, error) {
	s.deactivated = append(s.deactivated, programProfileID)
	return 1, nil
}

func (s *profileBillingStub) ListSubscriptionsByProfiles(ctx context.Context, profileIDs []string) ([]models.Subscription, error) {
	return s.subs, nil
}

func (s *profileBillingStub) UpdateSubscriptionStatus(ctx context.Context, stripeSubscriptionID string, status models.SubscriptionStatus, canceledAt *time.Time) error {
	s.statusUpdates = append(s.statusUpdates, stripeSubscriptionID)
	return nil
}

type cancelerStub struct {
	calls []string
	err   error
}

func (s *cancelerStub) CancelSubscription(ctx context.Context, subscriptionID string) (*stripeclient.SubscriptionInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.calls = append(s.calls, subscriptionID)
	return &stripeclient.SubscriptionInfo{ID: subscriptionID, Status: "canceled"}, nil
}

type auditStub struct {
	logs []*models.AuditLog
	err  error
}

func (s *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, log)
	return s.err
}

func strRef(s string) *string { return &s }

func TestProfileServiceCreateRejectsDuplicateProgram(t *testing.T) {
	repo := &profileRepoStub{profiles: map[string]*models.ProgramProfile{
		"prof-1": {ID: "prof-1", PersonID: "person-1", Program: models.ProgramMahad, Status: models.ProfileStatusActive},
	}}
	svc := NewProfileService(repo, &profileEnrollmentStub{}, &profileBillingStub{}, nil, &auditStub{}, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), CreateProfileRequest{PersonID: "person-1", Program: models.ProgramMahad})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestProfileServiceDeleteMahadWithdraws(t *testing.T) {
	repo := &profileRepoStub{profiles: map[string]*models.ProgramProfile{
		"prof-1": {ID: "prof-1", PersonID: "person-1", Program: models.ProgramMahad, Status: models.ProfileStatusActive},
	}}
	enrollments := &profileEnrollmentStub{open: []models.Enrollment{
		{ID: "enr-1", Status: models.EnrollmentStatusEnrolled},
	}}
	billing := &profileBillingStub{}
	audit := &auditStub{}
	svc := NewProfileService(repo, enrollments, billing, nil, audit, nil, zap.NewNop())

	result, err := svc.Delete(context.Background(), "prof-1", "admin-1")
	require.NoError(t, err)
	assert.True(t, result.Withdrawn)
	assert.Equal(t, []string{"prof-1"}, result.DeletedProfileIDs)
	assert.Equal(t, models.ProfileStatusWithdrawn, repo.statusUpdates["prof-1"])
	assert.Equal(t, []string{"enr-1"}, enrollments.withdrawn)
	assert.Equal(t, []string{"prof-1"}, billing.deactivated)
	assert.Empty(t, repo.hardDeleted, "mahad profiles are never hard deleted")
	require.Len(t, audit.logs, 1)
}

func TestProfileServiceDeleteDugsiFamilyCancelsSharedSubscriptionOnce(t *testing.T) {
	famRef := strRef("fam-1")
	repo := &profileRepoStub{
		profiles: map[string]*models.ProgramProfile{
			"prof-1": {ID: "prof-1", PersonID: "person-1", Program: models.ProgramDugsi, FamilyReferenceID: famRef, Status: models.ProfileStatusActive},
		},
		family: []models.ProgramProfile{
			{ID: "prof-1", FamilyReferenceID: famRef},
			{ID: "prof-2", FamilyReferenceID: famRef},
			{ID: "prof-3", FamilyReferenceID: famRef},
		},
	}
	// Three profiles covered by the same Stripe subscription.
	billing := &profileBillingStub{subs: []models.Subscription{
		{ID: "sub-1", StripeSubscriptionID: "sub_abc", Status: models.SubscriptionStatusActive},
		{ID: "sub-1", StripeSubscriptionID: "sub_abc", Status: models.SubscriptionStatusActive},
		{ID: "sub-1", StripeSubscriptionID: "sub_abc", Status: models.SubscriptionStatusActive},
	}}
	canceler := &cancelerStub{}
	audit := &auditStub{}
	svc := NewProfileService(repo, &profileEnrollmentStub{}, billing,
		map[models.Program]SubscriptionCanceler{models.ProgramDugsi: canceler}, audit, nil, zap.NewNop())

	result, err := svc.Delete(context.Background(), "prof-1", "admin-1")
	require.NoError(t, err)
	assert.False(t, result.Withdrawn)
	assert.Len(t, result.DeletedProfileIDs, 3)
	assert.Equal(t, []string{"sub_abc"}, result.CanceledSubscriptions)
	assert.Len(t, canceler.calls, 1, "a shared subscription is canceled exactly once")
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionFamilyDelete, audit.logs[0].Action)
}

func TestProfileServiceDeleteDugsiSkipsAlreadyCanceled(t *testing.T) {
	repo := &profileRepoStub{profiles: map[string]*models.ProgramProfile{
		"prof-1": {ID: "prof-1", PersonID: "person-1", Program: models.ProgramDugsi, Status: models.ProfileStatusActive},
	}}
	billing := &profileBillingStub{subs: []models.Subscription{
		{ID: "sub-1", StripeSubscriptionID: "sub_abc", Status: models.SubscriptionStatusCanceled},
	}}
	canceler := &cancelerStub{}
	svc := NewProfileService(repo, &profileEnrollmentStub{}, billing,
		map[models.Program]SubscriptionCanceler{models.ProgramDugsi: canceler}, &auditStub{}, nil, zap.NewNop())

	result, err := svc.Delete(context.Background(), "prof-1", "admin-1")
	require.NoError(t, err)
	assert.Empty(t, result.CanceledSubscriptions)
	assert.Empty(t, canceler.calls)
	assert.Equal(t, []string{"prof-1"}, repo.hardDeleted)
}
