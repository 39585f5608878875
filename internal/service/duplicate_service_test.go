package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/markazapp/markaz-admin-api/internal/models"
	appErrors "github.com/markazapp/markaz-admin-api/pkg/errors"
)

func newDuplicateFixture() (*profileRepoStub, *profileEnrollmentStub, *profileBillingStub, *auditStub) {
	repo := &profileRepoStub{profiles: map[string]*models.ProgramProfile{
		"prof-keep": {ID: "prof-keep", PersonID: "person-1", Program: models.ProgramDugsi, Status: models.ProfileStatusActive},
		"prof-dup":  {ID: "prof-dup", PersonID: "person-1", Program: models.ProgramDugsi, Status: models.ProfileStatusActive},
	}}
	return repo, &profileEnrollmentStub{}, &profileBillingStub{}, &auditStub{}
}

func TestDuplicateServiceResolveRetiresDuplicates(t *testing.T) {
	repo, enrollments, billing, audit := newDuplicateFixture()
	enrollments.open = []models.Enrollment{{ID: "enr-1", Status: models.EnrollmentStatusEnrolled}}
	svc := NewDuplicateService(repo, enrollments, billing, audit, nil, zap.NewNop())

	result, err := svc.Resolve(context.Background(), ResolveDuplicatesRequest{
		KeepProfileID:    "prof-keep",
		DeleteProfileIDs: []string{"prof-dup"},
	}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, "prof-keep", result.KeptProfileID)
	assert.Equal(t, []string{"prof-dup"}, result.Resolved)
	assert.Empty(t, result.Failed)
	assert.Equal(t, models.ProfileStatusWithdrawn, repo.statusUpdates["prof-dup"])
	_, keepTouched := repo.statusUpdates["prof-keep"]
	assert.False(t, keepTouched, "keep profile is untouched")
	assert.Equal(t, []string{"enr-1"}, enrollments.withdrawn)
	assert.Equal(t, []string{"prof-dup"}, billing.deactivated)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionDuplicateResolve, audit.logs[0].Action)
}

func TestDuplicateServiceResolveRejectsKeepInDeleteList(t *testing.T) {
	repo, enrollments, billing, audit := newDuplicateFixture()
	svc := NewDuplicateService(repo, enrollments, billing, audit, nil, zap.NewNop())

	result, err := svc.Resolve(context.Background(), ResolveDuplicatesRequest{
		KeepProfileID:    "prof-keep",
		DeleteProfileIDs: []string{"prof-keep", "prof-dup"},
	}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"prof-dup"}, result.Resolved)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "prof-keep", result.Failed[0].ID)
}

func TestDuplicateServiceResolveMissingRecordIsPerItemFailure(t *testing.T) {
	repo, enrollments, billing, audit := newDuplicateFixture()
	svc := NewDuplicateService(repo, enrollments, billing, audit, nil, zap.NewNop())

	result, err := svc.Resolve(context.Background(), ResolveDuplicatesRequest{
		KeepProfileID:    "prof-keep",
		DeleteProfileIDs: []string{"prof-404", "prof-dup"},
	}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"prof-dup"}, result.Resolved)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "prof-404", result.Failed[0].ID)
}

func TestDuplicateServiceResolveRequiresActiveKeep(t *testing.T) {
	repo, enrollments, billing, audit := newDuplicateFixture()
	repo.profiles["prof-keep"].Status = models.ProfileStatusWithdrawn
	svc := NewDuplicateService(repo, enrollments, billing, audit, nil, zap.NewNop())

	_, err := svc.Resolve(context.Background(), ResolveDuplicatesRequest{
		KeepProfileID:    "prof-keep",
		DeleteProfileIDs: []string{"prof-dup"},
	}, "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestDuplicateServiceResolveAcceptsMergeFlagWithoutMerging(t *testing.T) {
	repo, enrollments, billing, audit := newDuplicateFixture()
	svc := NewDuplicateService(repo, enrollments, billing, audit, nil, zap.NewNop())

	result, err := svc.Resolve(context.Background(), ResolveDuplicatesRequest{
		KeepProfileID:    "prof-keep",
		DeleteProfileIDs: []string{"prof-dup"},
		MergeData:        true,
	}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"prof-dup"}, result.Resolved)
}
