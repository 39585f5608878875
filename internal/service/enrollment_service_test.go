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
)

type enrollmentRepoStub struct {
	enrollments map[string]*models.Enrollment
	hasOpen     bool
	created     []*models.Enrollment
	updates     []models.EnrollmentStatus
	endDates    []*time.Time
	batchSets   []*string
	updateErr   error
}

func (s *enrollmentRepoStub) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	return nil, 0, nil
}

func (s *enrollmentRepoStub) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := s.enrollments[id]; ok {
		return e, nil
	}
	return nil, sql.ErrNoRows
}

func (s *enrollmentRepoStub) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	if e, ok := s.enrollments[id]; ok {
		return &models.EnrollmentDetail{Enrollment: *e}, nil
	}
	return nil, sql.ErrNoRows
}

func (s *enrollmentRepoStub) ExistsOpen(ctx context.Context, programProfileID string) (bool, error) {
	return s.hasOpen, nil
}

func (s *enrollmentRepoStub) Create(ctx context.Context, enrollment *models.Enrollment) error {
	s.created = append(s.created, enrollment)
	return nil
}

func (s *enrollmentRepoStub) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, endDate *time.Time) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updates = append(s.updates, status)
	s.endDates = append(s.endDates, endDate)
	return nil
}

func (s *enrollmentRepoStub) UpdateBatch(ctx context.Context, id string, batchID *string) error {
	s.batchSets = append(s.batchSets, batchID)
	return nil
}

type profileFinderStub struct {
	profiles map[string]*models.ProgramProfile
}

func (s profileFinderStub) FindByID(ctx context.Context, id string) (*models.ProgramProfile, error) {
	if p, ok := s.profiles[id]; ok {
		return p, nil
	}
	return nil, sql.ErrNoRows
}

type batchFinderStub struct {
	batches map[string]*models.Batch
}

func (s batchFinderStub) FindByID(ctx context.Context, id string) (*models.Batch, error) {
	if b, ok := s.batches[id]; ok {
		return b, nil
	}
	return nil, sql.ErrNoRows
}

func activeProfile(id string, program models.Program) *models.ProgramProfile {
	return &models.ProgramProfile{ID: id, PersonID: "person-" + id, Program: program, Status: models.ProfileStatusActive}
}

func TestEnrollmentServiceCreateDefaults(t *testing.T) {
	repo := &enrollmentRepoStub{}
	profiles := profileFinderStub{profiles: map[string]*models.ProgramProfile{"prof-1": activeProfile("prof-1", models.ProgramDugsi)}}
	svc := NewEnrollmentService(repo, profiles, batchFinderStub{}, nil, zap.NewNop())

	enrollment, err := svc.Create(context.Background(), CreateEnrollmentRequest{ProgramProfileID: "prof-1"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusRegistered, enrollment.Status)
	assert.Nil(t, enrollment.BatchID)
	assert.False(t, enrollment.StartDate.IsZero())
	require.Len(t, repo.created, 1)
}

func TestEnrollmentServiceCreateRejectsSecondOpen(t *testing.T) {
	repo := &enrollmentRepoStub{hasOpen: true}
	profiles := profileFinderStub{profiles: map[string]*models.ProgramProfile{"prof-1": activeProfile("prof-1", models.ProgramMahad)}}
	svc := NewEnrollmentService(repo, profiles, batchFinderStub{}, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), CreateEnrollmentRequest{ProgramProfileID: "prof-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.created)
}

func TestEnrollmentServiceCreateRejectsBatchForDugsi(t *testing.T) {
	repo := &enrollmentRepoStub{}
	profiles := profileFinderStub{profiles: map[string]*models.ProgramProfile{"prof-1": activeProfile("prof-1", models.ProgramDugsi)}}
	batches := batchFinderStub{batches: map[string]*models.Batch{"batch-1": {ID: "batch-1", Active: true}}}
	svc := NewEnrollmentService(repo, profiles, batches, nil, zap.NewNop())

	batchID := "batch-1"
	_, err := svc.Create(context.Background(), CreateEnrollmentRequest{ProgramProfileID: "prof-1", BatchID: &batchID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrProgramMismatch.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceCreateRejectsInactiveBatch(t *testing.T) {
	repo := &enrollmentRepoStub{}
	profiles := profileFinderStub{profiles: map[string]*models.ProgramProfile{"prof-1": activeProfile("prof-1", models.ProgramMahad)}}
	batches := batchFinderStub{batches: map[string]*models.Batch{"batch-1": {ID: "batch-1", Active: false}}}
	svc := NewEnrollmentService(repo, profiles, batches, nil, zap.NewNop())

	batchID := "batch-1"
	_, err := svc.Create(context.Background(), CreateEnrollmentRequest{ProgramProfileID: "prof-1", BatchID: &batchID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceTransitionAllowed(t *testing.T) {
	repo := &enrollmentRepoStub{enrollments: map[string]*models.Enrollment{
		"enr-1": {ID: "enr-1", ProgramProfileID: "prof-1", Status: models.EnrollmentStatusRegistered},
	}}
	svc := NewEnrollmentService(repo, profileFinderStub{}, batchFinderStub{}, nil, zap.NewNop())

	enrollment, err := svc.Transition(context.Background(), "enr-1", TransitionRequest{Status: models.EnrollmentStatusEnrolled})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusEnrolled, enrollment.Status)
	require.Len(t, repo.updates, 1)
	assert.Nil(t, repo.endDates[0])
}

func TestEnrollmentServiceTransitionRejectsInvalid(t *testing.T) {
	repo := &enrollmentRepoStub{enrollments: map[string]*models.Enrollment{
		"enr-1": {ID: "enr-1", Status: models.EnrollmentStatusRegistered},
	}}
	svc := NewEnrollmentService(repo, profileFinderStub{}, batchFinderStub{}, nil, zap.NewNop())

	_, err := svc.Transition(context.Background(), "enr-1", TransitionRequest{Status: models.EnrollmentStatusCompleted})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.updates)
}

func TestEnrollmentServiceTransitionFromTerminal(t *testing.T) {
	repo := &enrollmentRepoStub{enrollments: map[string]*models.Enrollment{
		"enr-1": {ID: "enr-1", Status: models.EnrollmentStatusWithdrawn},
	}}
	svc := NewEnrollmentService(repo, profileFinderStub{}, batchFinderStub{}, nil, zap.NewNop())

	_, err := svc.Transition(context.Background(), "enr-1", TransitionRequest{Status: models.EnrollmentStatusEnrolled})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceWithdrawalSetsEndDate(t *testing.T) {
	repo := &enrollmentRepoStub{enrollments: map[string]*models.Enrollment{
		"enr-1": {ID: "enr-1", Status: models.EnrollmentStatusEnrolled},
	}}
	svc := NewEnrollmentService(repo, profileFinderStub{}, batchFinderStub{}, nil, zap.NewNop())

	enrollment, err := svc.Transition(context.Background(), "enr-1", TransitionRequest{Status: models.EnrollmentStatusWithdrawn})
	require.NoError(t, err)
	require.NotNil(t, enrollment.EndDate)
	require.Len(t, repo.endDates, 1)
	assert.NotNil(t, repo.endDates[0])
}

func TestEnrollmentServiceAssignBatchOnTerminal(t *testing.T) {
	repo := &enrollmentRepoStub{enrollments: map[string]*models.Enrollment{
		"enr-1": {ID: "enr-1", ProgramProfileID: "prof-1", Status: models.EnrollmentStatusCompleted},
	}}
	profiles := profileFinderStub{profiles: map[string]*models.ProgramProfile{"prof-1": activeProfile("prof-1", models.ProgramMahad)}}
	batches := batchFinderStub{batches: map[string]*models.Batch{"batch-1": {ID: "batch-1", Active: true}}}
	svc := NewEnrollmentService(repo, profiles, batches, nil, zap.NewNop())

	batchID := "batch-1"
	_, err := svc.AssignBatch(context.Background(), "enr-1", &batchID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceAssignBatchClears(t *testing.T) {
	repo := &enrollmentRepoStub{enrollments: map[string]*models.Enrollment{
		"enr-1": {ID: "enr-1", ProgramProfileID: "prof-1", Status: models.EnrollmentStatusEnrolled},
	}}
	profiles := profileFinderStub{profiles: map[string]*models.ProgramProfile{"prof-1": activeProfile("prof-1", models.ProgramMahad)}}
	svc := NewEnrollmentService(repo, profiles, batchFinderStub{}, nil, zap.NewNop())

	enrollment, err := svc.AssignBatch(context.Background(), "enr-1", nil)
	require.NoError(t, err)
	assert.Nil(t, enrollment.BatchID)
	require.Len(t, repo.batchSets, 1)
	assert.Nil(t, repo.batchSets[0])
}
