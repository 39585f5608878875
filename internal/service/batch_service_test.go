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

type batchRepoStub struct {
	batches     map[string]*models.Batch
	deactivated []string
}

func newBatchRepoStub(batches ...*models.Batch) *batchRepoStub {
	s := &batchRepoStub{batches: map[string]*models.Batch{}}
	for _, b := range batches {
		s.batches[b.ID] = b
	}
	return s
}

func (s *batchRepoStub) List(ctx context.Context, filter models.BatchFilter) ([]models.BatchDetail, int, error) {
	return nil, 0, nil
}

func (s *batchRepoStub) FindByID(ctx context.Context, id string) (*models.Batch, error) {
	if b, ok := s.batches[id]; ok {
		return b, nil
	}
	return nil, sql.ErrNoRows
}

func (s *batchRepoStub) Create(ctx context.Context, batch *models.Batch) error {
	batch.ID = "batch-new"
	s.batches[batch.ID] = batch
	return nil
}

func (s *batchRepoStub) Update(ctx context.Context, batch *models.Batch) error {
	s.batches[batch.ID] = batch
	return nil
}

func (s *batchRepoStub) Deactivate(ctx context.Context, id string) error {
	if _, ok := s.batches[id]; !ok {
		return sql.ErrNoRows
	}
	s.deactivated = append(s.deactivated, id)
	return nil
}

type batchEnrollmentStub struct {
	enrollments map[string]*models.Enrollment
	roster      map[string][]models.EnrollmentDetail
	batchMoves  map[string]string
}

func newBatchEnrollmentStub() *batchEnrollmentStub {
	return &batchEnrollmentStub{
		enrollments: map[string]*models.Enrollment{},
		roster:      map[string][]models.EnrollmentDetail{},
		batchMoves:  map[string]string{},
	}
}

func (s *batchEnrollmentStub) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := s.enrollments[id]; ok {
		return e, nil
	}
	return nil, sql.ErrNoRows
}

func (s *batchEnrollmentStub) ListByBatch(ctx context.Context, batchID string) ([]models.EnrollmentDetail, error) {
	return s.roster[batchID], nil
}

func (s *batchEnrollmentStub) UpdateBatch(ctx context.Context, id string, batchID *string) error {
	if batchID != nil {
		s.batchMoves[id] = *batchID
	}
	return nil
}

func newTestBatchService(batches *batchRepoStub, enrollments *batchEnrollmentStub, profiles profileFinderStub) *BatchService {
	return NewBatchService(batches, enrollments, profiles, nil, zap.NewNop())
}

func TestBatchServiceBulkAssignReportsPerItemFailures(t *testing.T) {
	batches := newBatchRepoStub(&models.Batch{ID: "batch-1", Name: "Morning Hifz", Active: true})
	enrollments := newBatchEnrollmentStub()
	enrollments.enrollments["enr-open"] = &models.Enrollment{ID: "enr-open", ProgramProfileID: "prof-open", Status: models.EnrollmentStatusEnrolled}
	enrollments.enrollments["enr-closed"] = &models.Enrollment{ID: "enr-closed", ProgramProfileID: "prof-closed", Status: models.EnrollmentStatusWithdrawn}
	profiles := profileFinderStub{profiles: map[string]*models.ProgramProfile{
		"prof-open": activeProfile("prof-open", models.ProgramMahad),
	}}
	svc := newTestBatchService(batches, enrollments, profiles)

	result, err := svc.BulkAssign(context.Background(), BulkAssignRequest{
		EnrollmentIDs: []string{"enr-open", "enr-closed", "enr-missing"},
		BatchID:       "batch-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Assigned)
	require.Len(t, result.Failed, 2)
	assert.Equal(t, "enr-closed", result.Failed[0].ID)
	assert.Equal(t, "enrollment is closed", result.Failed[0].Reason)
	assert.Equal(t, "enr-missing", result.Failed[1].ID)
	assert.Equal(t, "batch-1", enrollments.batchMoves["enr-open"])
}

func TestBatchServiceBulkAssignRejectsDugsiEnrollments(t *testing.T) {
	batches := newBatchRepoStub(&models.Batch{ID: "batch-1", Name: "Morning Hifz", Active: true})
	enrollments := newBatchEnrollmentStub()
	enrollments.enrollments["enr-mahad"] = &models.Enrollment{ID: "enr-mahad", ProgramProfileID: "prof-mahad", Status: models.EnrollmentStatusEnrolled}
	enrollments.enrollments["enr-dugsi"] = &models.Enrollment{ID: "enr-dugsi", ProgramProfileID: "prof-dugsi", Status: models.EnrollmentStatusEnrolled}
	profiles := profileFinderStub{profiles: map[string]*models.ProgramProfile{
		"prof-mahad": activeProfile("prof-mahad", models.ProgramMahad),
		"prof-dugsi": activeProfile("prof-dugsi", models.ProgramDugsi),
	}}
	svc := newTestBatchService(batches, enrollments, profiles)

	result, err := svc.BulkAssign(context.Background(), BulkAssignRequest{
		EnrollmentIDs: []string{"enr-mahad", "enr-dugsi"},
		BatchID:       "batch-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Assigned)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "enr-dugsi", result.Failed[0].ID)
	assert.Equal(t, "dugsi enrollments cannot be assigned to a batch", result.Failed[0].Reason)
	assert.NotContains(t, enrollments.batchMoves, "enr-dugsi")
}

func TestBatchServiceBulkAssignRejectsInactiveBatch(t *testing.T) {
	batches := newBatchRepoStub(&models.Batch{ID: "batch-1", Name: "Retired", Active: false})
	svc := newTestBatchService(batches, newBatchEnrollmentStub(), profileFinderStub{})

	_, err := svc.BulkAssign(context.Background(), BulkAssignRequest{
		EnrollmentIDs: []string{"enr-1"},
		BatchID:       "batch-1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestBatchServiceTransferAllRejectsSameBatch(t *testing.T) {
	svc := newTestBatchService(newBatchRepoStub(), newBatchEnrollmentStub(), profileFinderStub{})

	_, err := svc.TransferAll(context.Background(), "batch-1", "batch-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestBatchServiceTransferAllMovesRoster(t *testing.T) {
	batches := newBatchRepoStub(
		&models.Batch{ID: "batch-1", Name: "Morning Hifz", Active: true},
		&models.Batch{ID: "batch-2", Name: "Evening Hifz", Active: true},
	)
	enrollments := newBatchEnrollmentStub()
	enrollments.enrollments["enr-1"] = &models.Enrollment{ID: "enr-1", ProgramProfileID: "prof-1", Status: models.EnrollmentStatusEnrolled}
	enrollments.enrollments["enr-2"] = &models.Enrollment{ID: "enr-2", ProgramProfileID: "prof-2", Status: models.EnrollmentStatusOnHold}
	enrollments.roster["batch-1"] = []models.EnrollmentDetail{
		{Enrollment: models.Enrollment{ID: "enr-1"}},
		{Enrollment: models.Enrollment{ID: "enr-2"}},
	}
	profiles := profileFinderStub{profiles: map[string]*models.ProgramProfile{
		"prof-1": activeProfile("prof-1", models.ProgramMahad),
		"prof-2": activeProfile("prof-2", models.ProgramMahad),
	}}
	svc := newTestBatchService(batches, enrollments, profiles)

	result, err := svc.TransferAll(context.Background(), "batch-1", "batch-2")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Assigned)
	assert.Empty(t, result.Failed)
	assert.Equal(t, "batch-2", enrollments.batchMoves["enr-1"])
	assert.Equal(t, "batch-2", enrollments.batchMoves["enr-2"])
}

func TestBatchServiceTransferAllEmptyRoster(t *testing.T) {
	batches := newBatchRepoStub(&models.Batch{ID: "batch-1", Name: "Morning Hifz", Active: true})
	svc := newTestBatchService(batches, newBatchEnrollmentStub(), profileFinderStub{})

	result, err := svc.TransferAll(context.Background(), "batch-1", "batch-2")
	require.NoError(t, err)
	assert.Equal(t, 0, result.Assigned)
}

func TestBatchServiceDeactivateMissing(t *testing.T) {
	svc := newTestBatchService(newBatchRepoStub(), newBatchEnrollmentStub(), profileFinderStub{})

	err := svc.Deactivate(context.Background(), "batch-missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
