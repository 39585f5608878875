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

type attendanceRepoStub struct {
	upserts     []models.AttendanceRecord
	bulkRecords []models.AttendanceRecord
	bulkAtomic  bool
	bulkFailed  []models.BulkItemError
	summary     *models.AttendanceSummary
}

func (s *attendanceRepoStub) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceDetail, int, error) {
	return nil, 0, nil
}

func (s *attendanceRepoStub) Upsert(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	s.upserts = append(s.upserts, *record)
	stored := *record
	stored.ID = "att-1"
	return &stored, nil
}

func (s *attendanceRepoStub) BulkUpsert(ctx context.Context, records []models.AttendanceRecord, atomic bool) ([]models.BulkItemError, error) {
	s.bulkRecords = records
	s.bulkAtomic = atomic
	return s.bulkFailed, nil
}

func (s *attendanceRepoStub) Summary(ctx context.Context, enrollmentID string) (*models.AttendanceSummary, error) {
	return s.summary, nil
}

type attendanceEnrollmentStub struct {
	enrollments map[string]*models.Enrollment
}

func (s attendanceEnrollmentStub) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := s.enrollments[id]; ok {
		return e, nil
	}
	return nil, sql.ErrNoRows
}

func newTestAttendanceService(repo *attendanceRepoStub, enrollments map[string]*models.Enrollment) *AttendanceService {
	return NewAttendanceService(repo, attendanceEnrollmentStub{enrollments: enrollments}, nil, zap.NewNop())
}

func TestAttendanceServiceMarkTruncatesDate(t *testing.T) {
	repo := &attendanceRepoStub{}
	svc := newTestAttendanceService(repo, map[string]*models.Enrollment{
		"enr-1": {ID: "enr-1", Status: models.EnrollmentStatusEnrolled},
	})

	stored, err := svc.Mark(context.Background(), MarkAttendanceRequest{
		EnrollmentID: "enr-1",
		Date:         time.Date(2025, 3, 10, 14, 30, 0, 0, time.FixedZone("CST", -6*3600)),
		Status:       models.AttendanceStatusPresent,
	})
	require.NoError(t, err)
	assert.Equal(t, "att-1", stored.ID)
	require.Len(t, repo.upserts, 1)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), repo.upserts[0].Date)
}

func TestAttendanceServiceMarkRejectsWithdrawnEnrollment(t *testing.T) {
	repo := &attendanceRepoStub{}
	svc := newTestAttendanceService(repo, map[string]*models.Enrollment{
		"enr-1": {ID: "enr-1", Status: models.EnrollmentStatusWithdrawn},
	})

	_, err := svc.Mark(context.Background(), MarkAttendanceRequest{
		EnrollmentID: "enr-1",
		Date:         time.Now(),
		Status:       models.AttendanceStatusPresent,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.upserts)
}

func TestAttendanceServiceMarkUnknownEnrollment(t *testing.T) {
	svc := newTestAttendanceService(&attendanceRepoStub{}, nil)

	_, err := svc.Mark(context.Background(), MarkAttendanceRequest{
		EnrollmentID: "enr-missing",
		Date:         time.Now(),
		Status:       models.AttendanceStatusAbsent,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAttendanceServiceBulkMarkDefaultsToAtomic(t *testing.T) {
	repo := &attendanceRepoStub{}
	svc := newTestAttendanceService(repo, nil)

	result, err := svc.BulkMark(context.Background(), BulkMarkAttendanceRequest{
		Records: []MarkAttendanceRequest{
			{EnrollmentID: "enr-1", Date: time.Now(), Status: models.AttendanceStatusPresent},
			{EnrollmentID: "enr-2", Date: time.Now(), Status: models.AttendanceStatusLate},
		},
	})
	require.NoError(t, err)
	assert.True(t, repo.bulkAtomic)
	assert.Equal(t, 2, result.Marked)
}

func TestAttendanceServiceBulkMarkPartialReportsFailures(t *testing.T) {
	repo := &attendanceRepoStub{
		bulkFailed: []models.BulkItemError{{ID: "enr-2", Reason: "constraint violation"}},
	}
	svc := newTestAttendanceService(repo, nil)

	result, err := svc.BulkMark(context.Background(), BulkMarkAttendanceRequest{
		Records: []MarkAttendanceRequest{
			{EnrollmentID: "enr-1", Date: time.Now(), Status: models.AttendanceStatusPresent},
			{EnrollmentID: "enr-2", Date: time.Now(), Status: models.AttendanceStatusPresent},
		},
		Mode: models.BulkModePartialOnError,
	})
	require.NoError(t, err)
	assert.False(t, repo.bulkAtomic)
	assert.Equal(t, 1, result.Marked)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "enr-2", result.Failed[0].ID)
}

func TestAttendanceServiceSummaryComputesRate(t *testing.T) {
	repo := &attendanceRepoStub{
		summary: &models.AttendanceSummary{EnrollmentID: "enr-1", Present: 8, Late: 1, Absent: 1, Total: 10},
	}
	svc := newTestAttendanceService(repo, map[string]*models.Enrollment{
		"enr-1": {ID: "enr-1", Status: models.EnrollmentStatusEnrolled},
	})

	summary, err := svc.Summary(context.Background(), "enr-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.9, summary.Rate, 0.0001)
}
