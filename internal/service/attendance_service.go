package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/markazapp/markaz-admin-api/internal/models"
	appErrors "github.com/markazapp/markaz-admin-api/pkg/errors"
)

type attendanceRepository interface {
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceDetail, int, error)
	Upsert(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error)
	BulkUpsert(ctx context.Context, records []models.AttendanceRecord, atomic bool) ([]models.BulkItemError, error)
	Summary(ctx context.Context, enrollmentID string) (*models.AttendanceSummary, error)
}

type attendanceEnrollmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
}

// MarkAttendanceRequest marks one enrollment on one date. Marking the
// same enrollment and date again overwrites the earlier status.
type MarkAttendanceRequest struct {
	EnrollmentID string                  `json:"enrollment_id" validate:"required"`
	Date         time.Time               `json:"date" validate:"required"`
	Status       models.AttendanceStatus `json:"status" validate:"required,oneof=PRESENT ABSENT LATE EXCUSED"`
	Notes        *string                 `json:"notes"`
}

// BulkMarkAttendanceRequest marks several enrollments at once.
type BulkMarkAttendanceRequest struct {
	Records []MarkAttendanceRequest  `json:"records" validate:"required,min=1,dive"`
	Mode    models.BulkOperationMode `json:"mode" validate:"omitempty,oneof=atomic partial_on_error"`
}

// BulkMarkAttendanceResult reports a bulk marking outcome.
type BulkMarkAttendanceResult struct {
	Marked int                    `json:"marked"`
	Failed []models.BulkItemError `json:"failed,omitempty"`
}

// AttendanceService records daily attendance against enrollments.
type AttendanceService struct {
	attendance  attendanceRepository
	enrollments attendanceEnrollmentRepository
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(attendance attendanceRepository, enrollments attendanceEnrollmentRepository, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{attendance: attendance, enrollments: enrollments, validator: validate, logger: logger}
}

// List returns attendance records and pagination metadata.
func (s *AttendanceService) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceDetail, *models.Pagination, error) {
	records, total, err := s.attendance.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return records, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Mark records attendance for one enrollment on one date.
func (s *AttendanceService) Mark(ctx context.Context, req MarkAttendanceRequest) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	enrollment, err := s.enrollments.FindByID(ctx, req.EnrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status == models.EnrollmentStatusWithdrawn {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment is withdrawn")
	}

	record := &models.AttendanceRecord{
		EnrollmentID: req.EnrollmentID,
		Date:         truncateToDay(req.Date),
		Status:       req.Status,
		Notes:        req.Notes,
	}
	stored, err := s.attendance.Upsert(ctx, record)
	if err != nil {
		return nil, appErrors.FromError(err)
	}
	return stored, nil
}

// BulkMark records attendance for several enrollments. In atomic mode
// any failure rolls the whole batch back; in partial mode failures are
// reported per record.
func (s *AttendanceService) BulkMark(ctx context.Context, req BulkMarkAttendanceRequest) (*BulkMarkAttendanceResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk attendance payload")
	}
	atomic := req.Mode != models.BulkModePartialOnError

	records := make([]models.AttendanceRecord, 0, len(req.Records))
	for _, item := range req.Records {
		records = append(records, models.AttendanceRecord{
			EnrollmentID: item.EnrollmentID,
			Date:         truncateToDay(item.Date),
			Status:       item.Status,
			Notes:        item.Notes,
		})
	}

	failed, err := s.attendance.BulkUpsert(ctx, records, atomic)
	if err != nil {
		return nil, appErrors.FromError(err)
	}
	return &BulkMarkAttendanceResult{Marked: len(records) - len(failed), Failed: failed}, nil
}

// Summary aggregates one enrollment's attendance counts and rate.
func (s *AttendanceService) Summary(ctx context.Context, enrollmentID string) (*models.AttendanceSummary, error) {
	if _, err := s.enrollments.FindByID(ctx, enrollmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	summary, err := s.attendance.Summary(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance summary")
	}
	if summary.Total > 0 {
		summary.Rate = float64(summary.Present+summary.Late) / float64(summary.Total)
	}
	return summary, nil
}

func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
