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

type checkInRepository interface {
	FindByPersonAndDate(ctx context.Context, personID string, date time.Time) (*models.TeacherCheckIn, error)
	Create(ctx context.Context, checkIn *models.TeacherCheckIn) error
	SetCheckOut(ctx context.Context, id string, checkOutAt time.Time) error
	List(ctx context.Context, filter models.CheckInFilter) ([]models.TeacherCheckInDetail, int, error)
}

// CheckInRequest opens a teacher's presence record for today.
type CheckInRequest struct {
	PersonID string         `json:"person_id" validate:"required"`
	Program  models.Program `json:"program" validate:"required,oneof=MAHAD DUGSI"`
	Notes    *string        `json:"notes"`
}

// CheckInService tracks teacher presence per day. One check-in per
// teacher per date; checking out closes the open record.
type CheckInService struct {
	checkIns  checkInRepository
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewCheckInService constructs the check-in service.
func NewCheckInService(checkIns checkInRepository, validate *validator.Validate, logger *zap.Logger) *CheckInService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CheckInService{checkIns: checkIns, validator: validate, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// List returns check-ins and pagination metadata.
func (s *CheckInService) List(ctx context.Context, filter models.CheckInFilter) ([]models.TeacherCheckInDetail, *models.Pagination, error) {
	checkIns, total, err := s.checkIns.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list check-ins")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return checkIns, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// CheckIn opens today's presence record for a teacher. A second
// check-in on the same date is rejected.
func (s *CheckInService) CheckIn(ctx context.Context, req CheckInRequest) (*models.TeacherCheckIn, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid check-in payload")
	}

	now := s.now()
	today := truncateToDay(now)
	existing, err := s.checkIns.FindByPersonAndDate(ctx, req.PersonID, today)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing check-in")
	}
	if existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "already checked in today")
	}

	checkIn := &models.TeacherCheckIn{
		PersonID:  req.PersonID,
		Program:   req.Program,
		Date:      today,
		CheckInAt: now,
		Notes:     req.Notes,
	}
	if err := s.checkIns.Create(ctx, checkIn); err != nil {
		return nil, appErrors.FromError(err)
	}
	return checkIn, nil
}

// CheckOut closes today's open record. Checking out without a prior
// check-in, or twice, is rejected.
func (s *CheckInService) CheckOut(ctx context.Context, personID string) (*models.TeacherCheckIn, error) {
	if personID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "person id is required")
	}

	now := s.now()
	today := truncateToDay(now)
	existing, err := s.checkIns.FindByPersonAndDate(ctx, personID, today)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "no check-in recorded today")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load check-in")
	}
	if existing.CheckOutAt != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "already checked out today")
	}

	if err := s.checkIns.SetCheckOut(ctx, existing.ID, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record check-out")
	}
	existing.CheckOutAt = &now
	return existing, nil
}
