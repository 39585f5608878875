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

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	ExistsOpen(ctx context.Context, programProfileID string) (bool, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, endDate *time.Time) error
	UpdateBatch(ctx context.Context, id string, batchID *string) error
}

type enrollmentProfileRepository interface {
	FindByID(ctx context.Context, id string) (*models.ProgramProfile, error)
}

type enrollmentBatchRepository interface {
	FindByID(ctx context.Context, id string) (*models.Batch, error)
}

// CreateEnrollmentRequest holds payload for enrolling a profile.
type CreateEnrollmentRequest struct {
	ProgramProfileID string                  `json:"program_profile_id" validate:"required"`
	BatchID          *string                 `json:"batch_id"`
	Status           models.EnrollmentStatus `json:"status" validate:"omitempty,oneof=REGISTERED ENROLLED"`
	StartDate        *time.Time              `json:"start_date"`
}

// TransitionRequest moves an enrollment to a new status.
type TransitionRequest struct {
	Status  models.EnrollmentStatus `json:"status" validate:"required,oneof=REGISTERED ENROLLED ON_HOLD WITHDRAWN COMPLETED"`
	EndDate *time.Time              `json:"end_date"`
}

// EnrollmentService handles enrollment lifecycle use-cases.
type EnrollmentService struct {
	enrollments enrollmentRepository
	profiles    enrollmentProfileRepository
	batches     enrollmentBatchRepository
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewEnrollmentService constructs the enrollment service.
func NewEnrollmentService(
	enrollments enrollmentRepository,
	profiles enrollmentProfileRepository,
	batches enrollmentBatchRepository,
	validate *validator.Validate,
	logger *zap.Logger,
) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		enrollments: enrollments,
		profiles:    profiles,
		batches:     batches,
		validator:   validate,
		logger:      logger,
	}
}

// List returns enrollments and pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.enrollments.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return enrollments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns detailed enrollment information.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	enrollment, err := s.enrollments.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

// Create enrolls a program profile. Dugsi enrollments may not carry a
// batch, and a profile may hold only one open enrollment at a time.
func (s *EnrollmentService) Create(ctx context.Context, req CreateEnrollmentRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	profile, err := s.profiles.FindByID(ctx, req.ProgramProfileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "program profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}
	if profile.Status != models.ProfileStatusActive {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "profile is withdrawn")
	}

	if req.BatchID != nil && *req.BatchID != "" {
		if profile.Program != models.ProgramMahad {
			return nil, appErrors.Clone(appErrors.ErrProgramMismatch, "dugsi enrollments cannot be assigned to a batch")
		}
		batch, err := s.batches.FindByID(ctx, *req.BatchID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
		}
		if !batch.Active {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "batch is inactive")
		}
	}

	open, err := s.enrollments.ExistsOpen(ctx, req.ProgramProfileID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check open enrollments")
	}
	if open {
		return nil, appErrors.Clone(appErrors.ErrConflict, "profile already has an open enrollment")
	}

	status := req.Status
	if status == "" {
		status = models.EnrollmentStatusRegistered
	}
	start := time.Now().UTC()
	if req.StartDate != nil {
		start = req.StartDate.UTC()
	}
	enrollment := &models.Enrollment{
		ProgramProfileID: req.ProgramProfileID,
		BatchID:          req.BatchID,
		Status:           status,
		StartDate:        start,
	}
	if err := s.enrollments.Create(ctx, enrollment); err != nil {
		return nil, appErrors.FromError(err)
	}
	return enrollment, nil
}

// Transition moves an enrollment to a new status, validating against
// the allow-list before any write. Transitioning to WITHDRAWN sets the
// end date to now unless an explicit end date is supplied.
func (s *EnrollmentService) Transition(ctx context.Context, id string, req TransitionRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid transition payload")
	}

	enrollment, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	if !enrollment.Status.CanTransitionTo(req.Status) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			"cannot transition from "+string(enrollment.Status)+" to "+string(req.Status))
	}

	endDate := req.EndDate
	if endDate == nil && (req.Status == models.EnrollmentStatusWithdrawn || req.Status == models.EnrollmentStatusCompleted) {
		now := time.Now().UTC()
		endDate = &now
	}
	if err := s.enrollments.UpdateStatus(ctx, id, req.Status, endDate); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment status")
	}

	enrollment.Status = req.Status
	enrollment.EndDate = endDate
	return enrollment, nil
}

// AssignBatch places a Mahad enrollment into a batch, or clears the
// assignment when batchID is nil.
func (s *EnrollmentService) AssignBatch(ctx context.Context, id string, batchID *string) (*models.Enrollment, error) {
	enrollment, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment is closed")
	}

	if batchID != nil && *batchID != "" {
		profile, err := s.profiles.FindByID(ctx, enrollment.ProgramProfileID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
		}
		if profile.Program != models.ProgramMahad {
			return nil, appErrors.Clone(appErrors.ErrProgramMismatch, "dugsi enrollments cannot be assigned to a batch")
		}
		batch, err := s.batches.FindByID(ctx, *batchID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
		}
		if !batch.Active {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "batch is inactive")
		}
	}

	if err := s.enrollments.UpdateBatch(ctx, id, batchID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update batch assignment")
	}
	enrollment.BatchID = batchID
	return enrollment, nil
}
