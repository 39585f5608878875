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

type batchRepository interface {
	List(ctx context.Context, filter models.BatchFilter) ([]models.BatchDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Batch, error)
	Create(ctx context.Context, batch *models.Batch) error
	Update(ctx context.Context, batch *models.Batch) error
	Deactivate(ctx context.Context, id string) error
}

type batchEnrollmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	ListByBatch(ctx context.Context, batchID string) ([]models.EnrollmentDetail, error)
	UpdateBatch(ctx context.Context, id string, batchID *string) error
}

type batchProfileRepository interface {
	FindByID(ctx context.Context, id string) (*models.ProgramProfile, error)
}

// CreateBatchRequest holds payload for creating a batch.
type CreateBatchRequest struct {
	Name          string  `json:"name" validate:"required"`
	Schedule      string  `json:"schedule"`
	LeadTeacherID *string `json:"lead_teacher_id"`
}

// UpdateBatchRequest holds payload for updating a batch.
type UpdateBatchRequest struct {
	Name          string  `json:"name" validate:"required"`
	Schedule      string  `json:"schedule"`
	LeadTeacherID *string `json:"lead_teacher_id"`
	Active        bool    `json:"active"`
}

// BulkAssignRequest assigns several enrollments to one batch.
type BulkAssignRequest struct {
	EnrollmentIDs []string `json:"enrollment_ids" validate:"required,min=1"`
	BatchID       string   `json:"batch_id" validate:"required"`
}

// BulkAssignResult reports per-item outcomes of a best-effort bulk
// assignment.
type BulkAssignResult struct {
	Assigned int                    `json:"assigned"`
	Failed   []models.BulkItemError `json:"failed,omitempty"`
}

// BatchService manages Mahad cohorts and their membership.
type BatchService struct {
	batches     batchRepository
	enrollments batchEnrollmentRepository
	profiles    batchProfileRepository
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewBatchService constructs the batch service.
func NewBatchService(batches batchRepository, enrollments batchEnrollmentRepository, profiles batchProfileRepository, validate *validator.Validate, logger *zap.Logger) *BatchService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchService{batches: batches, enrollments: enrollments, profiles: profiles, validator: validate, logger: logger}
}

// List returns batches with enrolled counts and pagination metadata.
func (s *BatchService) List(ctx context.Context, filter models.BatchFilter) ([]models.BatchDetail, *models.Pagination, error) {
	batches, total, err := s.batches.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list batches")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return batches, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one batch.
func (s *BatchService) Get(ctx context.Context, id string) (*models.Batch, error) {
	batch, err := s.batches.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	return batch, nil
}

// Roster returns the enrollments currently assigned to a batch.
func (s *BatchService) Roster(ctx context.Context, id string) ([]models.EnrollmentDetail, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	roster, err := s.enrollments.ListByBatch(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch roster")
	}
	return roster, nil
}

// Create registers a new batch.
func (s *BatchService) Create(ctx context.Context, req CreateBatchRequest) (*models.Batch, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch payload")
	}
	batch := &models.Batch{
		Name:          req.Name,
		Schedule:      req.Schedule,
		LeadTeacherID: req.LeadTeacherID,
		Active:        true,
	}
	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, appErrors.FromError(err)
	}
	return batch, nil
}

// Update modifies an existing batch.
func (s *BatchService) Update(ctx context.Context, id string, req UpdateBatchRequest) (*models.Batch, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch payload")
	}
	batch, err := s.batches.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	batch.Name = req.Name
	batch.Schedule = req.Schedule
	batch.LeadTeacherID = req.LeadTeacherID
	batch.Active = req.Active
	if err := s.batches.Update(ctx, batch); err != nil {
		return nil, appErrors.FromError(err)
	}
	return batch, nil
}

// Deactivate retires a batch without touching its enrollments.
func (s *BatchService) Deactivate(ctx context.Context, id string) error {
	if err := s.batches.Deactivate(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate batch")
	}
	return nil
}

// BulkAssign moves enrollments into a batch one by one, reporting
// failures per item instead of rolling back prior assignments. Batches
// are Mahad cohorts, so enrollments from other programs are rejected
// per item.
func (s *BatchService) BulkAssign(ctx context.Context, req BulkAssignRequest) (*BulkAssignResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk assign payload")
	}
	batch, err := s.batches.FindByID(ctx, req.BatchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	if !batch.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "batch is inactive")
	}

	result := &BulkAssignResult{}
	for _, enrollmentID := range req.EnrollmentIDs {
		enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
		if err != nil {
			reason := "enrollment not found"
			if !errors.Is(err, sql.ErrNoRows) {
				reason = "failed to load enrollment"
			}
			result.Failed = append(result.Failed, models.BulkItemError{ID: enrollmentID, Reason: reason})
			continue
		}
		if enrollment.Status.Terminal() {
			result.Failed = append(result.Failed, models.BulkItemError{ID: enrollmentID, Reason: "enrollment is closed"})
			continue
		}
		profile, err := s.profiles.FindByID(ctx, enrollment.ProgramProfileID)
		if err != nil {
			result.Failed = append(result.Failed, models.BulkItemError{ID: enrollmentID, Reason: "failed to load profile"})
			continue
		}
		if profile.Program != models.ProgramMahad {
			result.Failed = append(result.Failed, models.BulkItemError{ID: enrollmentID, Reason: "dugsi enrollments cannot be assigned to a batch"})
			continue
		}
		if err := s.enrollments.UpdateBatch(ctx, enrollmentID, &req.BatchID); err != nil {
			result.Failed = append(result.Failed, models.BulkItemError{ID: enrollmentID, Reason: "failed to assign batch"})
			continue
		}
		result.Assigned++
	}
	return result, nil
}

// TransferAll moves every enrollment of one batch to another,
// best-effort with per-item failures.
func (s *BatchService) TransferAll(ctx context.Context, fromBatchID, toBatchID string) (*BulkAssignResult, error) {
	if fromBatchID == toBatchID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "source and target batch are the same")
	}
	roster, err := s.Roster(ctx, fromBatchID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(roster))
	for _, enrollment := range roster {
		ids = append(ids, enrollment.ID)
	}
	if len(ids) == 0 {
		return &BulkAssignResult{}, nil
	}
	return s.BulkAssign(ctx, BulkAssignRequest{EnrollmentIDs: ids, BatchID: toBatchID})
}
