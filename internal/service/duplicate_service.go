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

type duplicateProfileRepository interface {
	FindByID(ctx context.Context, id string) (*models.ProgramProfile, error)
	UpdateStatus(ctx context.Context, id string, status models.ProfileStatus) error
}

type duplicateEnrollmentRepository interface {
	ListOpenByProfile(ctx context.Context, programProfileID string) ([]models.Enrollment, error)
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, endDate *time.Time) error
}

type duplicateBillingRepository interface {
	DeactivateAssignmentsByProfile(ctx context.Context, programProfileID string) (int64, error)
}

// ResolveDuplicatesRequest merges duplicate profiles into one survivor.
// MergeData is accepted for API compatibility but performs no field
// merge; resolution is a soft retire of the duplicates.
type ResolveDuplicatesRequest struct {
	KeepProfileID    string   `json:"keep_profile_id" validate:"required"`
	DeleteProfileIDs []string `json:"delete_profile_ids" validate:"required,min=1"`
	MergeData        bool     `json:"merge_data"`
}

// ResolveDuplicatesResult reports per-record outcomes. Resolution is
// best-effort: a failed record is reported, not rolled back.
type ResolveDuplicatesResult struct {
	KeptProfileID string                 `json:"kept_profile_id"`
	Resolved      []string               `json:"resolved"`
	Failed        []models.BulkItemError `json:"failed,omitempty"`
}

// DuplicateService retires duplicate program profiles in favour of a
// surviving record.
type DuplicateService struct {
	profiles    duplicateProfileRepository
	enrollments duplicateEnrollmentRepository
	billing     duplicateBillingRepository
	audit       auditRecorder
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewDuplicateService constructs the duplicate service.
func NewDuplicateService(
	profiles duplicateProfileRepository,
	enrollments duplicateEnrollmentRepository,
	billing duplicateBillingRepository,
	audit auditRecorder,
	validate *validator.Validate,
	logger *zap.Logger,
) *DuplicateService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DuplicateService{
		profiles:    profiles,
		enrollments: enrollments,
		billing:     billing,
		audit:       audit,
		validator:   validate,
		logger:      logger,
	}
}

// Resolve withdraws every duplicate profile's enrollments, deactivates
// their billing assignments and marks the profiles WITHDRAWN. The keep
// profile is untouched beyond validation that it exists and is active.
func (s *DuplicateService) Resolve(ctx context.Context, req ResolveDuplicatesRequest, actorID string) (*ResolveDuplicatesResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid resolve payload")
	}
	if req.MergeData {
		s.logger.Info("merge_data requested but field merge is not performed",
			zap.String("keep_profile_id", req.KeepProfileID))
	}

	keep, err := s.profiles.FindByID(ctx, req.KeepProfileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "keep profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load keep profile")
	}
	if keep.Status != models.ProfileStatusActive {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "keep profile is withdrawn")
	}

	result := &ResolveDuplicatesResult{KeptProfileID: keep.ID}
	for _, deleteID := range req.DeleteProfileIDs {
		if deleteID == keep.ID {
			result.Failed = append(result.Failed, models.BulkItemError{ID: deleteID, Reason: "cannot delete the keep profile"})
			continue
		}
		if err := s.retireProfile(ctx, deleteID); err != nil {
			result.Failed = append(result.Failed, models.BulkItemError{ID: deleteID, Reason: err.Error()})
			continue
		}
		result.Resolved = append(result.Resolved, deleteID)
	}

	if s.audit != nil {
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &actorID,
			Action:     models.AuditActionDuplicateResolve,
			Resource:   "program_profile",
			ResourceID: &keep.ID,
		}); err != nil {
			s.logger.Warn("failed to record duplicate resolve audit log", zap.Error(err))
		}
	}
	return result, nil
}

func (s *DuplicateService) retireProfile(ctx context.Context, profileID string) error {
	profile, err := s.profiles.FindByID(ctx, profileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errors.New("profile not found")
		}
		return errors.New("failed to load profile")
	}

	open, err := s.enrollments.ListOpenByProfile(ctx, profile.ID)
	if err != nil {
		return errors.New("failed to load enrollments")
	}
	now := time.Now().UTC()
	for _, enrollment := range open {
		if !enrollment.Status.CanTransitionTo(models.EnrollmentStatusWithdrawn) {
			continue
		}
		if err := s.enrollments.UpdateStatus(ctx, enrollment.ID, models.EnrollmentStatusWithdrawn, &now); err != nil {
			return errors.New("failed to withdraw enrollment")
		}
	}

	if _, err := s.billing.DeactivateAssignmentsByProfile(ctx, profile.ID); err != nil {
		return errors.New("failed to deactivate billing assignments")
	}
	if err := s.profiles.UpdateStatus(ctx, profile.ID, models.ProfileStatusWithdrawn); err != nil {
		return errors.New("failed to withdraw profile")
	}
	return nil
}
