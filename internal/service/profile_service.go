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
	"github.com/markazapp/markaz-admin-api/pkg/stripeclient"
)

type profileRepository interface {
	List(ctx context.Context, filter models.ProgramProfileFilter) ([]models.ProgramProfileDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.ProgramProfile, error)
	FindByPersonAndProgram(ctx context.Context, personID string, program models.Program) (*models.ProgramProfile, error)
	Create(ctx context.Context, profile *models.ProgramProfile) error
	Update(ctx context.Context, profile *models.ProgramProfile) error
	UpdateStatus(ctx context.Context, id string, status models.ProfileStatus) error
	ListByFamilyReference(ctx context.Context, familyReferenceID string) ([]models.ProgramProfile, error)
	HardDelete(ctx context.Context, id string) error
	HardDeleteFamily(ctx context.Context, familyReferenceID string) ([]string, error)
}

type profileEnrollmentRepository interface {
	ListOpenByProfile(ctx context.Context, programProfileID string) ([]models.Enrollment, error)
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, endDate *time.Time) error
}

type profileBillingRepository interface {
	DeactivateAssignmentsByProfile(ctx context.Context, programProfileID string) (int64, error)
	ListSubscriptionsByProfiles(ctx context.Context, profileIDs []string) ([]models.Subscription, error)
	UpdateSubscriptionStatus(ctx context.Context, stripeSubscriptionID string, status models.SubscriptionStatus, canceledAt *time.Time) error
}

// SubscriptionCanceler cancels a Stripe subscription on the account
// that owns it.
type SubscriptionCanceler interface {
	CancelSubscription(ctx context.Context, subscriptionID string) (*stripeclient.SubscriptionInfo, error)
}

type auditRecorder interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// CreateProfileRequest holds payload for creating a program profile.
type CreateProfileRequest struct {
	PersonID          string         `json:"person_id" validate:"required"`
	Program           models.Program `json:"program" validate:"required,oneof=MAHAD DUGSI"`
	EducationLevel    string         `json:"education_level"`
	GradeLevel        string         `json:"grade_level"`
	FamilyReferenceID *string        `json:"family_reference_id"`
}

// UpdateProfileRequest holds payload for updating a program profile.
type UpdateProfileRequest struct {
	EducationLevel    string  `json:"education_level"`
	GradeLevel        string  `json:"grade_level"`
	FamilyReferenceID *string `json:"family_reference_id"`
}

// DeleteProfileResult reports what a profile deletion touched. Mahad
// deletions withdraw; Dugsi deletions remove rows and may take sibling
// profiles and the shared subscription with them.
type DeleteProfileResult struct {
	Withdrawn             bool     `json:"withdrawn"`
	DeletedProfileIDs     []string `json:"deleted_profile_ids"`
	CanceledSubscriptions []string `json:"canceled_subscriptions"`
}

// ProfileService handles program profile use-cases.
type ProfileService struct {
	profiles    profileRepository
	enrollments profileEnrollmentRepository
	billing     profileBillingRepository
	cancelers   map[models.Program]SubscriptionCanceler
	audit       auditRecorder
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewProfileService constructs the profile service.
func NewProfileService(
	profiles profileRepository,
	enrollments profileEnrollmentRepository,
	billing profileBillingRepository,
	cancelers map[models.Program]SubscriptionCanceler,
	audit auditRecorder,
	validate *validator.Validate,
	logger *zap.Logger,
) *ProfileService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileService{
		profiles:    profiles,
		enrollments: enrollments,
		billing:     billing,
		cancelers:   cancelers,
		audit:       audit,
		validator:   validate,
		logger:      logger,
	}
}

// List returns program profiles and pagination metadata.
func (s *ProfileService) List(ctx context.Context, filter models.ProgramProfileFilter) ([]models.ProgramProfileDetail, *models.Pagination, error) {
	profiles, total, err := s.profiles.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list profiles")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return profiles, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one program profile.
func (s *ProfileService) Get(ctx context.Context, id string) (*models.ProgramProfile, error) {
	profile, err := s.profiles.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}
	return profile, nil
}

// Create registers a program profile. A person holds at most one
// profile per program.
func (s *ProfileService) Create(ctx context.Context, req CreateProfileRequest) (*models.ProgramProfile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}
	existing, err := s.profiles.FindByPersonAndProgram(ctx, req.PersonID, req.Program)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing profile")
	}
	if existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "person already has a profile in this program")
	}
	profile := &models.ProgramProfile{
		PersonID:          req.PersonID,
		Program:           req.Program,
		EducationLevel:    req.EducationLevel,
		GradeLevel:        req.GradeLevel,
		FamilyReferenceID: req.FamilyReferenceID,
		Status:            models.ProfileStatusActive,
	}
	if err := s.profiles.Create(ctx, profile); err != nil {
		return nil, appErrors.FromError(err)
	}
	return profile, nil
}

// Update modifies the academic fields of a profile.
func (s *ProfileService) Update(ctx context.Context, id string, req UpdateProfileRequest) (*models.ProgramProfile, error) {
	profile, err := s.profiles.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}
	profile.EducationLevel = req.EducationLevel
	profile.GradeLevel = req.GradeLevel
	profile.FamilyReferenceID = req.FamilyReferenceID
	if err := s.profiles.Update(ctx, profile); err != nil {
		return nil, appErrors.FromError(err)
	}
	return profile, nil
}

// Delete removes a profile according to program policy. Mahad profiles
// are withdrawn in place to preserve the billing audit trail. Dugsi
// profiles are removed from the database; when the profile shares a
// family reference the whole family's profiles go with it and the
// shared subscription is canceled once.
func (s *ProfileService) Delete(ctx context.Context, id string, actorID string) (*DeleteProfileResult, error) {
	profile, err := s.profiles.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}

	var result *DeleteProfileResult
	switch profile.Program {
	case models.ProgramMahad:
		result, err = s.withdrawMahad(ctx, profile)
	case models.ProgramDugsi:
		result, err = s.hardDeleteDugsi(ctx, profile)
	default:
		return nil, appErrors.Clone(appErrors.ErrProgramMismatch, "unknown program on profile")
	}
	if err != nil {
		return nil, err
	}

	action := models.AuditActionProfileDelete
	if len(result.DeletedProfileIDs) > 1 {
		action = models.AuditActionFamilyDelete
	}
	if s.audit != nil {
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &actorID,
			Action:     action,
			Resource:   "program_profile",
			ResourceID: &id,
		}); err != nil {
			s.logger.Warn("failed to record profile delete audit log", zap.Error(err))
		}
	}
	return result, nil
}

func (s *ProfileService) withdrawMahad(ctx context.Context, profile *models.ProgramProfile) (*DeleteProfileResult, error) {
	open, err := s.enrollments.ListOpenByProfile(ctx, profile.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load open enrollments")
	}
	now := time.Now().UTC()
	for _, enrollment := range open {
		if !enrollment.Status.CanTransitionTo(models.EnrollmentStatusWithdrawn) {
			continue
		}
		if err := s.enrollments.UpdateStatus(ctx, enrollment.ID, models.EnrollmentStatusWithdrawn, &now); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to withdraw enrollment")
		}
	}
	if _, err := s.billing.DeactivateAssignmentsByProfile(ctx, profile.ID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate billing assignments")
	}
	if err := s.profiles.UpdateStatus(ctx, profile.ID, models.ProfileStatusWithdrawn); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to withdraw profile")
	}
	return &DeleteProfileResult{Withdrawn: true, DeletedProfileIDs: []string{profile.ID}}, nil
}

func (s *ProfileService) hardDeleteDugsi(ctx context.Context, profile *models.ProgramProfile) (*DeleteProfileResult, error) {
	targetIDs := []string{profile.ID}
	if profile.FamilyReferenceID != nil && *profile.FamilyReferenceID != "" {
		family, err := s.profiles.ListByFamilyReference(ctx, *profile.FamilyReferenceID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load family profiles")
		}
		targetIDs = targetIDs[:0]
		for _, member := range family {
			targetIDs = append(targetIDs, member.ID)
		}
	}

	canceled, err := s.cancelSubscriptionsOnce(ctx, profile.Program, targetIDs)
	if err != nil {
		return nil, err
	}

	var deleted []string
	if profile.FamilyReferenceID != nil && *profile.FamilyReferenceID != "" {
		deleted, err = s.profiles.HardDeleteFamily(ctx, *profile.FamilyReferenceID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete family profiles")
		}
	} else {
		if err := s.profiles.HardDelete(ctx, profile.ID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete profile")
		}
		deleted = []string{profile.ID}
	}
	return &DeleteProfileResult{DeletedProfileIDs: deleted, CanceledSubscriptions: canceled}, nil
}

// cancelSubscriptionsOnce cancels every distinct subscription covering
// the given profiles exactly once, no matter how many profiles share it.
func (s *ProfileService) cancelSubscriptionsOnce(ctx context.Context, program models.Program, profileIDs []string) ([]string, error) {
	subs, err := s.billing.ListSubscriptionsByProfiles(ctx, profileIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subscriptions")
	}

	canceler := s.cancelers[program]
	seen := make(map[string]bool)
	var canceled []string
	for _, sub := range subs {
		if sub.StripeSubscriptionID == "" || seen[sub.StripeSubscriptionID] {
			continue
		}
		seen[sub.StripeSubscriptionID] = true
		if sub.Status == models.SubscriptionStatusCanceled {
			continue
		}
		now := time.Now().UTC()
		if canceler != nil {
			if _, err := canceler.CancelSubscription(ctx, sub.StripeSubscriptionID); err != nil {
				s.logger.Error("stripe cancel failed",
					zap.String("subscription_id", sub.StripeSubscriptionID), zap.Error(err))
				continue
			}
		}
		if err := s.billing.UpdateSubscriptionStatus(ctx, sub.StripeSubscriptionID, models.SubscriptionStatusCanceled, &now); err != nil {
			s.logger.Warn("failed to record canceled subscription",
				zap.String("subscription_id", sub.StripeSubscriptionID), zap.Error(err))
		}
		canceled = append(canceled, sub.StripeSubscriptionID)
	}
	return canceled, nil
}
