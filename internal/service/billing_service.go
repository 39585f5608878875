package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v78"
	"go.uber.org/zap"

	"github.com/markazapp/markaz-admin-api/internal/models"
	appErrors "github.com/markazapp/markaz-admin-api/pkg/errors"
	"github.com/markazapp/markaz-admin-api/pkg/jobs"
	"github.com/markazapp/markaz-admin-api/pkg/stripeclient"
)

type billingRepository interface {
	FindOrCreateAccount(ctx context.Context, program models.Program, payerEmail string, stripeCustomerID *string) (*models.BillingAccount, error)
	UpsertSubscription(ctx context.Context, sub *models.Subscription) (*models.Subscription, error)
	FindSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error)
	UpdateSubscriptionStatus(ctx context.Context, stripeSubscriptionID string, status models.SubscriptionStatus, canceledAt *time.Time) error
	AssignProfiles(ctx context.Context, subscriptionID string, profileIDs []string) error
	ListOpenSubscriptions(ctx context.Context, program models.Program) ([]models.Subscription, error)
	ListSubscriptionsByProfiles(ctx context.Context, profileIDs []string) ([]models.Subscription, error)
}

type billingProfileRepository interface {
	ListByGuardianEmail(ctx context.Context, program models.Program, email string) ([]models.ProgramProfile, error)
}

// StripeGateway is the Stripe surface the billing service needs. One
// gateway per program account.
type StripeGateway interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*stripeclient.SubscriptionInfo, error)
	CancelSubscription(ctx context.Context, subscriptionID string) (*stripeclient.SubscriptionInfo, error)
}

// LinkSubscriptionRequest attaches a Stripe subscription to the
// students it pays for.
type LinkSubscriptionRequest struct {
	Program              models.Program `json:"program" validate:"required,oneof=MAHAD DUGSI"`
	StripeSubscriptionID string         `json:"stripe_subscription_id" validate:"required"`
}

// LinkSubscriptionResult reports the linkage outcome.
type LinkSubscriptionResult struct {
	Subscription       *models.Subscription `json:"subscription"`
	AssignedProfileIDs []string             `json:"assigned_profile_ids"`
}

type syncPayload struct {
	StripeSubscriptionID string
}

// BillingService mirrors Stripe subscriptions locally and fans them
// out to program profiles. Each program bills through its own Stripe
// account.
type BillingService struct {
	billing  billingRepository
	profiles billingProfileRepository
	gateways map[models.Program]StripeGateway
	audit    auditRecorder
	logger   *zap.Logger
	queue    *jobs.Queue
}

// NewBillingService constructs the billing service and its sync queue.
func NewBillingService(
	billing billingRepository,
	profiles billingProfileRepository,
	gateways map[models.Program]StripeGateway,
	audit auditRecorder,
	logger *zap.Logger,
	syncWorkers, syncRetries int,
) *BillingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &BillingService{
		billing:  billing,
		profiles: profiles,
		gateways: gateways,
		audit:    audit,
		logger:   logger,
	}
	s.queue = jobs.NewQueue("billing-sync", s.handleSyncJob, jobs.QueueConfig{
		Workers:    syncWorkers,
		MaxRetries: syncRetries,
		RetryDelay: 5 * time.Second,
		Logger:     logger,
	})
	return s
}

// Start launches the sync worker pool.
func (s *BillingService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the sync worker pool.
func (s *BillingService) Stop() {
	s.queue.Stop()
}

func (s *BillingService) gateway(program models.Program) (StripeGateway, error) {
	gw, ok := s.gateways[program]
	if !ok || gw == nil {
		return nil, appErrors.Clone(appErrors.ErrProgramMismatch, "no stripe account configured for program "+string(program))
	}
	return gw, nil
}

// LinkSubscription fetches a subscription from the program's Stripe
// account, mirrors it locally and assigns it to every profile whose
// guardian email matches the payer. When no profile matches, the
// mirrored row is kept so a later attempt can link it, but the call
// fails with a not-found error naming the payer email.
func (s *BillingService) LinkSubscription(ctx context.Context, req LinkSubscriptionRequest, actorID string) (*LinkSubscriptionResult, error) {
	if !req.Program.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown program")
	}
	if req.StripeSubscriptionID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "stripe subscription id is required")
	}
	gw, err := s.gateway(req.Program)
	if err != nil {
		return nil, err
	}

	info, err := gw.GetSubscription(ctx, req.StripeSubscriptionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrProviderFailure.Code, appErrors.ErrProviderFailure.Status, "failed to fetch subscription from stripe")
	}
	if info.CustomerEmail == "" {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "stripe customer has no email")
	}

	account, err := s.billing.FindOrCreateAccount(ctx, req.Program, info.CustomerEmail, &info.CustomerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve billing account")
	}

	stored, err := s.billing.UpsertSubscription(ctx, subscriptionFromInfo(account, req.Program, info))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store subscription")
	}

	matched, err := s.profiles.ListByGuardianEmail(ctx, req.Program, info.CustomerEmail)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to match profiles by guardian email")
	}

	if len(matched) == 0 {
		s.logger.Warn("subscription mirrored with no matching profiles",
			zap.String("stripe_subscription_id", info.ID),
			zap.String("payer_email", info.CustomerEmail))
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no profiles found for email "+info.CustomerEmail)
	}

	ids := make([]string, 0, len(matched))
	for _, profile := range matched {
		ids = append(ids, profile.ID)
	}
	if err := s.billing.AssignProfiles(ctx, stored.ID, ids); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign profiles")
	}
	result := &LinkSubscriptionResult{Subscription: stored, AssignedProfileIDs: ids}

	if s.audit != nil {
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &actorID,
			Action:     models.AuditActionSubscriptionLink,
			Resource:   "subscription",
			ResourceID: &stored.ID,
			NewValues:  []byte(fmt.Sprintf(`{"stripe_subscription_id":%q,"assigned":%d}`, info.ID, len(result.AssignedProfileIDs))),
		}); err != nil {
			s.logger.Warn("failed to record subscription link audit log", zap.Error(err))
		}
	}
	return result, nil
}

// Cancel cancels a subscription in Stripe and mirrors the change.
func (s *BillingService) Cancel(ctx context.Context, program models.Program, stripeSubscriptionID, actorID string) (*models.Subscription, error) {
	gw, err := s.gateway(program)
	if err != nil {
		return nil, err
	}
	local, err := s.billing.FindSubscriptionByStripeID(ctx, stripeSubscriptionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subscription not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subscription")
	}
	if local.Status == models.SubscriptionStatusCanceled {
		return local, nil
	}

	info, err := gw.CancelSubscription(ctx, stripeSubscriptionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrProviderFailure.Code, appErrors.ErrProviderFailure.Status, "failed to cancel subscription in stripe")
	}
	canceledAt := info.CanceledAt
	if canceledAt == nil {
		now := time.Now().UTC()
		canceledAt = &now
	}
	if err := s.billing.UpdateSubscriptionStatus(ctx, stripeSubscriptionID, models.SubscriptionStatusCanceled, canceledAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record cancellation")
	}
	local.Status = models.SubscriptionStatusCanceled
	local.CanceledAt = canceledAt

	if s.audit != nil {
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &actorID,
			Action:     models.AuditActionSubscriptionCancel,
			Resource:   "subscription",
			ResourceID: &local.ID,
		}); err != nil {
			s.logger.Warn("failed to record cancel audit log", zap.Error(err))
		}
	}
	return local, nil
}

// ProfileSubscriptions returns the subscriptions paying for a profile.
func (s *BillingService) ProfileSubscriptions(ctx context.Context, profileID string) ([]models.Subscription, error) {
	subs, err := s.billing.ListSubscriptionsByProfiles(ctx, []string{profileID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subscriptions")
	}
	return subs, nil
}

// HandleWebhookEvent applies a verified Stripe event to the local
// mirror. Unknown event types are logged and acknowledged.
func (s *BillingService) HandleWebhookEvent(ctx context.Context, program models.Program, event stripe.Event) error {
	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "malformed subscription event")
		}
		return s.applyStatus(ctx, sub.ID, models.SubscriptionStatus(sub.Status), nil)
	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "malformed subscription event")
		}
		now := time.Now().UTC()
		canceledAt := &now
		if sub.CanceledAt > 0 {
			t := time.Unix(sub.CanceledAt, 0).UTC()
			canceledAt = &t
		}
		return s.applyStatus(ctx, sub.ID, models.SubscriptionStatusCanceled, canceledAt)
	case "invoice.payment_failed":
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "malformed invoice event")
		}
		if invoice.Subscription == nil {
			return nil
		}
		return s.applyStatus(ctx, invoice.Subscription.ID, models.SubscriptionStatusPastDue, nil)
	default:
		s.logger.Debug("ignoring stripe event",
			zap.String("program", string(program)), zap.String("type", string(event.Type)))
		return nil
	}
}

func (s *BillingService) applyStatus(ctx context.Context, stripeSubscriptionID string, status models.SubscriptionStatus, canceledAt *time.Time) error {
	err := s.billing.UpdateSubscriptionStatus(ctx, stripeSubscriptionID, status, canceledAt)
	if errors.Is(err, sql.ErrNoRows) {
		// Events can arrive for subscriptions never linked here.
		s.logger.Info("webhook for unknown subscription",
			zap.String("stripe_subscription_id", stripeSubscriptionID))
		return nil
	}
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply webhook status")
	}
	return nil
}

// SyncAll enqueues a refresh job for every open subscription, returning
// how many were queued.
func (s *BillingService) SyncAll(ctx context.Context, program models.Program) (int, error) {
	subs, err := s.billing.ListOpenSubscriptions(ctx, program)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subscriptions")
	}
	queued := 0
	for _, sub := range subs {
		job := jobs.Job{
			ID:      sub.ID,
			Type:    "subscription-sync",
			Payload: syncPayload{StripeSubscriptionID: sub.StripeSubscriptionID},
		}
		if err := s.queue.Enqueue(job); err != nil {
			s.logger.Warn("failed to enqueue sync job",
				zap.String("stripe_subscription_id", sub.StripeSubscriptionID), zap.Error(err))
			continue
		}
		queued++
	}
	return queued, nil
}

func (s *BillingService) handleSyncJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(syncPayload)
	if !ok {
		return fmt.Errorf("unexpected sync payload %T", job.Payload)
	}

	local, err := s.billing.FindSubscriptionByStripeID(ctx, payload.StripeSubscriptionID)
	if err != nil {
		return fmt.Errorf("load subscription %s: %w", payload.StripeSubscriptionID, err)
	}
	gw, err := s.gateway(local.Program)
	if err != nil {
		return err
	}
	info, err := gw.GetSubscription(ctx, payload.StripeSubscriptionID)
	if err != nil {
		return fmt.Errorf("refresh subscription %s: %w", payload.StripeSubscriptionID, err)
	}

	account := &models.BillingAccount{ID: local.BillingAccountID}
	if _, err := s.billing.UpsertSubscription(ctx, subscriptionFromInfo(account, local.Program, info)); err != nil {
		return fmt.Errorf("store refreshed subscription %s: %w", payload.StripeSubscriptionID, err)
	}
	return nil
}

func subscriptionFromInfo(account *models.BillingAccount, program models.Program, info *stripeclient.SubscriptionInfo) *models.Subscription {
	sub := &models.Subscription{
		BillingAccountID:     account.ID,
		Program:              program,
		StripeSubscriptionID: info.ID,
		Status:               models.SubscriptionStatus(info.Status),
		AmountCents:          info.AmountCents,
		Currency:             info.Currency,
		CanceledAt:           info.CanceledAt,
	}
	if !info.PeriodStart.IsZero() {
		start := info.PeriodStart
		sub.CurrentPeriodStart = &start
	}
	if !info.PeriodEnd.IsZero() {
		end := info.PeriodEnd
		sub.CurrentPeriodEnd = &end
	}
	return sub
}
