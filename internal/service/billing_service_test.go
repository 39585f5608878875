package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go/v78"
	"go.uber.org/zap"

	"github.com/markazapp/markaz-admin-api/internal/models"
	appErrors "github.com/markazapp/markaz-admin-api/pkg/errors"
	"github.com/markazapp/markaz-admin-api/pkg/stripeclient"
)

type billingRepoStub struct {
	accounts      map[string]*models.BillingAccount
	subscriptions map[string]*models.Subscription
	open          []models.Subscription
	assignments   map[string][]string
	statusUpdates map[string]models.SubscriptionStatus
	updateErr     error
}

func newBillingRepoStub() *billingRepoStub {
	return &billingRepoStub{
		accounts:      map[string]*models.BillingAccount{},
		subscriptions: map[string]*models.Subscription{},
		assignments:   map[string][]string{},
		statusUpdates: map[string]models.SubscriptionStatus{},
	}
}

func (s *billingRepoStub) FindOrCreateAccount(ctx context.Context, program models.Program, payerEmail string, stripeCustomerID *string) (*models.BillingAccount, error) {
	key := string(program) + "|" + payerEmail
	if acc, ok := s.accounts[key]; ok {
		return acc, nil
	}
	acc := &models.BillingAccount{ID: "acct-" + payerEmail, Program: program, PayerEmail: payerEmail, StripeCustomerID: stripeCustomerID}
	s.accounts[key] = acc
	return acc, nil
}

func (s *billingRepoStub) UpsertSubscription(ctx context.Context, sub *models.Subscription) (*models.Subscription, error) {
	sub.ID = "local-" + sub.StripeSubscriptionID
	s.subscriptions[sub.StripeSubscriptionID] = sub
	return sub, nil
}

func (s *billingRepoStub) FindSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error) {
	if sub, ok := s.subscriptions[stripeSubscriptionID]; ok {
		return sub, nil
	}
	return nil, sql.ErrNoRows
}

func (s *billingRepoStub) UpdateSubscriptionStatus(ctx context.Context, stripeSubscriptionID string, status models.SubscriptionStatus, canceledAt *time.Time) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	if _, ok := s.subscriptions[stripeSubscriptionID]; !ok {
		return sql.ErrNoRows
	}
	s.statusUpdates[stripeSubscriptionID] = status
	return nil
}

func (s *billingRepoStub) AssignProfiles(ctx context.Context, subscriptionID string, profileIDs []string) error {
	s.assignments[subscriptionID] = profileIDs
	return nil
}

func (s *billingRepoStub) ListOpenSubscriptions(ctx context.Context, program models.Program) ([]models.Subscription, error) {
	return s.open, nil
}

func (s *billingRepoStub) ListSubscriptionsByProfiles(ctx context.Context, profileIDs []string) ([]models.Subscription, error) {
	return nil, nil
}

type guardianEmailStub struct {
	profiles []models.ProgramProfile
}

func (s guardianEmailStub) ListByGuardianEmail(ctx context.Context, program models.Program, email string) ([]models.ProgramProfile, error) {
	return s.profiles, nil
}

type gatewayStub struct {
	info       *stripeclient.SubscriptionInfo
	getErr     error
	cancelErr  error
	getCalls   int
	cancelled  []string
}

func (s *gatewayStub) GetSubscription(ctx context.Context, subscriptionID string) (*stripeclient.SubscriptionInfo, error) {
	s.getCalls++
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.info, nil
}

func (s *gatewayStub) CancelSubscription(ctx context.Context, subscriptionID string) (*stripeclient.SubscriptionInfo, error) {
	if s.cancelErr != nil {
		return nil, s.cancelErr
	}
	s.cancelled = append(s.cancelled, subscriptionID)
	return &stripeclient.SubscriptionInfo{ID: subscriptionID, Status: "canceled"}, nil
}

func newTestBillingService(repo *billingRepoStub, profiles guardianEmailStub, gw *gatewayStub, audit *auditStub) *BillingService {
	return NewBillingService(repo, profiles,
		map[models.Program]StripeGateway{models.ProgramDugsi: gw}, audit, zap.NewNop(), 1, 1)
}

func subscriptionInfo() *stripeclient.SubscriptionInfo {
	return &stripeclient.SubscriptionInfo{
		ID:            "sub_abc",
		CustomerID:    "cus_1",
		CustomerEmail: "parent@example.com",
		Status:        "active",
		AmountCents:   23000,
		Currency:      "usd",
	}
}

func TestBillingServiceLinkAssignsMatchedProfiles(t *testing.T) {
	repo := newBillingRepoStub()
	gw := &gatewayStub{info: subscriptionInfo()}
	profiles := guardianEmailStub{profiles: []models.ProgramProfile{{ID: "prof-1"}, {ID: "prof-2"}}}
	audit := &auditStub{}
	svc := newTestBillingService(repo, profiles, gw, audit)

	result, err := svc.LinkSubscription(context.Background(),
		LinkSubscriptionRequest{Program: models.ProgramDugsi, StripeSubscriptionID: "sub_abc"}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"prof-1", "prof-2"}, result.AssignedProfileIDs)
	assert.Equal(t, []string{"prof-1", "prof-2"}, repo.assignments[result.Subscription.ID])
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionSubscriptionLink, audit.logs[0].Action)
}

func TestBillingServiceLinkNoMatchingProfilesFails(t *testing.T) {
	repo := newBillingRepoStub()
	gw := &gatewayStub{info: subscriptionInfo()}
	audit := &auditStub{}
	svc := newTestBillingService(repo, guardianEmailStub{}, gw, audit)

	_, err := svc.LinkSubscription(context.Background(),
		LinkSubscriptionRequest{Program: models.ProgramDugsi, StripeSubscriptionID: "sub_abc"}, "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.Contains(t, appErrors.FromError(err).Message, "parent@example.com")
	assert.Contains(t, repo.subscriptions, "sub_abc", "the subscription stays mirrored for a later attempt")
	assert.Empty(t, repo.assignments)
	assert.Empty(t, audit.logs)
}

func TestBillingServiceLinkRequiresCustomerEmail(t *testing.T) {
	info := subscriptionInfo()
	info.CustomerEmail = ""
	gw := &gatewayStub{info: info}
	svc := newTestBillingService(newBillingRepoStub(), guardianEmailStub{}, gw, &auditStub{})

	_, err := svc.LinkSubscription(context.Background(),
		LinkSubscriptionRequest{Program: models.ProgramDugsi, StripeSubscriptionID: "sub_abc"}, "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestBillingServiceLinkUnknownProgram(t *testing.T) {
	svc := newTestBillingService(newBillingRepoStub(), guardianEmailStub{}, &gatewayStub{}, &auditStub{})

	_, err := svc.LinkSubscription(context.Background(),
		LinkSubscriptionRequest{Program: models.ProgramMahad, StripeSubscriptionID: "sub_abc"}, "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrProgramMismatch.Code, appErrors.FromError(err).Code)
}

func TestBillingServiceCancelIsIdempotent(t *testing.T) {
	repo := newBillingRepoStub()
	repo.subscriptions["sub_abc"] = &models.Subscription{
		ID: "local-sub_abc", StripeSubscriptionID: "sub_abc", Status: models.SubscriptionStatusCanceled,
	}
	gw := &gatewayStub{}
	svc := newTestBillingService(repo, guardianEmailStub{}, gw, &auditStub{})

	sub, err := svc.Cancel(context.Background(), models.ProgramDugsi, "sub_abc", "admin-1")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCanceled, sub.Status)
	assert.Empty(t, gw.cancelled, "already canceled subscriptions skip the stripe call")
}

func TestBillingServiceWebhookSubscriptionUpdated(t *testing.T) {
	repo := newBillingRepoStub()
	repo.subscriptions["sub_abc"] = &models.Subscription{
		ID: "local-sub_abc", StripeSubscriptionID: "sub_abc", Status: models.SubscriptionStatusActive,
	}
	svc := newTestBillingService(repo, guardianEmailStub{}, &gatewayStub{}, &auditStub{})

	raw, err := json.Marshal(map[string]any{"id": "sub_abc", "status": "past_due"})
	require.NoError(t, err)
	event := stripe.Event{Type: "customer.subscription.updated", Data: &stripe.EventData{Raw: raw}}

	require.NoError(t, svc.HandleWebhookEvent(context.Background(), models.ProgramDugsi, event))
	assert.Equal(t, models.SubscriptionStatusPastDue, repo.statusUpdates["sub_abc"])
}

func TestBillingServiceWebhookUnknownSubscriptionAcked(t *testing.T) {
	svc := newTestBillingService(newBillingRepoStub(), guardianEmailStub{}, &gatewayStub{}, &auditStub{})

	raw, err := json.Marshal(map[string]any{"id": "sub_unknown", "status": "active"})
	require.NoError(t, err)
	event := stripe.Event{Type: "customer.subscription.updated", Data: &stripe.EventData{Raw: raw}}

	assert.NoError(t, svc.HandleWebhookEvent(context.Background(), models.ProgramDugsi, event))
}

func TestBillingServiceWebhookIgnoresUnknownTypes(t *testing.T) {
	svc := newTestBillingService(newBillingRepoStub(), guardianEmailStub{}, &gatewayStub{}, &auditStub{})

	event := stripe.Event{Type: "charge.refunded", Data: &stripe.EventData{Raw: []byte(`{}`)}}
	assert.NoError(t, svc.HandleWebhookEvent(context.Background(), models.ProgramDugsi, event))
}
