package stripeclient

import (
	"context"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/markazapp/markaz-admin-api/pkg/config"
)

// SubscriptionInfo is the provider-neutral view of a Stripe
// subscription used by the billing service.
type SubscriptionInfo struct {
	ID            string
	CustomerID    string
	CustomerEmail string
	Status        string
	AmountCents   int64
	Currency      string
	PeriodStart   time.Time
	PeriodEnd     time.Time
	CanceledAt    *time.Time
}

// Client wraps one Stripe account.
type Client struct {
	api           *client.API
	webhookSecret string
}

// New builds a client for one Stripe account.
func New(cfg config.StripeProgramConfig) *Client {
	api := &client.API{}
	api.Init(cfg.SecretKey, nil)
	return &Client{api: api, webhookSecret: cfg.WebhookSecret}
}

// GetSubscription fetches a subscription with its customer expanded.
func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (*SubscriptionInfo, error) {
	params := &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
	}
	params.AddExpand("customer")

	sub, err := c.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("fetch subscription %s: %w", subscriptionID, err)
	}
	return fromStripe(sub), nil
}

// CancelSubscription cancels a subscription immediately.
func (c *Client) CancelSubscription(ctx context.Context, subscriptionID string) (*SubscriptionInfo, error) {
	params := &stripe.SubscriptionCancelParams{
		Params: stripe.Params{Context: ctx},
	}
	sub, err := c.api.Subscriptions.Cancel(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("cancel subscription %s: %w", subscriptionID, err)
	}
	return fromStripe(sub), nil
}

// VerifyWebhook validates the signature header and parses the event.
func (c *Client) VerifyWebhook(payload []byte, signatureHeader string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, signatureHeader, c.webhookSecret)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("verify webhook signature: %w", err)
	}
	return event, nil
}

func fromStripe(sub *stripe.Subscription) *SubscriptionInfo {
	info := &SubscriptionInfo{
		ID:          sub.ID,
		Status:      string(sub.Status),
		Currency:    string(sub.Currency),
		PeriodStart: time.Unix(sub.CurrentPeriodStart, 0).UTC(),
		PeriodEnd:   time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
	}
	if sub.Customer != nil {
		info.CustomerID = sub.Customer.ID
		info.CustomerEmail = sub.Customer.Email
	}
	if sub.CanceledAt > 0 {
		t := time.Unix(sub.CanceledAt, 0).UTC()
		info.CanceledAt = &t
	}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item.Price != nil {
				info.AmountCents += item.Price.UnitAmount * item.Quantity
			}
		}
	}
	return info
}
