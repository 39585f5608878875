package models

import "time"

// BillingAccount is one payer (by email) within one program, tied to a
// Stripe customer in that program's Stripe account.
type BillingAccount struct {
	ID               string    `db:"id" json:"id"`
	Program          Program   `db:"program" json:"program"`
	PayerEmail       string    `db:"payer_email" json:"payer_email"`
	StripeCustomerID *string   `db:"stripe_customer_id" json:"stripe_customer_id,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// SubscriptionStatus mirrors Stripe's subscription statuses.
type SubscriptionStatus string

const (
	SubscriptionStatusActive     SubscriptionStatus = "active"
	SubscriptionStatusTrialing   SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue    SubscriptionStatus = "past_due"
	SubscriptionStatusUnpaid     SubscriptionStatus = "unpaid"
	SubscriptionStatusCanceled   SubscriptionStatus = "canceled"
	SubscriptionStatusIncomplete SubscriptionStatus = "incomplete"
)

// Subscription is the local mirror of a Stripe subscription.
type Subscription struct {
	ID                   string             `db:"id" json:"id"`
	BillingAccountID     string             `db:"billing_account_id" json:"billing_account_id"`
	Program              Program            `db:"program" json:"program"`
	StripeSubscriptionID string             `db:"stripe_subscription_id" json:"stripe_subscription_id"`
	Status               SubscriptionStatus `db:"status" json:"status"`
	AmountCents          int64              `db:"amount_cents" json:"amount_cents"`
	Currency             string             `db:"currency" json:"currency"`
	CurrentPeriodStart   *time.Time         `db:"current_period_start" json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time         `db:"current_period_end" json:"current_period_end,omitempty"`
	CanceledAt           *time.Time         `db:"canceled_at" json:"canceled_at,omitempty"`
	CreatedAt            time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time          `db:"updated_at" json:"updated_at"`
}

// BillingAssignment links a subscription to one program profile it pays
// for. A subscription fans out to multiple profiles for family billing.
type BillingAssignment struct {
	ID               string    `db:"id" json:"id"`
	SubscriptionID   string    `db:"subscription_id" json:"subscription_id"`
	ProgramProfileID string    `db:"program_profile_id" json:"program_profile_id"`
	IsActive         bool      `db:"is_active" json:"is_active"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}
