package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/markazapp/markaz-admin-api/internal/models"
)

// BillingRepository handles billing accounts, subscriptions and their
// assignments to program profiles.
type BillingRepository struct {
	db *sqlx.DB
}

// NewBillingRepository constructs the repository.
func NewBillingRepository(db *sqlx.DB) *BillingRepository {
	return &BillingRepository{db: db}
}

// FindOrCreateAccount returns the billing account for a payer email in
// one program, creating it when absent.
func (r *BillingRepository) FindOrCreateAccount(ctx context.Context, program models.Program, payerEmail string, stripeCustomerID *string) (*models.BillingAccount, error) {
	const find = `SELECT id, program, payer_email, stripe_customer_id, created_at, updated_at
        FROM billing_accounts WHERE program = $1 AND LOWER(payer_email) = LOWER($2)`
	var account models.BillingAccount
	err := r.db.GetContext(ctx, &account, find, program, payerEmail)
	if err == nil {
		if stripeCustomerID != nil && (account.StripeCustomerID == nil || *account.StripeCustomerID != *stripeCustomerID) {
			const update = `UPDATE billing_accounts SET stripe_customer_id = $2, updated_at = $3 WHERE id = $1`
			if _, err := r.db.ExecContext(ctx, update, account.ID, stripeCustomerID, time.Now().UTC()); err != nil {
				return nil, fmt.Errorf("update billing account customer: %w", err)
			}
			account.StripeCustomerID = stripeCustomerID
		}
		return &account, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find billing account: %w", err)
	}

	now := time.Now().UTC()
	account = models.BillingAccount{
		ID:               uuid.NewString(),
		Program:          program,
		PayerEmail:       payerEmail,
		StripeCustomerID: stripeCustomerID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	const insert = `INSERT INTO billing_accounts (id, program, payer_email, stripe_customer_id, created_at, updated_at)
        VALUES (:id, :program, :payer_email, :stripe_customer_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, insert, &account); err != nil {
		return nil, fmt.Errorf("create billing account: %w", err)
	}
	return &account, nil
}

// UpsertSubscription mirrors a Stripe subscription locally, keyed by
// the Stripe subscription id.
func (r *BillingRepository) UpsertSubscription(ctx context.Context, sub *models.Subscription) (*models.Subscription, error) {
	now := time.Now().UTC()
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	sub.CreatedAt = now
	sub.UpdatedAt = now
	const query = `INSERT INTO subscriptions (id, billing_account_id, program, stripe_subscription_id, status,
        amount_cents, currency, current_period_start, current_period_end, canceled_at, created_at, updated_at)
        VALUES (:id, :billing_account_id, :program, :stripe_subscription_id, :status,
        :amount_cents, :currency, :current_period_start, :current_period_end, :canceled_at, :created_at, :updated_at)
        ON CONFLICT (stripe_subscription_id)
        DO UPDATE SET status = EXCLUDED.status, amount_cents = EXCLUDED.amount_cents,
            currency = EXCLUDED.currency, current_period_start = EXCLUDED.current_period_start,
            current_period_end = EXCLUDED.current_period_end, canceled_at = EXCLUDED.canceled_at,
            updated_at = EXCLUDED.updated_at
        RETURNING id, billing_account_id, program, stripe_subscription_id, status, amount_cents, currency,
            current_period_start, current_period_end, canceled_at, created_at, updated_at`
	rows, err := r.db.NamedQueryContext(ctx, query, sub)
	if err != nil {
		return nil, fmt.Errorf("upsert subscription: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, fmt.Errorf("upsert subscription: no row returned")
	}
	var stored models.Subscription
	if err := rows.StructScan(&stored); err != nil {
		return nil, fmt.Errorf("scan subscription: %w", err)
	}
	return &stored, nil
}

// FindSubscriptionByStripeID returns the local mirror of a Stripe
// subscription.
func (r *BillingRepository) FindSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error) {
	const query = `SELECT id, billing_account_id, program, stripe_subscription_id, status, amount_cents, currency,
        current_period_start, current_period_end, canceled_at, created_at, updated_at
        FROM subscriptions WHERE stripe_subscription_id = $1`
	var sub models.Subscription
	if err := r.db.GetContext(ctx, &sub, query, stripeSubscriptionID); err != nil {
		return nil, err
	}
	return &sub, nil
}

// UpdateSubscriptionStatus applies a status change from a webhook event.
func (r *BillingRepository) UpdateSubscriptionStatus(ctx context.Context, stripeSubscriptionID string, status models.SubscriptionStatus, canceledAt *time.Time) error {
	const query = `UPDATE subscriptions SET status = $2, canceled_at = $3, updated_at = $4
        WHERE stripe_subscription_id = $1`
	res, err := r.db.ExecContext(ctx, query, stripeSubscriptionID, status, canceledAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update subscription status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListOpenSubscriptions returns every non-canceled subscription,
// optionally scoped to one program. The reconciliation worker walks
// this set.
func (r *BillingRepository) ListOpenSubscriptions(ctx context.Context, program models.Program) ([]models.Subscription, error) {
	query := `SELECT id, billing_account_id, program, stripe_subscription_id, status, amount_cents, currency,
        current_period_start, current_period_end, canceled_at, created_at, updated_at
        FROM subscriptions WHERE status <> 'canceled'`
	var args []interface{}
	if program != "" {
		args = append(args, program)
		query += " AND program = $1"
	}
	query += " ORDER BY created_at"
	var subs []models.Subscription
	if err := r.db.SelectContext(ctx, &subs, query, args...); err != nil {
		return nil, fmt.Errorf("list open subscriptions: %w", err)
	}
	return subs, nil
}

// AssignProfiles links a subscription to profiles in one transaction,
// reactivating assignments that already exist.
func (r *BillingRepository) AssignProfiles(ctx context.Context, subscriptionID string, profileIDs []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin assign tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	const query = `INSERT INTO billing_assignments (id, subscription_id, program_profile_id, is_active, created_at, updated_at)
        VALUES ($1, $2, $3, TRUE, $4, $4)
        ON CONFLICT (subscription_id, program_profile_id)
        DO UPDATE SET is_active = TRUE, updated_at = EXCLUDED.updated_at`
	for _, profileID := range profileIDs {
		if _, err := tx.ExecContext(ctx, query, uuid.NewString(), subscriptionID, profileID, now); err != nil {
			return fmt.Errorf("assign profile %s: %w", profileID, err)
		}
	}
	return tx.Commit()
}

// DeactivateAssignmentsByProfile retires every active assignment of a
// profile, returning how many were affected.
func (r *BillingRepository) DeactivateAssignmentsByProfile(ctx context.Context, programProfileID string) (int64, error) {
	const query = `UPDATE billing_assignments SET is_active = FALSE, updated_at = $2
        WHERE program_profile_id = $1 AND is_active`
	res, err := r.db.ExecContext(ctx, query, programProfileID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("deactivate assignments: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ListAssignmentsByProfile returns assignments for a profile.
func (r *BillingRepository) ListAssignmentsByProfile(ctx context.Context, programProfileID string) ([]models.BillingAssignment, error) {
	const query = `SELECT id, subscription_id, program_profile_id, is_active, created_at, updated_at
        FROM billing_assignments WHERE program_profile_id = $1`
	var assignments []models.BillingAssignment
	if err := r.db.SelectContext(ctx, &assignments, query, programProfileID); err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return assignments, nil
}

// ListSubscriptionsByProfiles returns the distinct subscriptions paying
// for any of the given profiles.
func (r *BillingRepository) ListSubscriptionsByProfiles(ctx context.Context, profileIDs []string) ([]models.Subscription, error) {
	if len(profileIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT DISTINCT s.id, s.billing_account_id, s.program, s.stripe_subscription_id,
        s.status, s.amount_cents, s.currency, s.current_period_start, s.current_period_end, s.canceled_at,
        s.created_at, s.updated_at
        FROM subscriptions s
        JOIN billing_assignments ba ON ba.subscription_id = s.id AND ba.is_active
        WHERE ba.program_profile_id IN (?)`, profileIDs)
	if err != nil {
		return nil, fmt.Errorf("build subscriptions query: %w", err)
	}
	query = r.db.Rebind(query)
	var subs []models.Subscription
	if err := r.db.SelectContext(ctx, &subs, query, args...); err != nil {
		return nil, fmt.Errorf("list subscriptions by profiles: %w", err)
	}
	return subs, nil
}
