package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/markazapp/markaz-admin-api/internal/models"
)

// ContactRepository handles persistence of contact points.
type ContactRepository struct {
	db *sqlx.DB
}

// NewContactRepository constructs the repository.
func NewContactRepository(db *sqlx.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

// ListByPerson returns all contact points owned by a person.
func (r *ContactRepository) ListByPerson(ctx context.Context, personID string) ([]models.ContactPoint, error) {
	const query = `SELECT id, person_id, type, value, is_primary, is_active, created_at, updated_at
        FROM contact_points WHERE person_id = $1 ORDER BY type, is_primary DESC, created_at`
	var contacts []models.ContactPoint
	if err := r.db.SelectContext(ctx, &contacts, query, personID); err != nil {
		return nil, fmt.Errorf("list contact points: %w", err)
	}
	return contacts, nil
}

// FindByID returns a contact point by its ID.
func (r *ContactRepository) FindByID(ctx context.Context, id string) (*models.ContactPoint, error) {
	const query = `SELECT id, person_id, type, value, is_primary, is_active, created_at, updated_at
        FROM contact_points WHERE id = $1`
	var contact models.ContactPoint
	if err := r.db.GetContext(ctx, &contact, query, id); err != nil {
		return nil, err
	}
	return &contact, nil
}

// FindPrimary returns the primary active contact of one type for a person.
func (r *ContactRepository) FindPrimary(ctx context.Context, personID string, contactType models.ContactType) (*models.ContactPoint, error) {
	const query = `SELECT id, person_id, type, value, is_primary, is_active, created_at, updated_at
        FROM contact_points WHERE person_id = $1 AND type = $2 AND is_primary AND is_active LIMIT 1`
	var contact models.ContactPoint
	if err := r.db.GetContext(ctx, &contact, query, personID, contactType); err != nil {
		return nil, err
	}
	return &contact, nil
}

// Create inserts a contact point. When the new contact is primary, the
// previous primary of the same type is demoted inside one transaction
// so the one-primary-per-type rule holds.
func (r *ContactRepository) Create(ctx context.Context, contact *models.ContactPoint) error {
	now := time.Now().UTC()
	if contact.ID == "" {
		contact.ID = uuid.NewString()
	}
	contact.CreatedAt = now
	contact.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin contact tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if contact.IsPrimary {
		if err := demotePrimary(ctx, tx, contact.PersonID, contact.Type, now); err != nil {
			return err
		}
	}

	const query = `INSERT INTO contact_points (id, person_id, type, value, is_primary, is_active, created_at, updated_at)
        VALUES (:id, :person_id, :type, :value, :is_primary, :is_active, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, contact); err != nil {
		return fmt.Errorf("create contact point: %w", err)
	}
	return tx.Commit()
}

// Update rewrites a contact point, demoting a conflicting primary first.
func (r *ContactRepository) Update(ctx context.Context, contact *models.ContactPoint) error {
	now := time.Now().UTC()
	contact.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin contact tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if contact.IsPrimary {
		if err := demotePrimary(ctx, tx, contact.PersonID, contact.Type, now); err != nil {
			return err
		}
	}

	const query = `UPDATE contact_points SET value = :value, is_primary = :is_primary,
        is_active = :is_active, updated_at = :updated_at WHERE id = :id`
	res, err := tx.NamedExecContext(ctx, query, contact)
	if err != nil {
		return fmt.Errorf("update contact point: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return tx.Commit()
}

// Delete removes a contact point.
func (r *ContactRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM contact_points WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete contact point: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func demotePrimary(ctx context.Context, tx *sqlx.Tx, personID string, contactType models.ContactType, now time.Time) error {
	const query = `UPDATE contact_points SET is_primary = FALSE, updated_at = $3
        WHERE person_id = $1 AND type = $2 AND is_primary`
	if _, err := tx.ExecContext(ctx, query, personID, contactType, now); err != nil {
		return fmt.Errorf("demote primary contact: %w", err)
	}
	return nil
}
