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

// FamilyRepository handles guardian and sibling relationships.
type FamilyRepository struct {
	db *sqlx.DB
}

// NewFamilyRepository constructs the repository.
func NewFamilyRepository(db *sqlx.DB) *FamilyRepository {
	return &FamilyRepository{db: db}
}

// CreateGuardian links a guardian person to a student person.
func (r *FamilyRepository) CreateGuardian(ctx context.Context, rel *models.GuardianRelationship) error {
	now := time.Now().UTC()
	if rel.ID == "" {
		rel.ID = uuid.NewString()
	}
	rel.IsActive = true
	rel.CreatedAt = now
	rel.UpdatedAt = now
	const query = `INSERT INTO guardian_relationships (id, guardian_id, student_id, relationship, is_active, created_at, updated_at)
        VALUES (:id, :guardian_id, :student_id, :relationship, :is_active, :created_at, :updated_at)
        ON CONFLICT (guardian_id, student_id)
        DO UPDATE SET relationship = EXCLUDED.relationship, is_active = TRUE, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, rel); err != nil {
		return fmt.Errorf("create guardian relationship: %w", err)
	}
	return nil
}

// DeactivateGuardian soft-removes a guardian link.
func (r *FamilyRepository) DeactivateGuardian(ctx context.Context, id string) error {
	const query = `UPDATE guardian_relationships SET is_active = FALSE, updated_at = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("deactivate guardian relationship: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListGuardiansByStudent returns active guardian links for a student.
func (r *FamilyRepository) ListGuardiansByStudent(ctx context.Context, studentID string) ([]models.GuardianRelationship, error) {
	const query = `SELECT id, guardian_id, student_id, relationship, is_active, created_at, updated_at
        FROM guardian_relationships WHERE student_id = $1 AND is_active`
	var rels []models.GuardianRelationship
	if err := r.db.SelectContext(ctx, &rels, query, studentID); err != nil {
		return nil, fmt.Errorf("list guardians: %w", err)
	}
	return rels, nil
}

// ListStudentsByGuardian returns active student links for a guardian.
func (r *FamilyRepository) ListStudentsByGuardian(ctx context.Context, guardianID string) ([]models.GuardianRelationship, error) {
	const query = `SELECT id, guardian_id, student_id, relationship, is_active, created_at, updated_at
        FROM guardian_relationships WHERE guardian_id = $1 AND is_active`
	var rels []models.GuardianRelationship
	if err := r.db.SelectContext(ctx, &rels, query, guardianID); err != nil {
		return nil, fmt.Errorf("list guardian students: %w", err)
	}
	return rels, nil
}

// UpsertSibling records a sibling pair. The pair is stored once in
// sorted order; inserting over a soft-removed pair reactivates it.
func (r *FamilyRepository) UpsertSibling(ctx context.Context, rel *models.SiblingRelationship) error {
	now := time.Now().UTC()
	if rel.ID == "" {
		rel.ID = uuid.NewString()
	}
	rel.Person1ID, rel.Person2ID = models.SortedPair(rel.Person1ID, rel.Person2ID)
	rel.IsActive = true
	rel.CreatedAt = now
	rel.UpdatedAt = now
	const query = `INSERT INTO sibling_relationships (id, person1_id, person2_id, detection_method, confidence, is_active, created_at, updated_at)
        VALUES (:id, :person1_id, :person2_id, :detection_method, :confidence, :is_active, :created_at, :updated_at)
        ON CONFLICT (person1_id, person2_id)
        DO UPDATE SET detection_method = EXCLUDED.detection_method,
            confidence = GREATEST(sibling_relationships.confidence, EXCLUDED.confidence),
            is_active = TRUE, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, rel); err != nil {
		return fmt.Errorf("upsert sibling relationship: %w", err)
	}
	return nil
}

// FindSibling returns the stored pair, active or not.
func (r *FamilyRepository) FindSibling(ctx context.Context, person1ID, person2ID string) (*models.SiblingRelationship, error) {
	p1, p2 := models.SortedPair(person1ID, person2ID)
	const query = `SELECT id, person1_id, person2_id, detection_method, confidence, is_active, created_at, updated_at
        FROM sibling_relationships WHERE person1_id = $1 AND person2_id = $2`
	var rel models.SiblingRelationship
	if err := r.db.GetContext(ctx, &rel, query, p1, p2); err != nil {
		return nil, err
	}
	return &rel, nil
}

// DeactivateSibling soft-removes a sibling pair.
func (r *FamilyRepository) DeactivateSibling(ctx context.Context, person1ID, person2ID string) error {
	p1, p2 := models.SortedPair(person1ID, person2ID)
	const query = `UPDATE sibling_relationships SET is_active = FALSE, updated_at = $3
        WHERE person1_id = $1 AND person2_id = $2`
	res, err := r.db.ExecContext(ctx, query, p1, p2, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("deactivate sibling relationship: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListSiblingsByPerson returns active sibling links touching a person.
func (r *FamilyRepository) ListSiblingsByPerson(ctx context.Context, personID string) ([]models.SiblingRelationship, error) {
	const query = `SELECT id, person1_id, person2_id, detection_method, confidence, is_active, created_at, updated_at
        FROM sibling_relationships WHERE (person1_id = $1 OR person2_id = $1) AND is_active`
	var rels []models.SiblingRelationship
	if err := r.db.SelectContext(ctx, &rels, query, personID); err != nil {
		return nil, fmt.Errorf("list siblings: %w", err)
	}
	return rels, nil
}

// SharedGuardianContactPairs finds student pairs whose guardians share
// an active email or phone contact value. Used by sibling detection
// when no explicit family reference exists.
func (r *FamilyRepository) SharedGuardianContactPairs(ctx context.Context) ([]models.SiblingCandidate, error) {
	const query = `SELECT DISTINCT LEAST(gr1.student_id, gr2.student_id) AS person1_id,
        GREATEST(gr1.student_id, gr2.student_id) AS person2_id,
        cp1.value AS shared_value
        FROM guardian_relationships gr1
        JOIN contact_points cp1 ON cp1.person_id = gr1.guardian_id AND cp1.is_active AND cp1.type IN ('EMAIL', 'PHONE')
        JOIN contact_points cp2 ON cp2.type = cp1.type AND LOWER(cp2.value) = LOWER(cp1.value) AND cp2.is_active
        JOIN guardian_relationships gr2 ON gr2.guardian_id = cp2.person_id AND gr2.is_active
        WHERE gr1.is_active AND gr1.student_id <> gr2.student_id`
	var pairs []models.SiblingCandidate
	if err := r.db.SelectContext(ctx, &pairs, query); err != nil {
		return nil, fmt.Errorf("shared guardian contact pairs: %w", err)
	}
	return pairs, nil
}

// FamilyReferencePairs finds student pairs sharing a family reference.
func (r *FamilyRepository) FamilyReferencePairs(ctx context.Context) ([]models.SiblingCandidate, error) {
	const query = `SELECT DISTINCT LEAST(pp1.person_id, pp2.person_id) AS person1_id,
        GREATEST(pp1.person_id, pp2.person_id) AS person2_id,
        pp1.family_reference_id AS shared_value
        FROM program_profiles pp1
        JOIN program_profiles pp2 ON pp2.family_reference_id = pp1.family_reference_id
        WHERE pp1.family_reference_id IS NOT NULL AND pp1.person_id <> pp2.person_id`
	var pairs []models.SiblingCandidate
	if err := r.db.SelectContext(ctx, &pairs, query); err != nil {
		return nil, fmt.Errorf("family reference pairs: %w", err)
	}
	return pairs, nil
}
