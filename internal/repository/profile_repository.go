package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/markazapp/markaz-admin-api/internal/models"
)

// ProfileRepository handles persistence of program profiles.
type ProfileRepository struct {
	db *sqlx.DB
}

// NewProfileRepository constructs the repository.
func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// List returns profiles filtered by the provided criteria.
func (r *ProfileRepository) List(ctx context.Context, filter models.ProgramProfileFilter) ([]models.ProgramProfileDetail, int, error) {
	base := `FROM program_profiles pp
JOIN persons p ON p.id = pp.person_id`
	var conditions []string
	var args []interface{}

	if filter.PersonID != "" {
		conditions = append(conditions, fmt.Sprintf("pp.person_id = $%d", len(args)+1))
		args = append(args, filter.PersonID)
	}
	if filter.Program != "" {
		conditions = append(conditions, fmt.Sprintf("pp.program = $%d", len(args)+1))
		args = append(args, filter.Program)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("pp.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.FamilyReferenceID != "" {
		conditions = append(conditions, fmt.Sprintf("pp.family_reference_id = $%d", len(args)+1))
		args = append(args, filter.FamilyReferenceID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("p.full_name ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"person_name": "p.full_name",
		"created_at":  "pp.created_at",
		"grade_level": "pp.grade_level",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "person_name"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "p.full_name"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT pp.id, pp.person_id, pp.program, pp.education_level, pp.grade_level,
        pp.family_reference_id, pp.status, pp.created_at, pp.updated_at, p.full_name AS person_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var profiles []models.ProgramProfileDetail
	if err := r.db.SelectContext(ctx, &profiles, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list profiles: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count profiles: %w", err)
	}
	return profiles, total, nil
}

// FindByID returns a profile by its ID.
func (r *ProfileRepository) FindByID(ctx context.Context, id string) (*models.ProgramProfile, error) {
	const query = `SELECT id, person_id, program, education_level, grade_level, family_reference_id, status, created_at, updated_at
        FROM program_profiles WHERE id = $1`
	var profile models.ProgramProfile
	if err := r.db.GetContext(ctx, &profile, query, id); err != nil {
		return nil, err
	}
	return &profile, nil
}

// FindByPersonAndProgram returns the profile for one person in one program.
func (r *ProfileRepository) FindByPersonAndProgram(ctx context.Context, personID string, program models.Program) (*models.ProgramProfile, error) {
	const query = `SELECT id, person_id, program, education_level, grade_level, family_reference_id, status, created_at, updated_at
        FROM program_profiles WHERE person_id = $1 AND program = $2`
	var profile models.ProgramProfile
	if err := r.db.GetContext(ctx, &profile, query, personID, program); err != nil {
		return nil, err
	}
	return &profile, nil
}

// Create persists a new profile record.
func (r *ProfileRepository) Create(ctx context.Context, profile *models.ProgramProfile) error {
	now := time.Now().UTC()
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	if profile.Status == "" {
		profile.Status = models.ProfileStatusActive
	}
	profile.CreatedAt = now
	profile.UpdatedAt = now
	const query = `INSERT INTO program_profiles (id, person_id, program, education_level, grade_level, family_reference_id, status, created_at, updated_at)
        VALUES (:id, :person_id, :program, :education_level, :grade_level, :family_reference_id, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, profile); err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

// Update rewrites the mutable academic fields of a profile.
func (r *ProfileRepository) Update(ctx context.Context, profile *models.ProgramProfile) error {
	profile.UpdatedAt = time.Now().UTC()
	const query = `UPDATE program_profiles SET education_level = :education_level, grade_level = :grade_level,
        family_reference_id = :family_reference_id, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, profile); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

// UpdateStatus sets the profile status.
func (r *ProfileRepository) UpdateStatus(ctx context.Context, id string, status models.ProfileStatus) error {
	const query = `UPDATE program_profiles SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update profile status: %w", err)
	}
	return nil
}

// ListByFamilyReference returns all profiles sharing a family reference.
func (r *ProfileRepository) ListByFamilyReference(ctx context.Context, familyReferenceID string) ([]models.ProgramProfile, error) {
	const query = `SELECT id, person_id, program, education_level, grade_level, family_reference_id, status, created_at, updated_at
        FROM program_profiles WHERE family_reference_id = $1`
	var profiles []models.ProgramProfile
	if err := r.db.SelectContext(ctx, &profiles, query, familyReferenceID); err != nil {
		return nil, fmt.Errorf("list family profiles: %w", err)
	}
	return profiles, nil
}

// ListByGuardianEmail returns profiles of students whose guardian owns
// the given email contact, within one program. Drives subscription
// linkage fan-out.
func (r *ProfileRepository) ListByGuardianEmail(ctx context.Context, program models.Program, email string) ([]models.ProgramProfile, error) {
	const query = `SELECT DISTINCT pp.id, pp.person_id, pp.program, pp.education_level, pp.grade_level,
        pp.family_reference_id, pp.status, pp.created_at, pp.updated_at
        FROM program_profiles pp
        JOIN guardian_relationships gr ON gr.student_id = pp.person_id AND gr.is_active
        JOIN contact_points cp ON cp.person_id = gr.guardian_id AND cp.is_active
        WHERE pp.program = $1 AND cp.type = 'EMAIL' AND LOWER(cp.value) = LOWER($2)`
	var profiles []models.ProgramProfile
	if err := r.db.SelectContext(ctx, &profiles, query, program, email); err != nil {
		return nil, fmt.Errorf("list profiles by guardian email: %w", err)
	}
	return profiles, nil
}

// CountActiveDugsiInFamily counts active Dugsi students sharing a
// family reference. Drives family-tiered pricing.
func (r *ProfileRepository) CountActiveDugsiInFamily(ctx context.Context, familyReferenceID string) (int, error) {
	const query = `SELECT COUNT(*) FROM program_profiles
        WHERE family_reference_id = $1 AND program = $2 AND status = $3`
	var count int
	if err := r.db.GetContext(ctx, &count, query, familyReferenceID, models.ProgramDugsi, models.ProfileStatusActive); err != nil {
		return 0, fmt.Errorf("count family dugsi profiles: %w", err)
	}
	return count, nil
}

// HardDelete removes a profile and its dependent rows in one
// transaction. Used for Dugsi removals only; Mahad profiles are
// withdrawn instead to preserve the billing audit trail.
func (r *ProfileRepository) HardDelete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := hardDeleteProfile(ctx, tx, id); err != nil {
		return err
	}
	return tx.Commit()
}

// HardDeleteFamily removes every profile sharing a family reference,
// with dependents, in a single transaction. Returns the deleted ids.
func (r *ProfileRepository) HardDeleteFamily(ctx context.Context, familyReferenceID string) ([]string, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin family delete tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var ids []string
	if err := tx.SelectContext(ctx, &ids, `SELECT id FROM program_profiles WHERE family_reference_id = $1`, familyReferenceID); err != nil {
		return nil, fmt.Errorf("select family profiles: %w", err)
	}
	for _, id := range ids {
		if err := hardDeleteProfile(ctx, tx, id); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

func hardDeleteProfile(ctx context.Context, tx *sqlx.Tx, id string) error {
	steps := []string{
		`DELETE FROM attendance_records WHERE enrollment_id IN (SELECT id FROM enrollments WHERE program_profile_id = $1)`,
		`DELETE FROM billing_assignments WHERE program_profile_id = $1`,
		`DELETE FROM enrollments WHERE program_profile_id = $1`,
		`DELETE FROM program_profiles WHERE id = $1`,
	}
	for _, step := range steps {
		if _, err := tx.ExecContext(ctx, step, id); err != nil {
			return fmt.Errorf("hard delete profile %s: %w", id, err)
		}
	}
	return nil
}
