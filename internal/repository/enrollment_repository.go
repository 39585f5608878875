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

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
JOIN program_profiles pp ON pp.id = e.program_profile_id
JOIN persons p ON p.id = pp.person_id
LEFT JOIN batches b ON b.id = e.batch_id`
	var conditions []string
	var args []interface{}

	if filter.ProgramProfileID != "" {
		conditions = append(conditions, fmt.Sprintf("e.program_profile_id = $%d", len(args)+1))
		args = append(args, filter.ProgramProfileID)
	}
	if filter.BatchID != "" {
		conditions = append(conditions, fmt.Sprintf("e.batch_id = $%d", len(args)+1))
		args = append(args, filter.BatchID)
	}
	if filter.Program != "" {
		conditions = append(conditions, fmt.Sprintf("pp.program = $%d", len(args)+1))
		args = append(args, filter.Program)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"start_date":  "e.start_date",
		"person_name": "p.full_name",
		"batch_name":  "b.name",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "start_date"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "e.start_date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
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

	query := fmt.Sprintf(`SELECT e.id, e.program_profile_id, e.batch_id, e.status, e.start_date, e.end_date,
        e.created_at, e.updated_at, p.full_name AS person_name, pp.program, b.name AS batch_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, program_profile_id, batch_id, status, start_date, end_date, created_at, updated_at
        FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with contextual info.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.program_profile_id, e.batch_id, e.status, e.start_date, e.end_date,
        e.created_at, e.updated_at, p.full_name AS person_name, pp.program, b.name AS batch_name
        FROM enrollments e
        JOIN program_profiles pp ON pp.id = e.program_profile_id
        JOIN persons p ON p.id = pp.person_id
        LEFT JOIN batches b ON b.id = e.batch_id
        WHERE e.id = $1`
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsOpen checks whether the profile already has an open-ended,
// non-withdrawn enrollment.
func (r *EnrollmentRepository) ExistsOpen(ctx context.Context, programProfileID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM enrollments
        WHERE program_profile_id = $1 AND end_date IS NULL AND status <> $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, programProfileID, models.EnrollmentStatusWithdrawn); err != nil {
		return false, fmt.Errorf("check open enrollment: %w", err)
	}
	return exists, nil
}

// Create persists a new enrollment record.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	now := time.Now().UTC()
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.StartDate.IsZero() {
		enrollment.StartDate = now
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusRegistered
	}
	enrollment.CreatedAt = now
	enrollment.UpdatedAt = now
	const query = `INSERT INTO enrollments (id, program_profile_id, batch_id, status, start_date, end_date, created_at, updated_at)
        VALUES (:id, :program_profile_id, :batch_id, :status, :start_date, :end_date, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// UpdateStatus updates status and end_date for an enrollment.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, endDate *time.Time) error {
	const query = `UPDATE enrollments SET status = $2, end_date = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, endDate, time.Now().UTC()); err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return nil
}

// UpdateBatch moves an enrollment to another batch.
func (r *EnrollmentRepository) UpdateBatch(ctx context.Context, id string, batchID *string) error {
	const query = `UPDATE enrollments SET batch_id = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, batchID, time.Now().UTC()); err != nil {
		return fmt.Errorf("update enrollment batch: %w", err)
	}
	return nil
}

// ListOpenByProfile returns the open enrollments for a profile.
func (r *EnrollmentRepository) ListOpenByProfile(ctx context.Context, programProfileID string) ([]models.Enrollment, error) {
	const query = `SELECT id, program_profile_id, batch_id, status, start_date, end_date, created_at, updated_at
        FROM enrollments WHERE program_profile_id = $1 AND end_date IS NULL AND status <> $2`
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, programProfileID, models.EnrollmentStatusWithdrawn); err != nil {
		return nil, fmt.Errorf("list open enrollments: %w", err)
	}
	return enrollments, nil
}

// ListByBatch returns enrollments for one batch, enrolled ones first.
func (r *EnrollmentRepository) ListByBatch(ctx context.Context, batchID string) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.program_profile_id, e.batch_id, e.status, e.start_date, e.end_date,
        e.created_at, e.updated_at, p.full_name AS person_name, pp.program, b.name AS batch_name
        FROM enrollments e
        JOIN program_profiles pp ON pp.id = e.program_profile_id
        JOIN persons p ON p.id = pp.person_id
        LEFT JOIN batches b ON b.id = e.batch_id
        WHERE e.batch_id = $1
        ORDER BY (e.status = 'ENROLLED') DESC, p.full_name`
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, batchID); err != nil {
		return nil, fmt.Errorf("list batch enrollments: %w", err)
	}
	return enrollments, nil
}
