package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/markazapp/markaz-admin-api/internal/models"
)

// BatchRepository handles persistence of Mahad cohorts.
type BatchRepository struct {
	db *sqlx.DB
}

// NewBatchRepository constructs the repository.
func NewBatchRepository(db *sqlx.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// List returns batches with their active enrollment counts.
func (r *BatchRepository) List(ctx context.Context, filter models.BatchFilter) ([]models.BatchDetail, int, error) {
	base := `FROM batches b`
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("b.name ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("b.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"name":       "b.name",
		"created_at": "b.created_at",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "name"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "b.name"
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

	query := fmt.Sprintf(`SELECT b.id, b.name, b.schedule, b.lead_teacher_id, b.active, b.created_at, b.updated_at,
        (SELECT COUNT(*) FROM enrollments e WHERE e.batch_id = b.id AND e.status = 'ENROLLED') AS enrolled_count
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var batches []models.BatchDetail
	if err := r.db.SelectContext(ctx, &batches, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list batches: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count batches: %w", err)
	}
	return batches, total, nil
}

// FindByID returns a batch by its ID.
func (r *BatchRepository) FindByID(ctx context.Context, id string) (*models.Batch, error) {
	const query = `SELECT id, name, schedule, lead_teacher_id, active, created_at, updated_at FROM batches WHERE id = $1`
	var batch models.Batch
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		return nil, err
	}
	return &batch, nil
}

// Create persists a new batch record.
func (r *BatchRepository) Create(ctx context.Context, batch *models.Batch) error {
	now := time.Now().UTC()
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	batch.Active = true
	batch.CreatedAt = now
	batch.UpdatedAt = now
	const query = `INSERT INTO batches (id, name, schedule, lead_teacher_id, active, created_at, updated_at)
        VALUES (:id, :name, :schedule, :lead_teacher_id, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, batch); err != nil {
		return fmt.Errorf("create batch: %w", err)
	}
	return nil
}

// Update rewrites the mutable fields of a batch.
func (r *BatchRepository) Update(ctx context.Context, batch *models.Batch) error {
	batch.UpdatedAt = time.Now().UTC()
	const query = `UPDATE batches SET name = :name, schedule = :schedule, lead_teacher_id = :lead_teacher_id,
        active = :active, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, batch)
	if err != nil {
		return fmt.Errorf("update batch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Deactivate retires a batch without touching its enrollments.
func (r *BatchRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE batches SET active = FALSE, updated_at = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("deactivate batch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
