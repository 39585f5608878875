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

// CheckInRepository handles persistence of teacher check-ins.
type CheckInRepository struct {
	db *sqlx.DB
}

// NewCheckInRepository constructs the repository.
func NewCheckInRepository(db *sqlx.DB) *CheckInRepository {
	return &CheckInRepository{db: db}
}

// FindByPersonAndDate returns the check-in row for one teacher on one
// date, if any.
func (r *CheckInRepository) FindByPersonAndDate(ctx context.Context, personID string, date time.Time) (*models.TeacherCheckIn, error) {
	const query = `SELECT id, person_id, program, date, check_in_at, check_out_at, notes, created_at, updated_at
        FROM teacher_check_ins WHERE person_id = $1 AND date = $2`
	var checkIn models.TeacherCheckIn
	if err := r.db.GetContext(ctx, &checkIn, query, personID, date); err != nil {
		return nil, err
	}
	return &checkIn, nil
}

// Create persists a new check-in row.
func (r *CheckInRepository) Create(ctx context.Context, checkIn *models.TeacherCheckIn) error {
	now := time.Now().UTC()
	if checkIn.ID == "" {
		checkIn.ID = uuid.NewString()
	}
	if checkIn.CheckInAt.IsZero() {
		checkIn.CheckInAt = now
	}
	checkIn.CreatedAt = now
	checkIn.UpdatedAt = now
	const query = `INSERT INTO teacher_check_ins (id, person_id, program, date, check_in_at, check_out_at, notes, created_at, updated_at)
        VALUES (:id, :person_id, :program, :date, :check_in_at, :check_out_at, :notes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, checkIn); err != nil {
		return fmt.Errorf("create check-in: %w", err)
	}
	return nil
}

// SetCheckOut closes an open check-in.
func (r *CheckInRepository) SetCheckOut(ctx context.Context, id string, checkOutAt time.Time) error {
	const query = `UPDATE teacher_check_ins SET check_out_at = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, checkOutAt, time.Now().UTC()); err != nil {
		return fmt.Errorf("set check-out: %w", err)
	}
	return nil
}

// List returns check-ins matching the provided filter.
func (r *CheckInRepository) List(ctx context.Context, filter models.CheckInFilter) ([]models.TeacherCheckInDetail, int, error) {
	base := `FROM teacher_check_ins tc
JOIN persons p ON p.id = tc.person_id`
	where := []string{"1=1"}
	args := []interface{}{}

	if filter.PersonID != "" {
		where = append(where, fmt.Sprintf("tc.person_id = $%d", len(args)+1))
		args = append(args, filter.PersonID)
	}
	if filter.Program != "" {
		where = append(where, fmt.Sprintf("tc.program = $%d", len(args)+1))
		args = append(args, filter.Program)
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("tc.date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("tc.date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	whereClause := strings.Join(where, " AND ")

	allowedSort := map[string]string{
		"date":        "tc.date",
		"person_name": "p.full_name",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "date"
	}
	sortColumn, ok := allowedSort[sortBy]
	if !ok {
		sortColumn = "tc.date"
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

	query := fmt.Sprintf(`SELECT tc.id, tc.person_id, tc.program, tc.date, tc.check_in_at, tc.check_out_at,
        tc.notes, tc.created_at, tc.updated_at, p.full_name AS person_name
        %s WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, whereClause, sortColumn, order, size, offset)

	var rows []models.TeacherCheckInDetail
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list check-ins: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count check-ins: %w", err)
	}
	return rows, total, nil
}
