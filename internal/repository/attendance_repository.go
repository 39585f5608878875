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

// AttendanceRepository handles persistence of attendance records.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// List returns attendance rows matching the provided filter.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceDetail, int, error) {
	base := `FROM attendance_records ar
JOIN enrollments e ON e.id = ar.enrollment_id
JOIN program_profiles pp ON pp.id = e.program_profile_id
JOIN persons p ON p.id = pp.person_id
LEFT JOIN batches b ON b.id = e.batch_id`
	where := []string{"1=1"}
	args := []interface{}{}

	if filter.EnrollmentID != "" {
		where = append(where, fmt.Sprintf("ar.enrollment_id = $%d", len(args)+1))
		args = append(args, filter.EnrollmentID)
	}
	if filter.BatchID != "" {
		where = append(where, fmt.Sprintf("e.batch_id = $%d", len(args)+1))
		args = append(args, filter.BatchID)
	}
	if filter.Program != "" {
		where = append(where, fmt.Sprintf("pp.program = $%d", len(args)+1))
		args = append(args, filter.Program)
	}
	if filter.Status != nil && filter.Status.Valid() {
		where = append(where, fmt.Sprintf("ar.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("ar.date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("ar.date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	whereClause := strings.Join(where, " AND ")

	allowedSort := map[string]string{
		"date":       "ar.date",
		"status":     "ar.status",
		"created_at": "ar.created_at",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "date"
	}
	sortColumn, ok := allowedSort[sortBy]
	if !ok {
		sortColumn = "ar.date"
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
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT ar.id, ar.enrollment_id, ar.date, ar.status, ar.notes, ar.created_at, ar.updated_at,
        p.full_name AS person_name, pp.program, b.name AS batch_name
        %s WHERE %s
        ORDER BY %s %s
        LIMIT %d OFFSET %d`, base, whereClause, sortColumn, order, size, offset)

	var rows []models.AttendanceDetail
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance: %w", err)
	}
	return rows, total, nil
}

// Upsert inserts or updates an attendance record for one date.
func (r *AttendanceRepository) Upsert(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	const query = `INSERT INTO attendance_records (id, enrollment_id, date, status, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (enrollment_id, date)
DO UPDATE SET status = EXCLUDED.status, notes = EXCLUDED.notes, updated_at = EXCLUDED.updated_at
RETURNING id, enrollment_id, date, status, notes, created_at, updated_at`
	var stored models.AttendanceRecord
	if err := r.db.GetContext(ctx, &stored, query,
		record.ID, record.EnrollmentID, record.Date, record.Status, record.Notes, record.CreatedAt, record.UpdatedAt); err != nil {
		return nil, fmt.Errorf("upsert attendance: %w", err)
	}
	return &stored, nil
}

// BulkUpsert writes many records. In atomic mode everything happens in
// one transaction and the first failure rolls all of it back; otherwise
// failures are collected per record and prior writes stand.
func (r *AttendanceRepository) BulkUpsert(ctx context.Context, records []models.AttendanceRecord, atomic bool) ([]models.BulkItemError, error) {
	if atomic {
		tx, err := r.db.BeginTxx(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("begin attendance tx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck
		for i := range records {
			if err := upsertAttendanceTx(ctx, tx, &records[i]); err != nil {
				return nil, err
			}
		}
		return nil, tx.Commit()
	}

	var failures []models.BulkItemError
	for i := range records {
		if _, err := r.Upsert(ctx, &records[i]); err != nil {
			failures = append(failures, models.BulkItemError{ID: records[i].EnrollmentID, Reason: err.Error()})
		}
	}
	return failures, nil
}

// Summary aggregates status counts for one enrollment.
func (r *AttendanceRepository) Summary(ctx context.Context, enrollmentID string) (*models.AttendanceSummary, error) {
	const query = `SELECT $1 AS enrollment_id,
        COUNT(*) FILTER (WHERE status = 'PRESENT') AS present,
        COUNT(*) FILTER (WHERE status = 'ABSENT') AS absent,
        COUNT(*) FILTER (WHERE status = 'LATE') AS late,
        COUNT(*) FILTER (WHERE status = 'EXCUSED') AS excused,
        COUNT(*) AS total
        FROM attendance_records WHERE enrollment_id = $1`
	var summary models.AttendanceSummary
	if err := r.db.GetContext(ctx, &summary, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("attendance summary: %w", err)
	}
	if summary.Total > 0 {
		summary.Rate = float64(summary.Present+summary.Late) / float64(summary.Total)
	}
	return &summary, nil
}

func upsertAttendanceTx(ctx context.Context, tx *sqlx.Tx, record *models.AttendanceRecord) error {
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	const query = `INSERT INTO attendance_records (id, enrollment_id, date, status, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (enrollment_id, date)
DO UPDATE SET status = EXCLUDED.status, notes = EXCLUDED.notes, updated_at = EXCLUDED.updated_at`
	if _, err := tx.ExecContext(ctx, query,
		record.ID, record.EnrollmentID, record.Date, record.Status, record.Notes, record.CreatedAt, record.UpdatedAt); err != nil {
		return fmt.Errorf("upsert attendance %s: %w", record.EnrollmentID, err)
	}
	return nil
}
