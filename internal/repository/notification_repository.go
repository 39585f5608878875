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

// NotificationRepository persists the outbound send log.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create records a send attempt.
func (r *NotificationRepository) Create(ctx context.Context, log *models.NotificationLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notification_logs (id, channel, template, recipient, person_id, status, error, created_at)
        VALUES (:id, :channel, :template, :recipient, :person_id, :status, :error, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create notification log: %w", err)
	}
	return nil
}

// List returns send log entries matching the provided filter.
func (r *NotificationRepository) List(ctx context.Context, filter models.NotificationFilter) ([]models.NotificationLog, int, error) {
	base := `FROM notification_logs nl`
	where := []string{"1=1"}
	args := []interface{}{}

	if filter.Channel != "" {
		where = append(where, fmt.Sprintf("nl.channel = $%d", len(args)+1))
		args = append(args, filter.Channel)
	}
	if filter.Template != "" {
		where = append(where, fmt.Sprintf("nl.template = $%d", len(args)+1))
		args = append(args, filter.Template)
	}
	if filter.Recipient != "" {
		where = append(where, fmt.Sprintf("nl.recipient = $%d", len(args)+1))
		args = append(args, filter.Recipient)
	}
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("nl.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	whereClause := strings.Join(where, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT nl.id, nl.channel, nl.template, nl.recipient, nl.person_id, nl.status, nl.error, nl.created_at
        %s WHERE %s ORDER BY nl.created_at DESC LIMIT %d OFFSET %d`, base, whereClause, size, offset)

	var logs []models.NotificationLog
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list notification logs: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count notification logs: %w", err)
	}
	return logs, total, nil
}
