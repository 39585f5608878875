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

// PersonRepository handles persistence of canonical person records.
type PersonRepository struct {
	db *sqlx.DB
}

// NewPersonRepository constructs the repository.
func NewPersonRepository(db *sqlx.DB) *PersonRepository {
	return &PersonRepository{db: db}
}

// List returns people filtered by the provided criteria. Search matches
// names and contact values.
func (r *PersonRepository) List(ctx context.Context, filter models.PersonFilter) ([]models.Person, int, error) {
	base := `FROM persons p`
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		base += ` LEFT JOIN contact_points cp ON cp.person_id = p.id AND cp.is_active`
		conditions = append(conditions, fmt.Sprintf("(p.full_name ILIKE $%d OR cp.value ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"full_name":  "p.full_name",
		"created_at": "p.created_at",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "full_name"
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

	query := fmt.Sprintf(`SELECT DISTINCT p.id, p.full_name, p.date_of_birth, p.gender, p.notes, p.created_at, p.updated_at
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var people []models.Person
	if err := r.db.SelectContext(ctx, &people, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list persons: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(DISTINCT p.id) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count persons: %w", err)
	}
	return people, total, nil
}

// FindByID returns a person by its ID.
func (r *PersonRepository) FindByID(ctx context.Context, id string) (*models.Person, error) {
	const query = `SELECT id, full_name, date_of_birth, gender, notes, created_at, updated_at FROM persons WHERE id = $1`
	var person models.Person
	if err := r.db.GetContext(ctx, &person, query, id); err != nil {
		return nil, err
	}
	return &person, nil
}

// Create persists a new person record.
func (r *PersonRepository) Create(ctx context.Context, person *models.Person) error {
	now := time.Now().UTC()
	if person.ID == "" {
		person.ID = uuid.NewString()
	}
	person.CreatedAt = now
	person.UpdatedAt = now
	const query = `INSERT INTO persons (id, full_name, date_of_birth, gender, notes, created_at, updated_at)
        VALUES (:id, :full_name, :date_of_birth, :gender, :notes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, person); err != nil {
		return fmt.Errorf("create person: %w", err)
	}
	return nil
}

// Update rewrites the mutable fields of a person.
func (r *PersonRepository) Update(ctx context.Context, person *models.Person) error {
	person.UpdatedAt = time.Now().UTC()
	const query = `UPDATE persons SET full_name = :full_name, date_of_birth = :date_of_birth,
        gender = :gender, notes = :notes, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, person); err != nil {
		return fmt.Errorf("update person: %w", err)
	}
	return nil
}

// Roles returns the roles a person currently holds.
func (r *PersonRepository) Roles(ctx context.Context, personID string) ([]models.PersonRole, []models.Program, error) {
	const profileQuery = `SELECT program FROM program_profiles WHERE person_id = $1 AND status <> 'WITHDRAWN'`
	var programs []models.Program
	if err := r.db.SelectContext(ctx, &programs, profileQuery, personID); err != nil {
		return nil, nil, fmt.Errorf("person programs: %w", err)
	}

	var roles []models.PersonRole
	if len(programs) > 0 {
		roles = append(roles, models.PersonRoleStudent)
	}

	const guardianQuery = `SELECT COUNT(*) FROM guardian_relationships WHERE guardian_id = $1 AND is_active`
	var guardianCount int
	if err := r.db.GetContext(ctx, &guardianCount, guardianQuery, personID); err != nil {
		return nil, nil, fmt.Errorf("person guardian links: %w", err)
	}
	if guardianCount > 0 {
		roles = append(roles, models.PersonRoleParent)
	}

	const teacherQuery = `SELECT (SELECT COUNT(*) FROM batches WHERE lead_teacher_id = $1) +
        (SELECT COUNT(*) FROM teacher_check_ins WHERE person_id = $1)`
	var teacherCount int
	if err := r.db.GetContext(ctx, &teacherCount, teacherQuery, personID); err != nil {
		return nil, nil, fmt.Errorf("person teacher activity: %w", err)
	}
	if teacherCount > 0 {
		roles = append(roles, models.PersonRoleTeacher)
	}

	return roles, programs, nil
}
