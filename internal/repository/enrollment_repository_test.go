package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/markazapp/markaz-admin-api/internal/models"
)

func newEnrollmentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestEnrollmentRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "program_profile_id", "batch_id", "status", "start_date", "end_date", "created_at", "updated_at"}).
		AddRow("enr-1", "prof-1", nil, models.EnrollmentStatusRegistered, time.Now(), nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments WHERE id = $1")).
		WithArgs("enr-1").
		WillReturnRows(rows)

	enrollment, err := repo.FindByID(context.Background(), "enr-1")
	require.NoError(t, err)
	require.Equal(t, models.EnrollmentStatusRegistered, enrollment.Status)
	require.Nil(t, enrollment.BatchID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryExistsOpen(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM enrollments")).
		WithArgs("prof-1", models.EnrollmentStatusWithdrawn).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsOpen(context.Background(), "prof-1")
	require.NoError(t, err)
	require.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateFillsDefaults(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WithArgs(sqlmock.AnyArg(), "prof-1", nil, models.EnrollmentStatusRegistered,
			sqlmock.AnyArg(), nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	enrollment := &models.Enrollment{ProgramProfileID: "prof-1"}
	require.NoError(t, repo.Create(context.Background(), enrollment))
	require.NotEmpty(t, enrollment.ID)
	require.Equal(t, models.EnrollmentStatusRegistered, enrollment.Status)
	require.False(t, enrollment.StartDate.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUpdateStatus(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	endDate := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $2, end_date = $3, updated_at = $4 WHERE id = $1")).
		WithArgs("enr-1", models.EnrollmentStatusWithdrawn, &endDate, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateStatus(context.Background(), "enr-1", models.EnrollmentStatusWithdrawn, &endDate))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListFiltersByStatus(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "program_profile_id", "batch_id", "status", "start_date", "end_date",
		"created_at", "updated_at", "person_name", "program", "batch_name"}).
		AddRow("enr-1", "prof-1", "batch-1", models.EnrollmentStatusEnrolled, time.Now(), nil,
			time.Now(), time.Now(), "Amina Yusuf", models.ProgramMahad, "Morning Hifz")
	mock.ExpectQuery(regexp.QuoteMeta("e.status = $1")).
		WithArgs(models.EnrollmentStatusEnrolled).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs(models.EnrollmentStatusEnrolled).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	enrollments, total, err := repo.List(context.Background(), models.EnrollmentFilter{Status: models.EnrollmentStatusEnrolled})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, enrollments, 1)
	require.Equal(t, "Amina Yusuf", enrollments[0].PersonName)
	require.NoError(t, mock.ExpectationsWereMet())
}
