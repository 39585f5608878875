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

func newAttendanceRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestAttendanceRepositoryUpsertReturnsStoredRow(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "enrollment_id", "date", "status", "notes", "created_at", "updated_at"}).
		AddRow("att-1", "enr-1", date, models.AttendanceStatusPresent, nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO attendance_records")).
		WithArgs(sqlmock.AnyArg(), "enr-1", date, models.AttendanceStatusPresent, nil,
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(rows)

	stored, err := repo.Upsert(context.Background(), &models.AttendanceRecord{
		EnrollmentID: "enr-1",
		Date:         date,
		Status:       models.AttendanceStatusPresent,
	})
	require.NoError(t, err)
	require.Equal(t, "att-1", stored.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryBulkUpsertAtomicRollsBack(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO attendance_records")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO attendance_records")).
		WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	records := []models.AttendanceRecord{
		{EnrollmentID: "enr-1", Date: date, Status: models.AttendanceStatusPresent},
		{EnrollmentID: "enr-2", Date: date, Status: models.AttendanceStatusAbsent},
	}
	_, err := repo.BulkUpsert(context.Background(), records, true)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryBulkUpsertCollectsFailures(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "enrollment_id", "date", "status", "notes", "created_at", "updated_at"}).
		AddRow("att-1", "enr-1", date, models.AttendanceStatusPresent, nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO attendance_records")).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO attendance_records")).
		WillReturnError(context.DeadlineExceeded)

	records := []models.AttendanceRecord{
		{EnrollmentID: "enr-1", Date: date, Status: models.AttendanceStatusPresent},
		{EnrollmentID: "enr-2", Date: date, Status: models.AttendanceStatusAbsent},
	}
	failures, err := repo.BulkUpsert(context.Background(), records, false)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	require.Equal(t, "enr-2", failures[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositorySummaryComputesRate(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	rows := sqlmock.NewRows([]string{"enrollment_id", "present", "absent", "late", "excused", "total"}).
		AddRow("enr-1", 16, 2, 2, 0, 20)
	mock.ExpectQuery(regexp.QuoteMeta("FROM attendance_records WHERE enrollment_id = $1")).
		WithArgs("enr-1").
		WillReturnRows(rows)

	summary, err := repo.Summary(context.Background(), "enr-1")
	require.NoError(t, err)
	require.Equal(t, 20, summary.Total)
	require.InDelta(t, 0.9, summary.Rate, 0.0001)
	require.NoError(t, mock.ExpectationsWereMet())
}
