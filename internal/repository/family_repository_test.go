package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/markazapp/markaz-admin-api/internal/models"
)

func newFamilyRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestFamilyRepositoryCreateGuardianUpserts(t *testing.T) {
	db, mock, cleanup := newFamilyRepoMock(t)
	defer cleanup()
	repo := NewFamilyRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO guardian_relationships")).
		WithArgs(sqlmock.AnyArg(), "guardian-1", "student-1", "MOTHER", true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rel := &models.GuardianRelationship{GuardianID: "guardian-1", StudentID: "student-1", Relationship: "MOTHER"}
	require.NoError(t, repo.CreateGuardian(context.Background(), rel))
	require.NotEmpty(t, rel.ID)
	require.True(t, rel.IsActive)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFamilyRepositoryDeactivateGuardianMissing(t *testing.T) {
	db, mock, cleanup := newFamilyRepoMock(t)
	defer cleanup()
	repo := NewFamilyRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE guardian_relationships SET is_active = FALSE")).
		WithArgs("rel-missing", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeactivateGuardian(context.Background(), "rel-missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFamilyRepositoryUpsertSiblingSortsPair(t *testing.T) {
	db, mock, cleanup := newFamilyRepoMock(t)
	defer cleanup()
	repo := NewFamilyRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sibling_relationships")).
		WithArgs(sqlmock.AnyArg(), "person-a", "person-b", models.SiblingDetectionManual, 1.0, true,
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rel := &models.SiblingRelationship{
		Person1ID:       "person-b",
		Person2ID:       "person-a",
		DetectionMethod: models.SiblingDetectionManual,
		Confidence:      1.0,
	}
	require.NoError(t, repo.UpsertSibling(context.Background(), rel))
	require.Equal(t, "person-a", rel.Person1ID)
	require.Equal(t, "person-b", rel.Person2ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFamilyRepositoryListSiblingsByPerson(t *testing.T) {
	db, mock, cleanup := newFamilyRepoMock(t)
	defer cleanup()
	repo := NewFamilyRepository(db)

	rows := sqlmock.NewRows([]string{"id", "person1_id", "person2_id", "detection_method", "confidence",
		"is_active", "created_at", "updated_at"}).
		AddRow("sib-1", "person-a", "person-b", models.SiblingDetectionFamilyReference, 0.95, true, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM sibling_relationships")).
		WithArgs("person-a").
		WillReturnRows(rows)

	siblings, err := repo.ListSiblingsByPerson(context.Background(), "person-a")
	require.NoError(t, err)
	require.Len(t, siblings, 1)
	require.Equal(t, models.SiblingDetectionFamilyReference, siblings[0].DetectionMethod)
	require.NoError(t, mock.ExpectationsWereMet())
}
