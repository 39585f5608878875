package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/markazapp/markaz-admin-api/internal/models"
	appErrors "github.com/markazapp/markaz-admin-api/pkg/errors"
)

type checkInRepoStub struct {
	byKey     map[string]*models.TeacherCheckIn
	created   []*models.TeacherCheckIn
	checkOuts []time.Time
}

func checkInKey(personID string, date time.Time) string {
	return personID + "|" + date.Format("2006-01-02")
}

func (s *checkInRepoStub) FindByPersonAndDate(ctx context.Context, personID string, date time.Time) (*models.TeacherCheckIn, error) {
	if c, ok := s.byKey[checkInKey(personID, date)]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (s *checkInRepoStub) Create(ctx context.Context, checkIn *models.TeacherCheckIn) error {
	if s.byKey == nil {
		s.byKey = map[string]*models.TeacherCheckIn{}
	}
	checkIn.ID = "checkin-1"
	s.byKey[checkInKey(checkIn.PersonID, checkIn.Date)] = checkIn
	s.created = append(s.created, checkIn)
	return nil
}

func (s *checkInRepoStub) SetCheckOut(ctx context.Context, id string, checkOutAt time.Time) error {
	s.checkOuts = append(s.checkOuts, checkOutAt)
	return nil
}

func (s *checkInRepoStub) List(ctx context.Context, filter models.CheckInFilter) ([]models.TeacherCheckInDetail, int, error) {
	return nil, 0, nil
}

func newTestCheckInService(repo *checkInRepoStub, at time.Time) *CheckInService {
	svc := NewCheckInService(repo, nil, zap.NewNop())
	svc.now = func() time.Time { return at }
	return svc
}

func TestCheckInServiceCheckIn(t *testing.T) {
	repo := &checkInRepoStub{}
	at := time.Date(2026, 3, 14, 8, 30, 0, 0, time.UTC)
	svc := newTestCheckInService(repo, at)

	checkIn, err := svc.CheckIn(context.Background(), CheckInRequest{PersonID: "teacher-1", Program: models.ProgramMahad})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), checkIn.Date)
	assert.Equal(t, at, checkIn.CheckInAt)
	require.Len(t, repo.created, 1)
}

func TestCheckInServiceRejectsSecondCheckInSameDay(t *testing.T) {
	repo := &checkInRepoStub{}
	at := time.Date(2026, 3, 14, 8, 30, 0, 0, time.UTC)
	svc := newTestCheckInService(repo, at)

	_, err := svc.CheckIn(context.Background(), CheckInRequest{PersonID: "teacher-1", Program: models.ProgramMahad})
	require.NoError(t, err)

	svc.now = func() time.Time { return at.Add(4 * time.Hour) }
	_, err = svc.CheckIn(context.Background(), CheckInRequest{PersonID: "teacher-1", Program: models.ProgramMahad})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Len(t, repo.created, 1)
}

func TestCheckInServiceAllowsNextDay(t *testing.T) {
	repo := &checkInRepoStub{}
	at := time.Date(2026, 3, 14, 8, 30, 0, 0, time.UTC)
	svc := newTestCheckInService(repo, at)

	_, err := svc.CheckIn(context.Background(), CheckInRequest{PersonID: "teacher-1", Program: models.ProgramDugsi})
	require.NoError(t, err)

	svc.now = func() time.Time { return at.Add(24 * time.Hour) }
	_, err = svc.CheckIn(context.Background(), CheckInRequest{PersonID: "teacher-1", Program: models.ProgramDugsi})
	require.NoError(t, err)
	assert.Len(t, repo.created, 2)
}

func TestCheckInServiceCheckOutWithoutCheckIn(t *testing.T) {
	repo := &checkInRepoStub{}
	svc := newTestCheckInService(repo, time.Date(2026, 3, 14, 16, 0, 0, 0, time.UTC))

	_, err := svc.CheckOut(context.Background(), "teacher-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestCheckInServiceDoubleCheckOut(t *testing.T) {
	repo := &checkInRepoStub{}
	at := time.Date(2026, 3, 14, 8, 30, 0, 0, time.UTC)
	svc := newTestCheckInService(repo, at)

	_, err := svc.CheckIn(context.Background(), CheckInRequest{PersonID: "teacher-1", Program: models.ProgramMahad})
	require.NoError(t, err)

	svc.now = func() time.Time { return at.Add(8 * time.Hour) }
	checkIn, err := svc.CheckOut(context.Background(), "teacher-1")
	require.NoError(t, err)
	require.NotNil(t, checkIn.CheckOutAt)

	_, err = svc.CheckOut(context.Background(), "teacher-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Len(t, repo.checkOuts, 1)
}
