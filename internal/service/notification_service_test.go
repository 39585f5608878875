package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/markazapp/markaz-admin-api/internal/models"
	appErrors "github.com/markazapp/markaz-admin-api/pkg/errors"
)

type notificationLogStub struct {
	entries []*models.NotificationLog
}

func (s *notificationLogStub) Create(ctx context.Context, log *models.NotificationLog) error {
	s.entries = append(s.entries, log)
	return nil
}

func (s *notificationLogStub) List(ctx context.Context, filter models.NotificationFilter) ([]models.NotificationLog, int, error) {
	return nil, 0, nil
}

type dedupCacheStub struct {
	seen    map[string]bool
	deleted []string
}

func (s *dedupCacheStub) SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if s.seen == nil {
		s.seen = map[string]bool{}
	}
	if s.seen[key] {
		return false, nil
	}
	s.seen[key] = true
	return true, nil
}

func (s *dedupCacheStub) Delete(ctx context.Context, key string) error {
	s.deleted = append(s.deleted, key)
	delete(s.seen, key)
	return nil
}

type whatsappStub struct {
	calls []string
	err   error
}

func (s *whatsappStub) SendText(ctx context.Context, to, body string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.calls = append(s.calls, to)
	return "wamid-1", nil
}

type emailStub struct {
	calls []string
	err   error
}

func (s *emailStub) Send(ctx context.Context, to, subject, body string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.calls = append(s.calls, to)
	return "email-1", nil
}

func newTestNotificationService(log *notificationLogStub, cache *dedupCacheStub, wa *whatsappStub, em *emailStub) *NotificationService {
	svc := NewNotificationService(log, cache, wa, em, time.Hour, time.Millisecond, nil, zap.NewNop())
	svc.sleep = func(ctx context.Context, d time.Duration) error {
		return ctx.Err()
	}
	return svc
}

func TestNotificationServiceSendRecordsSent(t *testing.T) {
	log := &notificationLogStub{}
	wa := &whatsappStub{}
	svc := newTestNotificationService(log, &dedupCacheStub{}, wa, &emailStub{})

	entry, err := svc.Send(context.Background(), SendMessageRequest{
		Channel:   models.NotificationChannelWhatsApp,
		Recipient: "+15551234567",
		Template:  "fee_reminder",
		Body:      "Salaam",
	})
	require.NoError(t, err)
	assert.Equal(t, models.NotificationStatusSent, entry.Status)
	require.Len(t, wa.calls, 1)
	require.Len(t, log.entries, 1)
}

func TestNotificationServiceSendDedupesBeforeProviderCall(t *testing.T) {
	log := &notificationLogStub{}
	wa := &whatsappStub{}
	svc := newTestNotificationService(log, &dedupCacheStub{}, wa, &emailStub{})

	req := SendMessageRequest{
		Channel:   models.NotificationChannelWhatsApp,
		Recipient: "+15551234567",
		Template:  "fee_reminder",
		Body:      "Salaam",
	}
	_, err := svc.Send(context.Background(), req)
	require.NoError(t, err)

	_, err = svc.Send(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateSend.Code, appErrors.FromError(err).Code)
	assert.Len(t, wa.calls, 1, "provider must not be called for a duplicate")
	require.Len(t, log.entries, 2)
	assert.Equal(t, models.NotificationStatusSkipped, log.entries[1].Status)
}

func TestNotificationServiceDedupIsCaseInsensitive(t *testing.T) {
	em := &emailStub{}
	svc := newTestNotificationService(&notificationLogStub{}, &dedupCacheStub{}, &whatsappStub{}, em)

	first := SendMessageRequest{Channel: models.NotificationChannelEmail, Recipient: "Parent@Example.com", Template: "welcome", Body: "hi"}
	_, err := svc.Send(context.Background(), first)
	require.NoError(t, err)

	second := first
	second.Recipient = "parent@example.com"
	_, err = svc.Send(context.Background(), second)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateSend.Code, appErrors.FromError(err).Code)
	assert.Len(t, em.calls, 1)
}

func TestNotificationServiceProviderFailureReleasesMarker(t *testing.T) {
	log := &notificationLogStub{}
	cache := &dedupCacheStub{}
	wa := &whatsappStub{err: fmt.Errorf("graph api unreachable")}
	svc := newTestNotificationService(log, cache, wa, &emailStub{})

	req := SendMessageRequest{
		Channel:   models.NotificationChannelWhatsApp,
		Recipient: "+15551234567",
		Template:  "fee_reminder",
		Body:      "Salaam",
	}
	_, err := svc.Send(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrProviderFailure.Code, appErrors.FromError(err).Code)
	require.Len(t, cache.deleted, 1)
	require.Len(t, log.entries, 1)
	assert.Equal(t, models.NotificationStatusFailed, log.entries[0].Status)

	// The marker is released, so a retry goes through.
	wa.err = nil
	_, err = svc.Send(context.Background(), req)
	require.NoError(t, err)
}

func TestNotificationServiceBulkSendAggregates(t *testing.T) {
	wa := &whatsappStub{}
	svc := newTestNotificationService(&notificationLogStub{}, &dedupCacheStub{}, wa, &emailStub{})

	report, err := svc.BulkSend(context.Background(), BulkSendRequest{
		Channel:    models.NotificationChannelWhatsApp,
		Template:   "class_update",
		Body:       "Class moved to 10am",
		Recipients: []string{"+15550000001", "+15550000002", "+15550000001"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Requested)
	assert.Equal(t, 2, report.Sent)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Failed)
	assert.Len(t, wa.calls, 2)
}

func TestNotificationServiceBulkSendStopsOnCancel(t *testing.T) {
	wa := &whatsappStub{}
	svc := newTestNotificationService(&notificationLogStub{}, &dedupCacheStub{}, wa, &emailStub{})

	ctx, cancel := context.WithCancel(context.Background())
	svc.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	report, err := svc.BulkSend(ctx, BulkSendRequest{
		Channel:    models.NotificationChannelWhatsApp,
		Template:   "class_update",
		Body:       "Class moved to 10am",
		Recipients: []string{"+15550000001", "+15550000002", "+15550000003"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Requested)
	assert.Equal(t, 1, report.Sent)
	assert.Len(t, wa.calls, 1, "recipients after the cancel are unattempted")
}
