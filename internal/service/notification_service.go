package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/markazapp/markaz-admin-api/internal/models"
	appErrors "github.com/markazapp/markaz-admin-api/pkg/errors"
)

type notificationRepository interface {
	Create(ctx context.Context, log *models.NotificationLog) error
	List(ctx context.Context, filter models.NotificationFilter) ([]models.NotificationLog, int, error)
}

type dedupCache interface {
	SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

type whatsappSender interface {
	SendText(ctx context.Context, to, body string) (string, error)
}

type emailSender interface {
	Send(ctx context.Context, to, subject, body string) (string, error)
}

// SendMessageRequest delivers one rendered message to one recipient.
// Template names the message kind for dedup purposes; two sends of the
// same template to the same recipient inside the dedup window collapse
// into one.
type SendMessageRequest struct {
	Channel   models.NotificationChannel `json:"channel" validate:"required,oneof=WHATSAPP EMAIL"`
	Recipient string                     `json:"recipient" validate:"required"`
	Template  string                     `json:"template" validate:"required"`
	Subject   string                     `json:"subject"`
	Body      string                     `json:"body" validate:"required"`
	PersonID  *string                    `json:"person_id"`
}

// BulkSendRequest delivers the same template to many recipients.
type BulkSendRequest struct {
	Channel    models.NotificationChannel `json:"channel" validate:"required,oneof=WHATSAPP EMAIL"`
	Template   string                     `json:"template" validate:"required"`
	Subject    string                     `json:"subject"`
	Body       string                     `json:"body" validate:"required"`
	Recipients []string                   `json:"recipients" validate:"required,min=1"`
}

// NotificationService sends WhatsApp and email messages with a dedup
// window and a fixed inter-send delay for bulk traffic.
type NotificationService struct {
	log         notificationRepository
	cache       dedupCache
	whatsapp    whatsappSender
	email       emailSender
	dedupWindow time.Duration
	sendDelay   time.Duration
	validator   *validator.Validate
	logger      *zap.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewNotificationService constructs the notification service.
func NewNotificationService(
	log notificationRepository,
	cache dedupCache,
	whatsapp whatsappSender,
	email emailSender,
	dedupWindow, sendDelay time.Duration,
	validate *validator.Validate,
	logger *zap.Logger,
) *NotificationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if dedupWindow <= 0 {
		dedupWindow = 24 * time.Hour
	}
	if sendDelay <= 0 {
		sendDelay = 1100 * time.Millisecond
	}
	return &NotificationService{
		log:         log,
		cache:       cache,
		whatsapp:    whatsapp,
		email:       email,
		dedupWindow: dedupWindow,
		sendDelay:   sendDelay,
		validator:   validate,
		logger:      logger,
		sleep:       sleepCtx,
	}
}

// History returns the send log.
func (s *NotificationService) History(ctx context.Context, filter models.NotificationFilter) ([]models.NotificationLog, *models.Pagination, error) {
	logs, total, err := s.log.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return logs, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Send delivers one message. A repeat of the same template to the same
// recipient inside the dedup window is rejected before any provider
// call is made.
func (s *NotificationService) Send(ctx context.Context, req SendMessageRequest) (*models.NotificationLog, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid send payload")
	}

	key := dedupKey(req.Channel, req.Template, req.Recipient)
	fresh, err := s.cache.SetIfAbsent(ctx, key, s.dedupWindow)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check dedup window")
	}
	if !fresh {
		s.record(ctx, req, models.NotificationStatusSkipped, strPtr("already sent within dedup window"))
		return nil, appErrors.Clone(appErrors.ErrDuplicateSend, "already sent")
	}

	if err := s.deliver(ctx, req); err != nil {
		// Release the marker so a retry is not locked out for the
		// whole window.
		if delErr := s.cache.Delete(ctx, key); delErr != nil {
			s.logger.Warn("failed to release dedup marker", zap.String("key", key), zap.Error(delErr))
		}
		msg := err.Error()
		s.record(ctx, req, models.NotificationStatusFailed, &msg)
		return nil, appErrors.Wrap(err, appErrors.ErrProviderFailure.Code, appErrors.ErrProviderFailure.Status, "failed to deliver message")
	}

	return s.record(ctx, req, models.NotificationStatusSent, nil), nil
}

// BulkSend delivers the same message to many recipients sequentially,
// pausing a fixed delay between sends to respect provider rate limits.
// The outcome is reported only as aggregate counts.
func (s *NotificationService) BulkSend(ctx context.Context, req BulkSendRequest) (*models.BulkSendReport, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk send payload")
	}

	report := &models.BulkSendReport{Requested: len(req.Recipients)}
	for i, recipient := range req.Recipients {
		if i > 0 {
			if err := s.sleep(ctx, s.sendDelay); err != nil {
				// Context canceled mid-loop: prior sends stand, the
				// rest are unattempted.
				return report, nil
			}
		}
		_, err := s.Send(ctx, SendMessageRequest{
			Channel:   req.Channel,
			Recipient: recipient,
			Template:  req.Template,
			Subject:   req.Subject,
			Body:      req.Body,
		})
		switch {
		case err == nil:
			report.Sent++
		case isDuplicateSend(err):
			report.Skipped++
		default:
			report.Failed++
		}
	}
	return report, nil
}

func (s *NotificationService) deliver(ctx context.Context, req SendMessageRequest) error {
	switch req.Channel {
	case models.NotificationChannelWhatsApp:
		if s.whatsapp == nil {
			return fmt.Errorf("whatsapp sender not configured")
		}
		_, err := s.whatsapp.SendText(ctx, req.Recipient, req.Body)
		return err
	case models.NotificationChannelEmail:
		if s.email == nil {
			return fmt.Errorf("email sender not configured")
		}
		_, err := s.email.Send(ctx, req.Recipient, req.Subject, req.Body)
		return err
	default:
		return fmt.Errorf("unknown channel %s", req.Channel)
	}
}

func (s *NotificationService) record(ctx context.Context, req SendMessageRequest, status models.NotificationStatus, errMsg *string) *models.NotificationLog {
	entry := &models.NotificationLog{
		Channel:   req.Channel,
		Template:  req.Template,
		Recipient: req.Recipient,
		PersonID:  req.PersonID,
		Status:    status,
		Error:     errMsg,
	}
	if err := s.log.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record notification log",
			zap.String("recipient", req.Recipient), zap.Error(err))
	}
	return entry
}

func dedupKey(channel models.NotificationChannel, template, recipient string) string {
	return fmt.Sprintf("notify:%s:%s:%s", channel, template, strings.ToLower(recipient))
}

func isDuplicateSend(err error) bool {
	e := appErrors.FromError(err)
	return e != nil && e.Code == appErrors.ErrDuplicateSend.Code
}

func strPtr(s string) *string {
	return &s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
