package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/markazapp/markaz-admin-api/internal/models"
	"github.com/markazapp/markaz-admin-api/internal/service"
	appErrors "github.com/markazapp/markaz-admin-api/pkg/errors"
	"github.com/markazapp/markaz-admin-api/pkg/response"
)

// NotificationHandler exposes WhatsApp and email send endpoints.
type NotificationHandler struct {
	notifications *service.NotificationService
}

// NewNotificationHandler constructs NotificationHandler.
func NewNotificationHandler(notifications *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// Send godoc
// @Summary Send a single message
// @Description Repeated sends of the same template to the same recipient inside the dedup window are rejected with a conflict.
// @Tags Notifications
// @Accept json
// @Produce json
// @Param payload body service.SendMessageRequest true "Message payload"
// @Success 200 {object} response.Envelope
// @Router /notifications/send [post]
func (h *NotificationHandler) Send(c *gin.Context) {
	var req service.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	entry, err := h.notifications.Send(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// BulkSend godoc
// @Summary Send a message to a list of recipients
// @Tags Notifications
// @Accept json
// @Produce json
// @Param payload body service.BulkSendRequest true "Bulk message payload"
// @Success 200 {object} response.Envelope
// @Router /notifications/bulk [post]
func (h *NotificationHandler) BulkSend(c *gin.Context) {
	var req service.BulkSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	report, err := h.notifications.BulkSend(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// History godoc
// @Summary List notification log entries
// @Tags Notifications
// @Produce json
// @Param channel query string false "WHATSAPP or EMAIL"
// @Param template query string false "Template name"
// @Param recipient query string false "Recipient"
// @Param status query string false "SENT, SKIPPED or FAILED"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) History(c *gin.Context) {
	var filter models.NotificationFilter
	filter.Channel = models.NotificationChannel(strings.ToUpper(c.Query("channel")))
	filter.Template = c.Query("template")
	filter.Recipient = c.Query("recipient")
	filter.Status = models.NotificationStatus(strings.ToUpper(c.Query("status")))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	entries, pagination, err := h.notifications.History(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, pagination)
}
