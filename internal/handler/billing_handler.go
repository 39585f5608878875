package handler

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v78"

	"github.com/markazapp/markaz-admin-api/internal/models"
	"github.com/markazapp/markaz-admin-api/internal/service"
	appErrors "github.com/markazapp/markaz-admin-api/pkg/errors"
	"github.com/markazapp/markaz-admin-api/pkg/response"
)

// WebhookVerifier checks a Stripe webhook signature and decodes the
// event. One verifier per Stripe account.
type WebhookVerifier interface {
	VerifyWebhook(payload []byte, sigHeader string) (stripe.Event, error)
}

// BillingHandler exposes subscription endpoints and the per-program
// Stripe webhook.
type BillingHandler struct {
	billing   *service.BillingService
	verifiers map[models.Program]WebhookVerifier
}

// NewBillingHandler constructs BillingHandler.
func NewBillingHandler(billing *service.BillingService, verifiers map[models.Program]WebhookVerifier) *BillingHandler {
	return &BillingHandler{billing: billing, verifiers: verifiers}
}

type cancelSubscriptionRequest struct {
	Program              models.Program `json:"program" binding:"required"`
	StripeSubscriptionID string         `json:"stripe_subscription_id" binding:"required"`
}

// Link godoc
// @Summary Link a Stripe subscription to program profiles by payer email
// @Tags Billing
// @Accept json
// @Produce json
// @Param payload body service.LinkSubscriptionRequest true "Link payload"
// @Success 200 {object} response.Envelope
// @Router /billing/subscriptions/link [post]
func (h *BillingHandler) Link(c *gin.Context) {
	var req service.LinkSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.billing.LinkSubscription(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Cancel godoc
// @Summary Cancel a Stripe subscription
// @Tags Billing
// @Accept json
// @Produce json
// @Param payload body cancelSubscriptionRequest true "Cancel payload"
// @Success 200 {object} response.Envelope
// @Router /billing/subscriptions/cancel [post]
func (h *BillingHandler) Cancel(c *gin.Context) {
	var req cancelSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	sub, err := h.billing.Cancel(c.Request.Context(), req.Program, req.StripeSubscriptionID, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sub, nil)
}

// ProfileSubscriptions godoc
// @Summary List subscriptions covering a program profile
// @Tags Billing
// @Produce json
// @Param id path string true "Profile ID"
// @Success 200 {object} response.Envelope
// @Router /profiles/{id}/subscriptions [get]
func (h *BillingHandler) ProfileSubscriptions(c *gin.Context) {
	subs, err := h.billing.ProfileSubscriptions(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subs, nil)
}

// Sync godoc
// @Summary Re-sync open subscriptions from Stripe
// @Tags Billing
// @Produce json
// @Param program query string false "MAHAD or DUGSI; defaults to both"
// @Success 202 {object} response.Envelope
// @Router /billing/subscriptions/sync [post]
func (h *BillingHandler) Sync(c *gin.Context) {
	program := models.Program(strings.ToUpper(c.Query("program")))
	if program != "" && !program.Valid() {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown program"))
		return
	}
	enqueued, err := h.billing.SyncAll(c.Request.Context(), program)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, gin.H{"enqueued": enqueued}, nil)
}

// Webhook godoc
// @Summary Stripe webhook receiver
// @Description Verifies the signature against the program's webhook secret and applies the event.
// @Tags Billing
// @Accept json
// @Produce json
// @Param program path string true "mahad or dugsi"
// @Success 200 {object} response.Envelope
// @Router /webhooks/stripe/{program} [post]
func (h *BillingHandler) Webhook(c *gin.Context) {
	program := models.Program(strings.ToUpper(c.Param("program")))
	verifier, ok := h.verifiers[program]
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "unknown program"))
		return
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read payload"))
		return
	}

	event, err := verifier.VerifyWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, http.StatusBadRequest, "webhook signature verification failed"))
		return
	}

	if err := h.billing.HandleWebhookEvent(c.Request.Context(), program, event); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"received": true}, nil)
}
