package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/markazapp/markaz-admin-api/internal/models"
	"github.com/markazapp/markaz-admin-api/internal/service"
	appErrors "github.com/markazapp/markaz-admin-api/pkg/errors"
	"github.com/markazapp/markaz-admin-api/pkg/response"
)

// CheckInHandler exposes teacher check-in endpoints.
type CheckInHandler struct {
	checkins *service.CheckInService
}

// NewCheckInHandler constructs CheckInHandler.
func NewCheckInHandler(checkins *service.CheckInService) *CheckInHandler {
	return &CheckInHandler{checkins: checkins}
}

// List godoc
// @Summary List teacher check-ins
// @Tags CheckIns
// @Produce json
// @Param person_id query string false "Teacher person ID"
// @Param program query string false "MAHAD or DUGSI"
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /checkins [get]
func (h *CheckInHandler) List(c *gin.Context) {
	var filter models.CheckInFilter
	filter.PersonID = c.Query("person_id")
	filter.Program = models.Program(strings.ToUpper(c.Query("program")))
	if raw := c.Query("from"); raw != "" {
		if from, err := time.Parse("2006-01-02", raw); err == nil {
			filter.DateFrom = &from
		}
	}
	if raw := c.Query("to"); raw != "" {
		if to, err := time.Parse("2006-01-02", raw); err == nil {
			filter.DateTo = &to
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	checkins, pagination, err := h.checkins.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, checkins, pagination)
}

// CheckIn godoc
// @Summary Record a teacher check-in for today
// @Tags CheckIns
// @Accept json
// @Produce json
// @Param payload body service.CheckInRequest true "Check-in payload"
// @Success 201 {object} response.Envelope
// @Router /checkins [post]
func (h *CheckInHandler) CheckIn(c *gin.Context) {
	var req service.CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	checkin, err := h.checkins.CheckIn(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, checkin)
}

// CheckOut godoc
// @Summary Close today's open check-in for a teacher
// @Tags CheckIns
// @Produce json
// @Param id path string true "Teacher person ID"
// @Success 200 {object} response.Envelope
// @Router /checkins/{id}/checkout [post]
func (h *CheckInHandler) CheckOut(c *gin.Context) {
	checkin, err := h.checkins.CheckOut(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, checkin, nil)
}
