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

// AttendanceHandler exposes attendance endpoints.
type AttendanceHandler struct {
	attendance *service.AttendanceService
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(attendance *service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance}
}

func attendanceFilterFromQuery(c *gin.Context) models.AttendanceFilter {
	var filter models.AttendanceFilter
	filter.EnrollmentID = c.Query("enrollment_id")
	filter.BatchID = c.Query("batch_id")
	filter.Program = models.Program(strings.ToUpper(c.Query("program")))
	if raw := strings.ToUpper(c.Query("status")); raw != "" {
		status := models.AttendanceStatus(raw)
		filter.Status = &status
	}
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
	return filter
}

// List godoc
// @Summary List attendance records
// @Tags Attendance
// @Produce json
// @Param enrollment_id query string false "Enrollment ID"
// @Param batch_id query string false "Batch ID"
// @Param program query string false "MAHAD or DUGSI"
// @Param status query string false "Attendance status"
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /attendance [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	records, pagination, err := h.attendance.List(c.Request.Context(), attendanceFilterFromQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

// Mark godoc
// @Summary Mark attendance for one enrollment and date
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.MarkAttendanceRequest true "Attendance payload"
// @Success 200 {object} response.Envelope
// @Router /attendance [post]
func (h *AttendanceHandler) Mark(c *gin.Context) {
	var req service.MarkAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.attendance.Mark(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// BulkMark godoc
// @Summary Mark attendance for several enrollments at once
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.BulkMarkAttendanceRequest true "Bulk attendance payload"
// @Success 200 {object} response.Envelope
// @Router /attendance/bulk [post]
func (h *AttendanceHandler) BulkMark(c *gin.Context) {
	var req service.BulkMarkAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.attendance.BulkMark(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Summary godoc
// @Summary Attendance summary for an enrollment
// @Tags Attendance
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/attendance/summary [get]
func (h *AttendanceHandler) Summary(c *gin.Context) {
	summary, err := h.attendance.Summary(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
