package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/markazapp/markaz-admin-api/internal/service"
	appErrors "github.com/markazapp/markaz-admin-api/pkg/errors"
	"github.com/markazapp/markaz-admin-api/pkg/response"
)

// ExportHandler streams roster, attendance and contact exports.
type ExportHandler struct {
	exports *service.ExportService
}

// NewExportHandler constructs ExportHandler.
func NewExportHandler(exports *service.ExportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

func exportFormatFromQuery(c *gin.Context) (service.ExportFormat, error) {
	format := service.ExportFormat(strings.ToLower(c.DefaultQuery("format", "csv")))
	switch format {
	case service.ExportFormatCSV, service.ExportFormatPDF:
		return format, nil
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}

func streamFile(c *gin.Context, file *service.ExportFile) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.Payload)
}

// BatchRoster godoc
// @Summary Export a batch roster as CSV or PDF
// @Tags Exports
// @Produce octet-stream
// @Param id path string true "Batch ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /batches/{id}/export [get]
func (h *ExportHandler) BatchRoster(c *gin.Context) {
	format, err := exportFormatFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.exports.BatchRoster(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	streamFile(c, file)
}

// AttendanceSheet godoc
// @Summary Export attendance records as CSV or PDF
// @Tags Exports
// @Produce octet-stream
// @Param batch_id query string false "Batch ID"
// @Param program query string false "MAHAD or DUGSI"
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date (YYYY-MM-DD)"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /attendance/export [get]
func (h *ExportHandler) AttendanceSheet(c *gin.Context) {
	format, err := exportFormatFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.exports.AttendanceSheet(c.Request.Context(), attendanceFilterFromQuery(c), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	streamFile(c, file)
}

// BatchContacts godoc
// @Summary Export a batch's student contacts as a vCard file
// @Tags Exports
// @Produce octet-stream
// @Param id path string true "Batch ID"
// @Success 200 {file} file
// @Router /batches/{id}/contacts/export [get]
func (h *ExportHandler) BatchContacts(c *gin.Context) {
	file, err := h.exports.BatchContacts(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	streamFile(c, file)
}
