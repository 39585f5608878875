package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/markazapp/markaz-admin-api/internal/service"
	appErrors "github.com/markazapp/markaz-admin-api/pkg/errors"
	"github.com/markazapp/markaz-admin-api/pkg/response"
)

// FamilyHandler exposes guardian, sibling and family-pricing endpoints.
type FamilyHandler struct {
	families *service.FamilyService
}

// NewFamilyHandler constructs FamilyHandler.
func NewFamilyHandler(families *service.FamilyService) *FamilyHandler {
	return &FamilyHandler{families: families}
}

type removeSiblingRequest struct {
	Person1ID string `json:"person1_id" binding:"required"`
	Person2ID string `json:"person2_id" binding:"required"`
}

// AddGuardian godoc
// @Summary Link a guardian to a student
// @Tags Families
// @Accept json
// @Produce json
// @Param payload body service.CreateGuardianRequest true "Guardian link payload"
// @Success 201 {object} response.Envelope
// @Router /families/guardians [post]
func (h *FamilyHandler) AddGuardian(c *gin.Context) {
	var req service.CreateGuardianRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	link, err := h.families.AddGuardian(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, link)
}

// RemoveGuardian godoc
// @Summary Remove a guardian link
// @Tags Families
// @Param id path string true "Guardian relationship ID"
// @Success 204 {object} response.Envelope
// @Router /families/guardians/{id} [delete]
func (h *FamilyHandler) RemoveGuardian(c *gin.Context) {
	if err := h.families.RemoveGuardian(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// GuardiansOf godoc
// @Summary List guardians of a student
// @Tags Families
// @Produce json
// @Param id path string true "Student person ID"
// @Success 200 {object} response.Envelope
// @Router /people/{id}/guardians [get]
func (h *FamilyHandler) GuardiansOf(c *gin.Context) {
	links, err := h.families.GuardiansOf(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, links, nil)
}

// StudentsOf godoc
// @Summary List students of a guardian
// @Tags Families
// @Produce json
// @Param id path string true "Guardian person ID"
// @Success 200 {object} response.Envelope
// @Router /people/{id}/students [get]
func (h *FamilyHandler) StudentsOf(c *gin.Context) {
	links, err := h.families.StudentsOf(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, links, nil)
}

// AddSibling godoc
// @Summary Record a confirmed sibling pair
// @Tags Families
// @Accept json
// @Produce json
// @Param payload body service.CreateSiblingRequest true "Sibling pair payload"
// @Success 201 {object} response.Envelope
// @Router /families/siblings [post]
func (h *FamilyHandler) AddSibling(c *gin.Context) {
	var req service.CreateSiblingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	link, err := h.families.AddSibling(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, link)
}

// RemoveSibling godoc
// @Summary Remove a sibling pair
// @Tags Families
// @Accept json
// @Param payload body removeSiblingRequest true "Sibling pair payload"
// @Success 204 {object} response.Envelope
// @Router /families/siblings [delete]
func (h *FamilyHandler) RemoveSibling(c *gin.Context) {
	var req removeSiblingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.families.RemoveSibling(c.Request.Context(), req.Person1ID, req.Person2ID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// SiblingsOf godoc
// @Summary List siblings of a person
// @Tags Families
// @Produce json
// @Param id path string true "Person ID"
// @Success 200 {object} response.Envelope
// @Router /people/{id}/siblings [get]
func (h *FamilyHandler) SiblingsOf(c *gin.Context) {
	links, err := h.families.SiblingsOf(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, links, nil)
}

// DetectSiblings godoc
// @Summary Detect sibling candidates from family references and shared guardian contacts
// @Tags Families
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /families/siblings/detect [post]
func (h *FamilyHandler) DetectSiblings(c *gin.Context) {
	candidates, err := h.families.DetectSiblings(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, candidates, nil)
}

// FamilyGroup godoc
// @Summary Get the family group for a family reference
// @Tags Families
// @Produce json
// @Param id path string true "Family reference ID"
// @Success 200 {object} response.Envelope
// @Router /families/{id} [get]
func (h *FamilyHandler) FamilyGroup(c *gin.Context) {
	group, err := h.families.FamilyGroup(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, group, nil)
}

// MonthlyRate godoc
// @Summary Preview the tiered Dugsi monthly total for a family
// @Tags Families
// @Produce json
// @Param id path string true "Family reference ID"
// @Success 200 {object} response.Envelope
// @Router /families/{id}/rate [get]
func (h *FamilyHandler) MonthlyRate(c *gin.Context) {
	total, students, err := h.families.FamilyMonthlyTotal(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	var rate int64
	if students > 0 {
		rate = service.CalculateDugsiRate(students)
	}
	response.JSON(c, http.StatusOK, gin.H{
		"family_reference_id": c.Param("id"),
		"active_students":     students,
		"monthly_total_cents": total,
		"per_student_cents":   rate,
	}, nil)
}

// RatePreview godoc
// @Summary Preview the per-student Dugsi rate for a student count
// @Tags Families
// @Produce json
// @Param students query int true "Active student count"
// @Success 200 {object} response.Envelope
// @Router /families/rate-preview [get]
func (h *FamilyHandler) RatePreview(c *gin.Context) {
	students, err := strconv.Atoi(c.Query("students"))
	if err != nil || students < 1 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "students must be a positive integer"))
		return
	}
	rate := service.CalculateDugsiRate(students)
	response.JSON(c, http.StatusOK, gin.H{
		"active_students":     students,
		"monthly_total_cents": int64(students) * rate,
		"per_student_cents":   rate,
	}, nil)
}
