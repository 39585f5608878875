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

// ProfileHandler exposes program profile endpoints, including
// deletion and duplicate resolution.
type ProfileHandler struct {
	profiles   *service.ProfileService
	duplicates *service.DuplicateService
}

// NewProfileHandler constructs ProfileHandler.
func NewProfileHandler(profiles *service.ProfileService, duplicates *service.DuplicateService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, duplicates: duplicates}
}

// List godoc
// @Summary List program profiles
// @Tags Profiles
// @Produce json
// @Param program query string false "MAHAD or DUGSI"
// @Param status query string false "Profile status"
// @Param person_id query string false "Person ID"
// @Param family_reference_id query string false "Family reference"
// @Param search query string false "Search by name"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /profiles [get]
func (h *ProfileHandler) List(c *gin.Context) {
	var filter models.ProgramProfileFilter
	filter.PersonID = c.Query("person_id")
	filter.Program = models.Program(strings.ToUpper(c.Query("program")))
	filter.Status = models.ProfileStatus(strings.ToUpper(c.Query("status")))
	filter.FamilyReferenceID = c.Query("family_reference_id")
	filter.Search = strings.TrimSpace(c.Query("search"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	profiles, pagination, err := h.profiles.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profiles, pagination)
}

// Get godoc
// @Summary Get program profile
// @Tags Profiles
// @Produce json
// @Param id path string true "Profile ID"
// @Success 200 {object} response.Envelope
// @Router /profiles/{id} [get]
func (h *ProfileHandler) Get(c *gin.Context) {
	profile, err := h.profiles.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// Create godoc
// @Summary Create program profile
// @Tags Profiles
// @Accept json
// @Produce json
// @Param payload body service.CreateProfileRequest true "Profile payload"
// @Success 201 {object} response.Envelope
// @Router /profiles [post]
func (h *ProfileHandler) Create(c *gin.Context) {
	var req service.CreateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	profile, err := h.profiles.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, profile)
}

// Update godoc
// @Summary Update program profile
// @Tags Profiles
// @Accept json
// @Produce json
// @Param id path string true "Profile ID"
// @Param payload body service.UpdateProfileRequest true "Profile payload"
// @Success 200 {object} response.Envelope
// @Router /profiles/{id} [put]
func (h *ProfileHandler) Update(c *gin.Context) {
	var req service.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	profile, err := h.profiles.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// Delete godoc
// @Summary Delete program profile
// @Description Mahad profiles are withdrawn; Dugsi profiles are removed together with their family group and any shared subscriptions are canceled.
// @Tags Profiles
// @Produce json
// @Param id path string true "Profile ID"
// @Success 200 {object} response.Envelope
// @Router /profiles/{id} [delete]
func (h *ProfileHandler) Delete(c *gin.Context) {
	result, err := h.profiles.Delete(c.Request.Context(), c.Param("id"), actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ResolveDuplicates godoc
// @Summary Resolve duplicate profiles
// @Tags Profiles
// @Accept json
// @Produce json
// @Param payload body service.ResolveDuplicatesRequest true "Resolution payload"
// @Success 200 {object} response.Envelope
// @Router /profiles/duplicates/resolve [post]
func (h *ProfileHandler) ResolveDuplicates(c *gin.Context) {
	var req service.ResolveDuplicatesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.duplicates.Resolve(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
