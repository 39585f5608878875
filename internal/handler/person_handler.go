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

// PersonHandler exposes person and contact point endpoints.
type PersonHandler struct {
	persons *service.PersonService
	lookup  *service.LookupService
}

// NewPersonHandler constructs PersonHandler.
func NewPersonHandler(persons *service.PersonService, lookup *service.LookupService) *PersonHandler {
	return &PersonHandler{persons: persons, lookup: lookup}
}

// List godoc
// @Summary List people
// @Tags People
// @Produce json
// @Param search query string false "Search by name or contact value"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /people [get]
func (h *PersonHandler) List(c *gin.Context) {
	var filter models.PersonFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	people, pagination, err := h.persons.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, people, pagination)
}

// Lookup godoc
// @Summary Search people across roles and programs
// @Tags People
// @Produce json
// @Param q query string true "Search query"
// @Param limit query int false "Max results"
// @Success 200 {object} response.Envelope
// @Router /people/lookup [get]
func (h *PersonHandler) Lookup(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	matches, err := h.lookup.Search(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, matches, nil)
}

// Get godoc
// @Summary Get person detail with roles and contacts
// @Tags People
// @Produce json
// @Param id path string true "Person ID"
// @Success 200 {object} response.Envelope
// @Router /people/{id} [get]
func (h *PersonHandler) Get(c *gin.Context) {
	match, err := h.persons.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, match, nil)
}

// Create godoc
// @Summary Create person
// @Tags People
// @Accept json
// @Produce json
// @Param payload body service.CreatePersonRequest true "Person payload"
// @Success 201 {object} response.Envelope
// @Router /people [post]
func (h *PersonHandler) Create(c *gin.Context) {
	var req service.CreatePersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	person, err := h.persons.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, person)
}

// Update godoc
// @Summary Update person
// @Tags People
// @Accept json
// @Produce json
// @Param id path string true "Person ID"
// @Param payload body service.UpdatePersonRequest true "Person payload"
// @Success 200 {object} response.Envelope
// @Router /people/{id} [put]
func (h *PersonHandler) Update(c *gin.Context) {
	var req service.UpdatePersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	person, err := h.persons.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, person, nil)
}

// ListContacts godoc
// @Summary List a person's contact points
// @Tags People
// @Produce json
// @Param id path string true "Person ID"
// @Success 200 {object} response.Envelope
// @Router /people/{id}/contacts [get]
func (h *PersonHandler) ListContacts(c *gin.Context) {
	contacts, err := h.persons.ListContacts(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, contacts, nil)
}

// AddContact godoc
// @Summary Add a contact point
// @Tags People
// @Accept json
// @Produce json
// @Param id path string true "Person ID"
// @Param payload body service.ContactPointRequest true "Contact payload"
// @Success 201 {object} response.Envelope
// @Router /people/{id}/contacts [post]
func (h *PersonHandler) AddContact(c *gin.Context) {
	var req service.ContactPointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	contact, err := h.persons.AddContact(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, contact)
}

// UpdateContact godoc
// @Summary Update a contact point
// @Tags People
// @Accept json
// @Produce json
// @Param id path string true "Person ID"
// @Param contactId path string true "Contact point ID"
// @Param payload body service.ContactPointRequest true "Contact payload"
// @Success 200 {object} response.Envelope
// @Router /people/{id}/contacts/{contactId} [put]
func (h *PersonHandler) UpdateContact(c *gin.Context) {
	var req service.ContactPointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	contact, err := h.persons.UpdateContact(c.Request.Context(), c.Param("id"), c.Param("contactId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, contact, nil)
}

// RemoveContact godoc
// @Summary Remove a contact point
// @Tags People
// @Param id path string true "Person ID"
// @Param contactId path string true "Contact point ID"
// @Success 204 {object} response.Envelope
// @Router /people/{id}/contacts/{contactId} [delete]
func (h *PersonHandler) RemoveContact(c *gin.Context) {
	if err := h.persons.RemoveContact(c.Request.Context(), c.Param("id"), c.Param("contactId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
