package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/markazapp/markaz-admin-api/internal/models"
	appErrors "github.com/markazapp/markaz-admin-api/pkg/errors"
)

type personRepository interface {
	List(ctx context.Context, filter models.PersonFilter) ([]models.Person, int, error)
	FindByID(ctx context.Context, id string) (*models.Person, error)
	Create(ctx context.Context, person *models.Person) error
	Update(ctx context.Context, person *models.Person) error
	Roles(ctx context.Context, personID string) ([]models.PersonRole, []models.Program, error)
}

type contactRepository interface {
	ListByPerson(ctx context.Context, personID string) ([]models.ContactPoint, error)
	FindByID(ctx context.Context, id string) (*models.ContactPoint, error)
	Create(ctx context.Context, contact *models.ContactPoint) error
	Update(ctx context.Context, contact *models.ContactPoint) error
	Delete(ctx context.Context, id string) error
}

// CreatePersonRequest holds payload for creating a person.
type CreatePersonRequest struct {
	FullName    string     `json:"full_name" validate:"required"`
	DateOfBirth *time.Time `json:"date_of_birth"`
	Gender      string     `json:"gender" validate:"omitempty,oneof=MALE FEMALE"`
	Notes       *string    `json:"notes"`
}

// UpdatePersonRequest holds payload for updating a person.
type UpdatePersonRequest struct {
	FullName    string     `json:"full_name" validate:"required"`
	DateOfBirth *time.Time `json:"date_of_birth"`
	Gender      string     `json:"gender" validate:"omitempty,oneof=MALE FEMALE"`
	Notes       *string    `json:"notes"`
}

// ContactPointRequest holds payload for creating or updating a contact
// point.
type ContactPointRequest struct {
	Type      models.ContactType `json:"type" validate:"required,oneof=EMAIL PHONE WHATSAPP"`
	Value     string             `json:"value" validate:"required"`
	IsPrimary bool               `json:"is_primary"`
	IsActive  *bool              `json:"is_active"`
}

// PersonService handles person and contact point use-cases.
type PersonService struct {
	persons   personRepository
	contacts  contactRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPersonService constructs the person service.
func NewPersonService(persons personRepository, contacts contactRepository, validate *validator.Validate, logger *zap.Logger) *PersonService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PersonService{persons: persons, contacts: contacts, validator: validate, logger: logger}
}

// List returns people and pagination metadata.
func (s *PersonService) List(ctx context.Context, filter models.PersonFilter) ([]models.Person, *models.Pagination, error) {
	people, total, err := s.persons.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list people")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return people, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a person with their contact points, roles and programs.
func (s *PersonService) Get(ctx context.Context, id string) (*models.PersonMatch, error) {
	person, err := s.persons.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "person not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load person")
	}
	roles, programs, err := s.persons.Roles(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve roles")
	}
	contacts, err := s.contacts.ListByPerson(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load contact points")
	}
	return &models.PersonMatch{Person: *person, Roles: roles, Programs: programs, ContactPoints: contacts}, nil
}

// Create registers a new person.
func (s *PersonService) Create(ctx context.Context, req CreatePersonRequest) (*models.Person, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid person payload")
	}
	person := &models.Person{
		FullName:    req.FullName,
		DateOfBirth: req.DateOfBirth,
		Gender:      req.Gender,
		Notes:       req.Notes,
	}
	if err := s.persons.Create(ctx, person); err != nil {
		return nil, appErrors.FromError(err)
	}
	return person, nil
}

// Update modifies an existing person.
func (s *PersonService) Update(ctx context.Context, id string, req UpdatePersonRequest) (*models.Person, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid person payload")
	}
	person, err := s.persons.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "person not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load person")
	}
	person.FullName = req.FullName
	person.DateOfBirth = req.DateOfBirth
	person.Gender = req.Gender
	person.Notes = req.Notes
	if err := s.persons.Update(ctx, person); err != nil {
		return nil, appErrors.FromError(err)
	}
	return person, nil
}

// ListContacts returns all contact points owned by a person.
func (s *PersonService) ListContacts(ctx context.Context, personID string) ([]models.ContactPoint, error) {
	if _, err := s.persons.FindByID(ctx, personID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "person not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load person")
	}
	contacts, err := s.contacts.ListByPerson(ctx, personID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list contact points")
	}
	return contacts, nil
}

// AddContact creates a contact point. Setting is_primary demotes any
// existing primary of the same type.
func (s *PersonService) AddContact(ctx context.Context, personID string, req ContactPointRequest) (*models.ContactPoint, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid contact payload")
	}
	if _, err := s.persons.FindByID(ctx, personID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "person not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load person")
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	contact := &models.ContactPoint{
		PersonID:  personID,
		Type:      req.Type,
		Value:     req.Value,
		IsPrimary: req.IsPrimary,
		IsActive:  active,
	}
	if err := s.contacts.Create(ctx, contact); err != nil {
		return nil, appErrors.FromError(err)
	}
	return contact, nil
}

// UpdateContact modifies an existing contact point.
func (s *PersonService) UpdateContact(ctx context.Context, personID, contactID string, req ContactPointRequest) (*models.ContactPoint, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid contact payload")
	}
	contact, err := s.contacts.FindByID(ctx, contactID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "contact point not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load contact point")
	}
	if contact.PersonID != personID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "contact point not found")
	}
	contact.Type = req.Type
	contact.Value = req.Value
	contact.IsPrimary = req.IsPrimary
	if req.IsActive != nil {
		contact.IsActive = *req.IsActive
	}
	if err := s.contacts.Update(ctx, contact); err != nil {
		return nil, appErrors.FromError(err)
	}
	return contact, nil
}

// RemoveContact deletes a contact point owned by the person.
func (s *PersonService) RemoveContact(ctx context.Context, personID, contactID string) error {
	contact, err := s.contacts.FindByID(ctx, contactID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "contact point not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load contact point")
	}
	if contact.PersonID != personID {
		return appErrors.Clone(appErrors.ErrNotFound, "contact point not found")
	}
	if err := s.contacts.Delete(ctx, contactID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete contact point")
	}
	return nil
}
