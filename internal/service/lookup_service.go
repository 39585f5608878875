package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/markazapp/markaz-admin-api/internal/models"
	appErrors "github.com/markazapp/markaz-admin-api/pkg/errors"
)

type lookupPersonRepository interface {
	List(ctx context.Context, filter models.PersonFilter) ([]models.Person, int, error)
	Roles(ctx context.Context, personID string) ([]models.PersonRole, []models.Program, error)
}

type lookupContactRepository interface {
	ListByPerson(ctx context.Context, personID string) ([]models.ContactPoint, error)
}

type lookupCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// LookupService answers "who is this person" queries across both
// programs. A single search may return the same person as a student in
// one program and a parent in the other.
type LookupService struct {
	persons  lookupPersonRepository
	contacts lookupContactRepository
	cache    lookupCache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewLookupService constructs the lookup service.
func NewLookupService(persons lookupPersonRepository, contacts lookupContactRepository, cache lookupCache, logger *zap.Logger) *LookupService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LookupService{
		persons:  persons,
		contacts: contacts,
		cache:    cache,
		cacheTTL: 2 * time.Minute,
		logger:   logger,
	}
}

// Search finds people matching the query by name or any contact point
// value and resolves every role each match holds. Results are cached
// briefly since the directory changes rarely between keystrokes.
func (s *LookupService) Search(ctx context.Context, query string, limit int) ([]models.PersonMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "search query is required")
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	cacheKey := fmt.Sprintf("lookup:%d:%s", limit, strings.ToLower(query))
	if s.cache != nil {
		var cached []models.PersonMatch
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("lookup cache read failed", zap.Error(err))
		}
	}

	people, _, err := s.persons.List(ctx, models.PersonFilter{Search: query, Page: 1, PageSize: limit})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to search people")
	}

	matches := make([]models.PersonMatch, 0, len(people))
	for _, person := range people {
		roles, programs, err := s.persons.Roles(ctx, person.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve roles")
		}
		contacts, err := s.contacts.ListByPerson(ctx, person.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load contact points")
		}
		matches = append(matches, models.PersonMatch{
			Person:        person,
			Roles:         roles,
			Programs:      programs,
			ContactPoints: contacts,
		})
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, matches, s.cacheTTL); err != nil {
			s.logger.Warn("lookup cache write failed", zap.Error(err))
		}
	}
	return matches, nil
}
