// Package catalog provides the typed query surface over the rating factor
// store. It answers exactly two shapes of question - which factors are valid
// on a date, and which factors overlap a window - and performs no business
// interpretation: zero, one, or many results are the caller's problem.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/open-insurance/kestrel/internal/domain"
)

// DefaultLookupTTL bounds staleness of cached lookups. Admitted factors
// become visible to cached dates once the TTL lapses; admission is advisory,
// not transactional, so this window is acceptable.
const DefaultLookupTTL = time.Minute

// Service is the Rating Catalog: a thin wrapper over the repository with
// optional lookup caching. Factors are immutable once admitted, which is what
// makes date-keyed caching safe at all.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
	ttl   time.Duration
}

// NewService creates a catalog over repo. cache may be nil to disable
// lookup caching.
func NewService(repo domain.Repository, cache domain.Cache, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultLookupTTL
	}
	return &Service{
		repo:  repo,
		cache: cache,
		ttl:   ttl,
	}
}

// FindValid returns all factors for (it, key) valid on asOf, in no guaranteed
// order. Results are cached per (type, key, day).
func (s *Service) FindValid(ctx context.Context, it domain.InsuranceType, key string, asOf time.Time) ([]*domain.RatingFactor, error) {
	cacheKey := s.lookupKey(it, key, asOf)

	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil && data != nil {
			var factors []*domain.RatingFactor
			if err := json.Unmarshal(data, &factors); err == nil {
				return factors, nil
			}
		}
	}

	factors, err := s.repo.FindValid(ctx, it, key, asOf)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(factors); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, s.ttl)
		}
	}

	return factors, nil
}

// FindOverlapping returns all factors for (it, key) whose windows intersect
// [from, to]. Admission-time queries are never cached: overlap detection must
// see the freshest view the store can give.
func (s *Service) FindOverlapping(ctx context.Context, it domain.InsuranceType, key string, from time.Time, to *time.Time) ([]*domain.RatingFactor, error) {
	return s.repo.FindOverlapping(ctx, it, key, from, to)
}

// Admit persists a factor and drops the cached lookup for its key on the
// dates its window opens. Validation happens before Admit, in the rating
// engine; the catalog stores what it is given.
func (s *Service) Admit(ctx context.Context, f *domain.RatingFactor) error {
	if f == nil {
		return fmt.Errorf("factor is required")
	}

	if err := s.repo.SaveRatingFactor(ctx, f); err != nil {
		return err
	}

	if s.cache != nil {
		// Cached lookups for other dates age out via TTL.
		_ = s.cache.Delete(ctx, s.lookupKey(f.InsuranceType, f.RatingKey, f.ValidFrom))
	}

	return nil
}

// Ping checks the underlying store.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *Service) lookupKey(it domain.InsuranceType, key string, asOf time.Time) string {
	return fmt.Sprintf("factors:%s:%s:%s", it, key, asOf.UTC().Format(domain.DateLayout))
}
