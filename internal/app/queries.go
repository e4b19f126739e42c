package app

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"citydistance/internal/domain"
	"citydistance/internal/geo"
)

// CityService answers name-resolution, suggestion, and distance queries, and
// carries the manual CRUD path that writes through to both stores.
type CityService struct {
	repo     domain.CityRepository
	index    domain.SearchIndex
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewCityService(r domain.CityRepository, ix domain.SearchIndex, c domain.Cache, ttl time.Duration) *CityService {
	return &CityService{repo: r, index: ix, cache: c, cacheTTL: ttl}
}

// DistanceResult is the outcome of a successful distance query. Km is left
// unrounded; presentation rounds it.
type DistanceResult struct {
	From    domain.City
	To      domain.City
	Km      float64
	Bearing float64
	Compass string
}

// ResolveByName finds the best-matching city for a free-text name. A miss in
// either the index or the store is a plain domain.ErrNotFound.
func (s *CityService) ResolveByName(ctx context.Context, name string) (domain.City, error) {
	key := "resolve:" + strings.ToLower(strings.TrimSpace(name))
	var cached domain.City
	if s.cache != nil {
		if ok, _ := s.cache.Get(ctx, key, &cached); ok {
			return cached, nil
		}
	}

	id, err := s.index.BestMatch(ctx, name)
	if err != nil {
		return domain.City{}, err
	}
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// indexed but not in the store: the stores are eventually
			// consistent, treat as a miss
			return domain.City{}, domain.ErrNotFound
		}
		return domain.City{}, err
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, key, c, int(s.cacheTTL.Seconds()))
	}
	return c, nil
}

// Distance resolves both names concurrently and returns the great-circle
// distance. When a name cannot be resolved the error is a
// *domain.UnresolvedError naming that input.
func (s *CityService) Distance(ctx context.Context, name1, name2 string) (DistanceResult, error) {
	var c1, c2 domain.City
	var err1, err2 error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c1, err1 = s.ResolveByName(gctx, name1)
		if err1 != nil && !errors.Is(err1, domain.ErrNotFound) {
			return err1
		}
		return nil
	})
	g.Go(func() error {
		c2, err2 = s.ResolveByName(gctx, name2)
		if err2 != nil && !errors.Is(err2, domain.ErrNotFound) {
			return err2
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return DistanceResult{}, err
	}
	if err1 != nil {
		return DistanceResult{}, &domain.UnresolvedError{Name: name1}
	}
	if err2 != nil {
		return DistanceResult{}, &domain.UnresolvedError{Name: name2}
	}

	return result(c1, c2), nil
}

// DistanceByID computes the distance for two known ids, skipping resolution.
func (s *CityService) DistanceByID(ctx context.Context, id1, id2 string) (DistanceResult, error) {
	cs, err := s.repo.GetMany(ctx, []string{id1, id2})
	if err != nil {
		return DistanceResult{}, err
	}
	byID := map[string]domain.City{}
	for _, c := range cs {
		byID[c.ID] = c
	}
	c1, ok := byID[id1]
	if !ok {
		return DistanceResult{}, &domain.UnresolvedError{Name: id1}
	}
	c2, ok := byID[id2]
	if !ok {
		return DistanceResult{}, &domain.UnresolvedError{Name: id2}
	}
	return result(c1, c2), nil
}

func result(c1, c2 domain.City) DistanceResult {
	b := geo.Bearing(c1.Coords, c2.Coords)
	return DistanceResult{
		From:    c1,
		To:      c2,
		Km:      geo.Distance(c1.Coords, c2.Coords),
		Bearing: b,
		Compass: geo.Compass(b),
	}
}

func (s *CityService) Suggest(ctx context.Context, partial string, limit int) ([]string, error) {
	return s.index.Suggest(ctx, partial, limit)
}

func (s *CityService) Get(ctx context.Context, id string) (domain.City, error) {
	return s.repo.Get(ctx, id)
}

// Add creates a manually-entered city. Manual records get a locally derived
// id so they can never collide with catalog Q-ids.
func (s *CityService) Add(ctx context.Context, name string, coords domain.Coordinates) (domain.City, error) {
	c := domain.City{
		ID:     localID(name),
		Name:   name,
		Names:  map[string]string{"en": name},
		Coords: coords,
	}
	if !domain.ValidCity(c) {
		return domain.City{}, fmt.Errorf("invalid city %q: %w", name, domain.ErrNotFound)
	}
	// store first, then index; both writes are idempotent so a partial
	// failure is repaired by retrying
	if err := s.repo.Upsert(ctx, c); err != nil {
		return domain.City{}, err
	}
	if err := s.index.BulkUpsert(ctx, []domain.City{c}); err != nil {
		return domain.City{}, err
	}
	s.invalidate(ctx, c.Name)
	return c, nil
}

// Update replaces a city record on the manual-edit path.
func (s *CityService) Update(ctx context.Context, c domain.City) (domain.City, error) {
	if c.Names == nil {
		c.Names = map[string]string{"en": c.Name}
	}
	if _, err := s.repo.Get(ctx, c.ID); err != nil {
		return domain.City{}, err
	}
	if err := s.repo.Upsert(ctx, c); err != nil {
		return domain.City{}, err
	}
	if err := s.index.BulkUpsert(ctx, []domain.City{c}); err != nil {
		return domain.City{}, err
	}
	s.invalidate(ctx, c.Name)
	return c, nil
}

// Delete removes the city from the store and then the index. The two deletes
// are not atomic; an index-side failure leaves a dangling document that
// resolution treats as a miss.
func (s *CityService) Delete(ctx context.Context, id string) (domain.City, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.City{}, err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return domain.City{}, err
	}
	if err := s.index.Delete(ctx, id); err != nil {
		return c, err
	}
	for _, n := range c.AllNames() {
		s.invalidate(ctx, n)
	}
	return c, nil
}

func (s *CityService) invalidate(ctx context.Context, name string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Del(ctx, "resolve:"+strings.ToLower(strings.TrimSpace(name)))
}

func localID(name string) string {
	sum := sha1.Sum([]byte(strings.ToLower(strings.TrimSpace(name))))
	return "local-" + hex.EncodeToString(sum[:8])
}
