package app_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"citydistance/internal/app"
	"citydistance/internal/domain"
)

func seeded(t *testing.T) (*app.CityService, *fakeRepo, *fakeIndex, *fakeCache) {
	t.Helper()
	repo := newFakeRepo()
	ix := newFakeIndex()
	cache := &fakeCache{}
	ctx := context.Background()

	for _, c := range []domain.City{
		{ID: "Q90", Name: "Paris", Names: map[string]string{"en": "Paris", "fr": "Paris"}, Coords: domain.Coordinates{Lat: 48.8566, Lon: 2.3522}},
		{ID: "Q84", Name: "London", Names: map[string]string{"en": "London"}, Coords: domain.Coordinates{Lat: 51.5074, Lon: -0.1278}},
	} {
		if err := repo.Upsert(ctx, c); err != nil {
			t.Fatalf("seed store: %v", err)
		}
		if err := ix.BulkUpsert(ctx, []domain.City{c}); err != nil {
			t.Fatalf("seed index: %v", err)
		}
	}
	return app.NewCityService(repo, ix, cache, time.Minute), repo, ix, cache
}

func TestCityService_Distance(t *testing.T) {
	ctx := context.Background()

	t.Run("known pair", func(t *testing.T) {
		svc, _, _, _ := seeded(t)
		res, err := svc.Distance(ctx, "Paris", "London")
		if err != nil {
			t.Fatalf("distance: %v", err)
		}
		if math.Abs(res.Km-343.56) > 1.0 {
			t.Fatalf("Paris-London = %f km, want ~343.56", res.Km)
		}
		if res.From.ID != "Q90" || res.To.ID != "Q84" {
			t.Fatalf("wrong endpoints: %s -> %s", res.From.ID, res.To.ID)
		}
		if res.Compass == "" {
			t.Fatal("missing compass direction")
		}
	})

	t.Run("same city is zero", func(t *testing.T) {
		svc, _, _, _ := seeded(t)
		res, err := svc.Distance(ctx, "Paris", "paris")
		if err != nil {
			t.Fatalf("distance: %v", err)
		}
		if res.Km != 0 {
			t.Fatalf("same-city distance = %f, want 0", res.Km)
		}
	})

	t.Run("unresolved error names the failing input", func(t *testing.T) {
		svc, _, _, _ := seeded(t)
		_, err := svc.Distance(ctx, "Nowhereville", "London")
		var ue *domain.UnresolvedError
		if !errors.As(err, &ue) {
			t.Fatalf("expected UnresolvedError, got %v", err)
		}
		if ue.Name != "Nowhereville" {
			t.Fatalf("error names %q, want the first input", ue.Name)
		}

		_, err = svc.Distance(ctx, "Paris", "Atlantis")
		if !errors.As(err, &ue) || ue.Name != "Atlantis" {
			t.Fatalf("expected UnresolvedError for second input, got %v", err)
		}
	})

	t.Run("by id", func(t *testing.T) {
		svc, _, _, _ := seeded(t)
		res, err := svc.DistanceByID(ctx, "Q90", "Q84")
		if err != nil {
			t.Fatalf("distance by id: %v", err)
		}
		if res.Km <= 0 {
			t.Fatalf("distance = %f, want positive", res.Km)
		}
		var ue *domain.UnresolvedError
		if _, err := svc.DistanceByID(ctx, "Q90", "Qmissing"); !errors.As(err, &ue) || ue.Name != "Qmissing" {
			t.Fatalf("expected UnresolvedError naming Qmissing, got %v", err)
		}
	})
}

func TestCityService_ResolveByName(t *testing.T) {
	ctx := context.Background()

	t.Run("caches resolutions", func(t *testing.T) {
		svc, _, _, cache := seeded(t)
		c, err := svc.ResolveByName(ctx, "Paris")
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if c.ID != "Q90" {
			t.Fatalf("resolved to %s, want Q90", c.ID)
		}
		cache.mu.Lock()
		_, cached := cache.store["resolve:paris"]
		cache.mu.Unlock()
		if !cached {
			t.Fatal("resolution was not cached")
		}
	})

	t.Run("indexed but unstored is a miss", func(t *testing.T) {
		svc, repo, _, _ := seeded(t)
		repo.mu.Lock()
		delete(repo.cities, "Q84")
		repo.mu.Unlock()
		if _, err := svc.ResolveByName(ctx, "London"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestCityService_CRUD(t *testing.T) {
	ctx := context.Background()

	t.Run("add writes through to store and index", func(t *testing.T) {
		svc, repo, ix, _ := seeded(t)
		c, err := svc.Add(ctx, "Springfield", domain.Coordinates{Lat: 39.78, Lon: -89.64})
		if err != nil {
			t.Fatalf("add: %v", err)
		}
		if c.ID == "" || c.ID == "Springfield" {
			t.Fatalf("expected derived id, got %q", c.ID)
		}
		if _, err := repo.Get(ctx, c.ID); err != nil {
			t.Fatalf("added city missing from store: %v", err)
		}
		if got, _ := ix.BestMatch(ctx, "Springfield"); got != c.ID {
			t.Fatalf("added city not searchable, got %q", got)
		}
	})

	t.Run("add rejects bad coordinates", func(t *testing.T) {
		svc, _, _, _ := seeded(t)
		if _, err := svc.Add(ctx, "Nowhere", domain.Coordinates{Lat: 91, Lon: 0}); err == nil {
			t.Fatal("expected validation error")
		}
	})

	t.Run("update requires an existing city", func(t *testing.T) {
		svc, _, _, _ := seeded(t)
		_, err := svc.Update(ctx, domain.City{ID: "Qmissing", Name: "Ghost", Coords: domain.Coordinates{Lat: 1, Lon: 1}})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}

		updated, err := svc.Update(ctx, domain.City{ID: "Q90", Name: "Paris", Coords: domain.Coordinates{Lat: 48.85, Lon: 2.35}})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if updated.Coords.Lat != 48.85 {
			t.Fatalf("update not applied: %+v", updated)
		}
	})

	t.Run("delete removes both sides and invalidates cache", func(t *testing.T) {
		svc, repo, ix, cache := seeded(t)
		if _, err := svc.ResolveByName(ctx, "London"); err != nil {
			t.Fatalf("warm cache: %v", err)
		}

		if _, err := svc.Delete(ctx, "Q84"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, err := repo.Get(ctx, "Q84"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("city still in store: %v", err)
		}
		if _, err := ix.BestMatch(ctx, "London"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatal("city still searchable after delete")
		}
		cache.mu.Lock()
		_, cached := cache.store["resolve:london"]
		cache.mu.Unlock()
		if cached {
			t.Fatal("stale resolution left in cache")
		}

		if _, err := svc.Delete(ctx, "Q84"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("double delete: %v", err)
		}
	})
}
