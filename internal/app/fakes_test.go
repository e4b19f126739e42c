package app_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"citydistance/internal/domain"
)

// ---- fakes ----

type fakeRepo struct {
	mu        sync.Mutex
	cities    map[string]domain.City
	watermark time.Time
	insertErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{cities: map[string]domain.City{}}
}

func (f *fakeRepo) Upsert(ctx context.Context, c domain.City) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cities[c.ID] = c
	return nil
}

func (f *fakeRepo) BulkInsert(ctx context.Context, cs []domain.City) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	n := 0
	for _, c := range cs {
		if _, ok := f.cities[c.ID]; ok {
			continue
		}
		f.cities[c.ID] = c
		n++
	}
	return n, nil
}

func (f *fakeRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.cities, id)
	return nil
}

func (f *fakeRepo) Get(ctx context.Context, id string) (domain.City, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cities[id]
	if !ok {
		return domain.City{}, domain.ErrNotFound
	}
	return c, nil
}

func (f *fakeRepo) GetMany(ctx context.Context, ids []string) ([]domain.City, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.City
	for _, id := range ids {
		if c, ok := f.cities[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetByName(ctx context.Context, name string) (domain.City, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.cities {
		if strings.EqualFold(c.Name, name) {
			return c, nil
		}
	}
	return domain.City{}, domain.ErrNotFound
}

func (f *fakeRepo) Watermark(ctx context.Context) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.watermark.IsZero() {
		return time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), nil
	}
	return f.watermark, nil
}

func (f *fakeRepo) SetWatermark(ctx context.Context, t time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watermark = t
	return nil
}

type fakeIndex struct {
	mu   sync.Mutex
	docs map[string]map[string]string // id -> lang -> name
	err  error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{docs: map[string]map[string]string{}}
}

func (f *fakeIndex) Bootstrap(ctx context.Context) error { return nil }

func (f *fakeIndex) BulkUpsert(ctx context.Context, cs []domain.City) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	for _, c := range cs {
		doc, ok := f.docs[c.ID]
		if !ok {
			doc = map[string]string{}
			f.docs[c.ID] = doc
		}
		for lang, name := range c.Names {
			doc[lang] = name
		}
	}
	return nil
}

func (f *fakeIndex) BestMatch(ctx context.Context, query string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, doc := range f.docs {
		for _, name := range doc {
			if strings.EqualFold(name, query) {
				return id, nil
			}
		}
	}
	return "", domain.ErrNotFound
}

func (f *fakeIndex) Suggest(ctx context.Context, partial string, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, doc := range f.docs {
		for _, name := range doc {
			if len(out) >= limit {
				return out, nil
			}
			if strings.HasPrefix(strings.ToLower(name), strings.ToLower(partial)) && !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	return out, nil
}

func (f *fakeIndex) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, id)
	return nil
}

func (f *fakeIndex) names(id string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, n := range f.docs[id] {
		out = append(out, n)
	}
	return out
}

// fakeCatalog serves canned per-language responses and can fail per language.
type fakeCatalog struct {
	mu      sync.Mutex
	byLang  map[string][]domain.City
	failing map[string]bool
	calls   int
}

func (f *fakeCatalog) FetchCities(ctx context.Context, since time.Time, lang string) ([]domain.City, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failing[lang] {
		return nil, errors.New("catalog unavailable")
	}
	return f.byLang[lang], nil
}

type fakeCache struct {
	mu    sync.Mutex
	store map[string]domain.City
}

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		return false, nil
	}
	v, ok := c.store[key]
	if !ok {
		return false, nil
	}
	if d, ok := dst.(*domain.City); ok {
		*d = v
	}
	return true, nil
}

func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = map[string]domain.City{}
	}
	if cv, ok := v.(domain.City); ok {
		c.store[key] = cv
	}
	return nil
}

func (c *fakeCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
	return nil
}
