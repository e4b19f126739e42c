package domain

import (
	"context"
	"time"
)

type CityRepository interface {
	// Write paths
	Upsert(ctx context.Context, c City) error
	// BulkInsert uses skip-on-conflict semantics so an incremental sync
	// never clobbers manual corrections. Returns the number of newly
	// inserted rows.
	BulkInsert(ctx context.Context, cs []City) (int, error)
	Delete(ctx context.Context, id string) error

	// Read paths
	Get(ctx context.Context, id string) (City, error)
	GetMany(ctx context.Context, ids []string) ([]City, error)
	GetByName(ctx context.Context, name string) (City, error)

	// Sync watermark, single row, monotonically non-decreasing.
	Watermark(ctx context.Context) (time.Time, error)
	SetWatermark(ctx context.Context, t time.Time) error
}

type SearchIndex interface {
	Bootstrap(ctx context.Context) error
	// BulkUpsert merges (never replaces) the language-name variants of each
	// city into its document, batched, tolerating partial batch failure.
	BulkUpsert(ctx context.Context, cs []City) error
	BestMatch(ctx context.Context, query string) (string, error)
	Suggest(ctx context.Context, partial string, limit int) ([]string, error)
	Delete(ctx context.Context, id string) error
}

type CatalogClient interface {
	// FetchCities returns places modified after since, labeled in lang.
	FetchCities(ctx context.Context, since time.Time, lang string) ([]City, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}
