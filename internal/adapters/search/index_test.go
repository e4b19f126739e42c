package search_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"citydistance/internal/adapters/search"
	"citydistance/internal/domain"
)

func newIndex(t *testing.T) (*search.Index, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	ix := search.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err := ix.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return ix, mr
}

func paris() domain.City {
	return domain.City{
		ID:     "Q90",
		Name:   "Paris",
		Names:  map[string]string{"en": "Paris"},
		Coords: domain.Coordinates{Lat: 48.8566, Lon: 2.3522},
	}
}

func TestBootstrap_Idempotent(t *testing.T) {
	ix, _ := newIndex(t)
	ctx := context.Background()

	if err := ix.BulkUpsert(ctx, []domain.City{paris()}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	// a second bootstrap must not wipe existing documents
	if err := ix.Bootstrap(ctx); err != nil {
		t.Fatalf("re-bootstrap: %v", err)
	}
	if _, err := ix.BestMatch(ctx, "Paris"); err != nil {
		t.Fatalf("document lost after re-bootstrap: %v", err)
	}
}

func TestBestMatch_ExactAndTokens(t *testing.T) {
	ix, _ := newIndex(t)
	ctx := context.Background()

	cities := []domain.City{
		paris(),
		{ID: "Q84", Name: "London", Names: map[string]string{"en": "London"}, Coords: domain.Coordinates{Lat: 51.5074, Lon: -0.1278}},
		{ID: "Q1297", Name: "New York City", Names: map[string]string{"en": "New York City"}, Coords: domain.Coordinates{Lat: 40.7128, Lon: -74.006}},
	}
	if err := ix.BulkUpsert(ctx, cities); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// exact name
	id, err := ix.BestMatch(ctx, "Paris")
	if err != nil || id != "Q90" {
		t.Fatalf("exact: got (%s, %v)", id, err)
	}
	// case-insensitive
	if id, _ := ix.BestMatch(ctx, "LONDON"); id != "Q84" {
		t.Fatalf("case fold: got %s", id)
	}
	// partial tokens
	if id, _ := ix.BestMatch(ctx, "york city"); id != "Q1297" {
		t.Fatalf("token match: got %s", id)
	}
	// prefix of a single word
	if id, _ := ix.BestMatch(ctx, "Lond"); id != "Q84" {
		t.Fatalf("prefix fallback: got %s", id)
	}
	// absent name
	if _, err := ix.BestMatch(ctx, "Nowhereville"); err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBestMatch_AccentFolding(t *testing.T) {
	ix, _ := newIndex(t)
	ctx := context.Background()

	c := domain.City{
		ID:     "Q1781",
		Name:   "Budapest",
		Names:  map[string]string{"en": "Budapest", "fr": "Budapest"},
		Coords: domain.Coordinates{Lat: 47.4979, Lon: 19.0402},
	}
	mx := domain.City{
		ID:     "Q1489",
		Name:   "Mexico City",
		Names:  map[string]string{"es": "Ciudad de México"},
		Coords: domain.Coordinates{Lat: 19.4326, Lon: -99.1332},
	}
	if err := ix.BulkUpsert(ctx, []domain.City{c, mx}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if id, err := ix.BestMatch(ctx, "ciudad de mexico"); err != nil || id != "Q1489" {
		t.Fatalf("accent fold: got (%s, %v)", id, err)
	}
}

func TestBulkUpsert_MergesNamesNeverRemoves(t *testing.T) {
	ix, _ := newIndex(t)
	ctx := context.Background()

	en := paris()
	if err := ix.BulkUpsert(ctx, []domain.City{en}); err != nil {
		t.Fatalf("upsert en: %v", err)
	}

	fr := paris()
	fr.Names = map[string]string{"fr": "Paris"}
	de := paris()
	de.Name = "Paris"
	de.Names = map[string]string{"de": "Paris"}
	if err := ix.BulkUpsert(ctx, []domain.City{fr, de}); err != nil {
		t.Fatalf("upsert fr/de: %v", err)
	}

	// all variants resolve to the same document
	for _, q := range []string{"Paris", "paris"} {
		if id, err := ix.BestMatch(ctx, q); err != nil || id != "Q90" {
			t.Fatalf("lookup %q after merge: (%s, %v)", q, id, err)
		}
	}
}

func TestSuggest(t *testing.T) {
	ix, _ := newIndex(t)
	ctx := context.Background()

	cities := []domain.City{
		paris(),
		{ID: "Q79815", Name: "Parla", Names: map[string]string{"en": "Parla"}, Coords: domain.Coordinates{Lat: 40.2372, Lon: -3.7742}},
		{ID: "Q84", Name: "London", Names: map[string]string{"en": "London"}, Coords: domain.Coordinates{Lat: 51.5074, Lon: -0.1278}},
	}
	if err := ix.BulkUpsert(ctx, cities); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := ix.Suggest(ctx, "Par", 10)
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 suggestions, got %v", got)
	}
	seen := map[string]bool{}
	for _, n := range got {
		seen[n] = true
	}
	if !seen["Paris"] || !seen["Parla"] {
		t.Fatalf("unexpected suggestions: %v", got)
	}

	// limit respected
	one, err := ix.Suggest(ctx, "Par", 1)
	if err != nil || len(one) != 1 {
		t.Fatalf("limit: got (%v, %v)", one, err)
	}

	// too-short partials return nothing rather than everything
	if none, _ := ix.Suggest(ctx, "P", 10); len(none) != 0 {
		t.Fatalf("expected no suggestions for 1-char partial, got %v", none)
	}
}

func TestBulkUpsert_SkipsMalformedDocument(t *testing.T) {
	ix, _ := newIndex(t)
	ctx := context.Background()

	bad := domain.City{ID: "Qbad", Name: "Atlantis", Coords: domain.Coordinates{Lat: 91, Lon: 0}}
	if err := ix.BulkUpsert(ctx, []domain.City{bad, paris()}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := ix.BestMatch(ctx, "Atlantis"); err != domain.ErrNotFound {
		t.Fatalf("malformed doc was indexed: %v", err)
	}
	if id, err := ix.BestMatch(ctx, "Paris"); err != nil || id != "Q90" {
		t.Fatalf("valid doc missing: (%s, %v)", id, err)
	}
}

func TestDelete(t *testing.T) {
	ix, _ := newIndex(t)
	ctx := context.Background()

	if err := ix.BulkUpsert(ctx, []domain.City{paris()}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := ix.Delete(ctx, "Q90"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := ix.BestMatch(ctx, "Paris"); err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if got, _ := ix.Suggest(ctx, "Par", 10); len(got) != 0 {
		t.Fatalf("suggestions survived delete: %v", got)
	}
	// deleting an absent id is a no-op
	if err := ix.Delete(ctx, "Q90"); err != nil {
		t.Fatalf("double delete: %v", err)
	}
}
