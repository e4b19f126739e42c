// Package search implements the city name index on Redis: a token-based
// inverted index for best-match lookup plus edge n-gram sets for prefix
// completion. Documents are keyed by the external city id; language-name
// variants are merged into the document, never removed.
package search

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"citydistance/internal/adapters/observability"
	"citydistance/internal/domain"
)

const (
	keySchema  = "city:schema"
	keyIDs     = "city:ids"
	docPrefix  = "city:doc:"  // hash: lat, lon, name, name:<lang>...
	tokPrefix  = "city:tok:"  // set of ids per token
	namePrefix = "city:name:" // folded exact name -> id
	suggPrefix = "city:sugg:" // zset of display names per edge n-gram
)

const schemaVersion = "1"

type Index struct {
	c          *redis.Client
	batchSize  int
	batchPause time.Duration
}

func New(addr, pass string, db int) *Index {
	return NewWithClient(redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db}))
}

func NewWithClient(c *redis.Client) *Index {
	return &Index{c: c, batchSize: 500, batchPause: 200 * time.Millisecond}
}

// Bootstrap marks the keyspace version, creating nothing destructively; a
// later schema change would bump schemaVersion and reindex out of band.
func (ix *Index) Bootstrap(ctx context.Context) error {
	ok, err := ix.c.SetNX(ctx, keySchema, schemaVersion, 0).Result()
	if err != nil {
		return fmt.Errorf("search bootstrap: %w", err)
	}
	if ok {
		log.Info().Msg("search index keyspace initialized")
	}
	return nil
}

// BulkUpsert merges the cities into the index in batches. A failed batch is
// counted and logged, and processing continues with the next batch; only a
// total failure of every batch is reported as an error.
func (ix *Index) BulkUpsert(ctx context.Context, cs []domain.City) error {
	if len(cs) == 0 {
		return nil
	}

	var okBatches, failedBatches int
	for start := 0; start < len(cs); start += ix.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + ix.batchSize
		if end > len(cs) {
			end = len(cs)
		}

		if err := ix.upsertBatch(ctx, cs[start:end]); err != nil {
			failedBatches++
			observability.IndexBatches.WithLabelValues("failed").Inc()
			log.Error().Err(err).Int("from", start).Int("to", end).Msg("index batch failed")
		} else {
			okBatches++
			observability.IndexBatches.WithLabelValues("ok").Inc()
		}

		if end < len(cs) && ix.batchPause > 0 {
			t := time.NewTimer(ix.batchPause)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
	}

	if okBatches == 0 && failedBatches > 0 {
		return fmt.Errorf("search index: all %d batches failed", failedBatches)
	}
	return nil
}

func (ix *Index) upsertBatch(ctx context.Context, cs []domain.City) error {
	pipe := ix.c.Pipeline()
	for _, c := range cs {
		if !domain.ValidCity(c) {
			log.Debug().Str("id", c.ID).Msg("skipping malformed city document")
			continue
		}
		doc := docPrefix + c.ID

		pipe.HSet(ctx, doc,
			"lat", strconv.FormatFloat(c.Coords.Lat, 'f', -1, 64),
			"lon", strconv.FormatFloat(c.Coords.Lon, 'f', -1, 64),
		)
		// primary name only set once; sync never overwrites it
		pipe.HSetNX(ctx, doc, "name", c.Name)
		pipe.SAdd(ctx, keyIDs, c.ID)

		for lang, name := range c.Names {
			pipe.HSet(ctx, doc, "name:"+lang, name)
		}
		for _, name := range c.AllNames() {
			pipe.Set(ctx, namePrefix+fold(name), c.ID, 0)
			for _, tok := range tokenize(name) {
				pipe.SAdd(ctx, tokPrefix+tok, c.ID)
			}
			for _, p := range edgePrefixes(name) {
				pipe.ZAdd(ctx, suggPrefix+p, redis.Z{Score: 0, Member: name})
			}
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

// BestMatch resolves a free-text query to the single top-scoring city id.
// Exact folded-name match wins outright; otherwise ids are scored by how
// many query tokens they match, ties broken by shorter primary name; a
// single partial token falls back to prefix completion.
func (ix *Index) BestMatch(ctx context.Context, query string) (string, error) {
	if id, err := ix.c.Get(ctx, namePrefix+fold(query)).Result(); err == nil && id != "" {
		observability.ObserveSearch("best_match", "hit")
		return id, nil
	} else if err != nil && err != redis.Nil {
		return "", fmt.Errorf("search best match: %w", err)
	}

	toks := tokenize(query)
	if len(toks) == 0 {
		observability.ObserveSearch("best_match", "miss")
		return "", domain.ErrNotFound
	}

	scores := map[string]int{}
	for _, tok := range toks {
		ids, err := ix.c.SMembers(ctx, tokPrefix+tok).Result()
		if err != nil {
			return "", fmt.Errorf("search best match: %w", err)
		}
		for _, id := range ids {
			scores[id]++
		}
	}

	if len(scores) == 0 {
		// partial word: complete the phrase and resolve the completed name
		if names, err := ix.suggest(ctx, query, 1); err == nil && len(names) > 0 {
			if id, err := ix.c.Get(ctx, namePrefix+fold(names[0])).Result(); err == nil && id != "" {
				observability.ObserveSearch("best_match", "hit")
				return id, nil
			}
		}
		observability.ObserveSearch("best_match", "miss")
		return "", domain.ErrNotFound
	}

	best, err := ix.pickBest(ctx, scores)
	if err != nil {
		return "", err
	}
	observability.ObserveSearch("best_match", "hit")
	return best, nil
}

// pickBest orders candidates by descending token score, then shorter primary
// name, then id for determinism.
func (ix *Index) pickBest(ctx context.Context, scores map[string]int) (string, error) {
	type cand struct {
		id      string
		score   int
		nameLen int
	}
	cands := make([]cand, 0, len(scores))
	for id, sc := range scores {
		name, err := ix.c.HGet(ctx, docPrefix+id, "name").Result()
		if err != nil && err != redis.Nil {
			return "", fmt.Errorf("search best match: %w", err)
		}
		cands = append(cands, cand{id: id, score: sc, nameLen: len(name)})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		if cands[i].nameLen != cands[j].nameLen {
			return cands[i].nameLen < cands[j].nameLen
		}
		return cands[i].id < cands[j].id
	})
	return cands[0].id, nil
}

// Suggest returns up to limit distinct display names completing partial.
func (ix *Index) Suggest(ctx context.Context, partial string, limit int) ([]string, error) {
	names, err := ix.suggest(ctx, partial, limit)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		observability.ObserveSearch("suggest", "miss")
	} else {
		observability.ObserveSearch("suggest", "hit")
	}
	return names, nil
}

func (ix *Index) suggest(ctx context.Context, partial string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	p := fold(partial)
	if r := []rune(p); len(r) > maxGram {
		p = string(r[:maxGram])
	} else if len(r) < minGram {
		return nil, nil
	}
	names, err := ix.c.ZRange(ctx, suggPrefix+p, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("search suggest: %w", err)
	}
	return names, nil
}

// Delete removes the document and its token/name/suggestion entries. A
// display name shared with another document keeps its entries.
func (ix *Index) Delete(ctx context.Context, id string) error {
	doc := docPrefix + id
	fields, err := ix.c.HGetAll(ctx, doc).Result()
	if err != nil {
		return fmt.Errorf("search delete: %w", err)
	}
	if len(fields) == 0 {
		return nil
	}

	var names []string
	for f, v := range fields {
		if f == "name" || len(f) > 5 && f[:5] == "name:" {
			names = append(names, v)
		}
	}

	pipe := ix.c.Pipeline()
	pipe.Del(ctx, doc)
	pipe.SRem(ctx, keyIDs, id)
	for _, name := range names {
		for _, tok := range tokenize(name) {
			pipe.SRem(ctx, tokPrefix+tok, id)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("search delete: %w", err)
	}

	// name and suggestion entries stay if another doc still owns the name
	for _, name := range names {
		owner, err := ix.c.Get(ctx, namePrefix+fold(name)).Result()
		if err != nil && err != redis.Nil {
			return fmt.Errorf("search delete: %w", err)
		}
		if owner != id {
			continue
		}
		pipe := ix.c.Pipeline()
		pipe.Del(ctx, namePrefix+fold(name))
		for _, p := range edgePrefixes(name) {
			pipe.ZRem(ctx, suggPrefix+p, name)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("search delete: %w", err)
		}
	}
	return nil
}
