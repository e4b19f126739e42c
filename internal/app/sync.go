package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"citydistance/internal/adapters/observability"
	"citydistance/internal/domain"
)

// Syncer pulls changed cities from the external catalog and merges them into
// the place store and the search index, one language at a time. A run is
// safely re-runnable: the store skips duplicates and the index merges name
// variants.
type Syncer struct {
	catalog   domain.CatalogClient
	repo      domain.CityRepository
	index     domain.SearchIndex
	langs     []string
	primary   string
	langDelay time.Duration

	sf  singleflight.Group
	now func() time.Time
}

func NewSyncer(c domain.CatalogClient, r domain.CityRepository, ix domain.SearchIndex, langs []string, primary string, langDelay time.Duration) *Syncer {
	return &Syncer{
		catalog:   c,
		repo:      r,
		index:     ix,
		langs:     langs,
		primary:   primary,
		langDelay: langDelay,
		now:       time.Now,
	}
}

// Run executes one sync cycle and returns the number of rows newly inserted
// into the place store. Concurrent callers share a single execution.
func (s *Syncer) Run(ctx context.Context) (int, error) {
	v, err, _ := s.sf.Do("sync", func() (any, error) {
		return s.run(ctx)
	})
	n, _ := v.(int)
	return n, err
}

func (s *Syncer) run(ctx context.Context) (int, error) {
	since, err := s.repo.Watermark(ctx)
	if err != nil {
		return 0, err
	}
	// one checkpoint for the whole run; a slightly wider re-fetch window per
	// language is cheaper than per-language watermarks
	runStart := s.now().UTC()

	log.Info().Time("since", since).Strs("languages", s.langs).Msg("sync run starting")

	inserted := 0
	for i, lang := range s.langs {
		if err := ctx.Err(); err != nil {
			// aborted mid-run: never advance the watermark
			return inserted, err
		}

		cities, err := s.catalog.FetchCities(ctx, since, lang)
		if err != nil {
			if ctx.Err() != nil {
				return inserted, ctx.Err()
			}
			// one language's outage must not abort the run
			observability.SyncLanguageFailures.WithLabelValues(lang).Inc()
			log.Error().Err(err).Str("lang", lang).Msg("catalog fetch failed, continuing with next language")
			continue
		}
		observability.ObserveSync(lang, "fetched", len(cities))
		if len(cities) == 0 {
			log.Info().Str("lang", lang).Msg("no catalog updates")
			continue
		}

		if lang == s.primary {
			n, err := s.repo.BulkInsert(ctx, cities)
			if err != nil {
				observability.SyncLanguageFailures.WithLabelValues(lang).Inc()
				log.Error().Err(err).Str("lang", lang).Msg("place store insert failed, continuing with next language")
				continue
			}
			inserted += n
			observability.ObserveSync(lang, "inserted", n)
			log.Info().Str("lang", lang).Int("fetched", len(cities)).Int("inserted", n).Msg("place store updated")
		}

		if err := s.index.BulkUpsert(ctx, cities); err != nil {
			if ctx.Err() != nil {
				return inserted, ctx.Err()
			}
			observability.SyncLanguageFailures.WithLabelValues(lang).Inc()
			log.Error().Err(err).Str("lang", lang).Msg("search index update failed, continuing with next language")
			continue
		}
		observability.ObserveSync(lang, "indexed", len(cities))

		if i < len(s.langs)-1 && s.langDelay > 0 {
			if !sleepCtx(ctx, s.langDelay) {
				return inserted, ctx.Err()
			}
		}
	}

	if err := s.repo.SetWatermark(ctx, runStart); err != nil {
		return inserted, err
	}
	log.Info().Int("inserted", inserted).Time("watermark", runStart).Msg("sync run complete")
	return inserted, nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Scheduler runs the Syncer on a fixed interval, independent of the
// request-serving path.
type Scheduler struct {
	syncer *Syncer
	every  time.Duration
}

func NewScheduler(s *Syncer, every time.Duration) *Scheduler {
	return &Scheduler{syncer: s, every: every}
}

// Start blocks until ctx is done, running one sync immediately and then one
// per interval. Intended to run on its own goroutine.
func (sc *Scheduler) Start(ctx context.Context) {
	t := time.NewTicker(sc.every)
	defer t.Stop()
	for {
		if _, err := sc.syncer.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("scheduled sync failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
