// Package wikidata fetches city records from the Wikidata SPARQL endpoint.
package wikidata

import (
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"citydistance/internal/adapters/observability"
	"citydistance/internal/domain"
)

type Client struct {
	endpoint string
	hc       *http.Client
	rl       *rate.Limiter
}

func New(endpoint string, rps int) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("SPARQL endpoint is required")
	}
	if rps <= 0 {
		rps = 2
	}
	return &Client{
		endpoint: endpoint,
		hc:       &http.Client{Timeout: 60 * time.Second},
		rl:       rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

// FetchCities returns cities whose label in lang was modified after since.
// Rows with a missing id, label, or coordinate are skipped individually.
func (c *Client) FetchCities(ctx context.Context, since time.Time, lang string) ([]domain.City, error) {
	query := buildQuery(since, lang)

	start := time.Now()
	raw, status, err := c.post(ctx, query)
	observability.ObserveExternal("wikidata", "sparql", status, time.Since(start))
	if err != nil {
		return nil, err
	}

	cities, skipped, err := parseResults(raw, lang)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		log.Warn().Str("lang", lang).Int("skipped", skipped).Msg("dropped malformed sparql rows")
		observability.ObserveSync(lang, "skipped", skipped)
	}
	return cities, nil
}

// buildQuery selects instances of city (Q515, transitively) with coordinates,
// a label in lang, and a modification date after since.
func buildQuery(since time.Time, lang string) string {
	return fmt.Sprintf(`
SELECT ?city ?label ?lat ?lon ?modified WHERE {
    ?city wdt:P625 ?coord .
    ?city wdt:P31/wdt:P279* wd:Q515 .
    ?city schema:dateModified ?modified .
    ?city rdfs:label ?label .

    FILTER(LANG(?label) = "%s")
    FILTER(?modified > "%s"^^xsd:dateTime)

    BIND(geof:latitude(?coord) AS ?lat)
    BIND(geof:longitude(?coord) AS ?lon)
}`, lang, since.UTC().Format("2006-01-02T15:04:05Z"))
}

var errRemote = errors.New("wikidata: remote failure")

// post submits the query form-encoded with client-side rate limiting and
// retries on 429 and transient 5xx, honoring Retry-After when provided.
func (c *Client) post(ctx context.Context, query string) ([]byte, int, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return nil, 0, err
	}

	form := url.Values{"query": {query}}.Encode()

	var lastErr error
	lastStatus := 0
	for i := 0; i < 4; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form))
		if err != nil {
			return nil, 0, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/sparql-results+json")
		req.Header.Set("User-Agent", "citydistance/1.0")

		resp, err := c.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, 0, ctx.Err()
			}
			lastErr = err
			if i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return nil, 0, ctx.Err()
			}
			return nil, 0, lastErr
		}

		lastStatus = resp.StatusCode
		switch resp.StatusCode {
		case http.StatusOK:
			b, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			return b, resp.StatusCode, err

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("%w: status %d", errRemote, resp.StatusCode)
			if i < 3 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return nil, lastStatus, ctx.Err()
			}
			return nil, lastStatus, lastErr

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return nil, lastStatus, fmt.Errorf("wikidata: bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}

	return nil, lastStatus, lastErr
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After (seconds or HTTP-date). Returns 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff returns an exponential delay (200ms, 400ms, 800ms...) with up to
// +50% concurrency-safe jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	j := time.Duration(0.5 * f * float64(base))
	return base + j
}
