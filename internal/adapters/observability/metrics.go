package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "citydist", Name: "http_requests_total", Help: "HTTP requests."},
		[]string{"route", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "citydist", Name: "http_request_duration_seconds",
			Help:    "HTTP request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	ExternalRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "citydist", Name: "external_requests_total", Help: "Outbound catalog requests."},
		[]string{"service", "endpoint", "status"},
	)
	ExternalLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "citydist", Name: "external_request_duration_seconds",
			Help:    "Outbound catalog request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)
	SyncRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "citydist", Name: "sync_records_total", Help: "Records per sync stage."},
		[]string{"lang", "stage"}, // stage: fetched|inserted|indexed|skipped
	)
	SyncLanguageFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "citydist", Name: "sync_language_failures_total", Help: "Per-language sync failures."},
		[]string{"lang"},
	)
	IndexBatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "citydist", Name: "index_batches_total", Help: "Search index bulk batches."},
		[]string{"outcome"}, // outcome: ok|failed
	)
	SearchEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "citydist", Name: "search_events_total", Help: "Search lookups by kind and outcome."},
		[]string{"kind", "outcome"}, // kind: best_match|suggest; outcome: hit|miss
	)
	CacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "citydist", Name: "cache_events_total", Help: "Cache hits/misses/sets/dels."},
		[]string{"cache", "event"}, // event: hit|miss|set|del
	)
)

// Serve exposes reg on a standalone listener, off the request-serving mux.
// An empty addr disables it.
func Serve(addr string, reg *prometheus.Registry) {
	if addr == "" {
		return // disabled
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler(reg))

	go func() {
		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		log.Info().Str("addr", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(HTTPRequests, HTTPLatency, ExternalRequests, ExternalLatency,
		SyncRecords, SyncLanguageFailures, IndexBatches, SearchEvents, CacheEvents)
	return reg
}

func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func ObserveHTTP(route, method string, status int, dur time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(route, method).Observe(dur.Seconds())
}

func ObserveExternal(service, endpoint string, status int, dur time.Duration) {
	ExternalRequests.WithLabelValues(service, endpoint, strconv.Itoa(status)).Inc()
	ExternalLatency.WithLabelValues(service, endpoint).Observe(dur.Seconds())
}

func ObserveSync(lang, stage string, n int) {
	SyncRecords.WithLabelValues(lang, stage).Add(float64(n))
}

func ObserveSearch(kind, outcome string) {
	SearchEvents.WithLabelValues(kind, outcome).Inc()
}

func ObserveCache(cache, event string) { // event: hit|miss|set|del
	CacheEvents.WithLabelValues(cache, event).Inc()
}

func LabelErr(err error) string {
	if err == nil {
		return "none"
	}
	return fmt.Sprintf("%T", err)
}
