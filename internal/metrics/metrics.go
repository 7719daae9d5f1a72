// Mitra - Personality-Aware Media Recommendation Engine
// Copyright 2026 Anik R. (anikrm)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/anikrm/mitra

// Package metrics holds the Prometheus collectors for the engine.
// Collectors are registered with promauto at package load and exposed
// on /metrics by the API server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Request pipeline metrics
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mitra_requests_total",
			Help: "Total recommendation requests by terminal state",
		},
		[]string{"state"}, // returned_cached, returned_fresh, returned_stale_fallback, failed
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mitra_request_duration_seconds",
			Help:    "End-to-end recommendation request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
		},
		[]string{"state"},
	)

	ScoringDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mitra_scoring_duration_seconds",
			Help:    "Duration of the parallel scoring phase in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	CandidatesGenerated = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mitra_candidates_generated",
			Help:    "Candidate pool size after dedupe, per request",
			Buckets: []float64{0, 50, 100, 200, 300, 400, 500},
		},
	)

	// Cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mitra_cache_hits_total",
			Help: "Cache hits by category",
		},
		[]string{"category"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mitra_cache_misses_total",
			Help: "Cache misses by category",
		},
		[]string{"category"},
	)

	// Rate limiter metrics
	RateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mitra_ratelimit_rejections_total",
			Help: "Requests rejected by the per-user sliding window",
		},
	)

	ProviderBudgetSkips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mitra_provider_budget_skips_total",
			Help: "Candidate sub-sources skipped on exhausted provider budget",
		},
		[]string{"source"},
	)

	// Candidate source metrics
	SourceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mitra_source_failures_total",
			Help: "Candidate sub-source failures after retry",
		},
		[]string{"source"},
	)

	BreakerOpen = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mitra_breaker_open_total",
			Help: "Provider calls refused by an open circuit breaker",
		},
		[]string{"source"},
	)

	// HTTP surface metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mitra_http_requests_total",
			Help: "HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mitra_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "path"},
	)

	ActiveHTTPRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mitra_http_active_requests",
			Help: "HTTP requests currently in flight",
		},
	)

	// RL metrics
	QTableSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mitra_qtable_entries",
			Help: "Current number of Q-table state buckets",
		},
	)

	FeedbackEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mitra_feedback_events_total",
			Help: "Feedback events ingested by interaction type",
		},
		[]string{"interaction"},
	)
)

// RecordCacheHit increments the hit counter for a category.
func RecordCacheHit(category string) {
	CacheHits.WithLabelValues(category).Inc()
}

// RecordCacheMiss increments the miss counter for a category.
func RecordCacheMiss(category string) {
	CacheMisses.WithLabelValues(category).Inc()
}

// RecordRequest records one finished request with its terminal state.
func RecordRequest(state string, elapsed time.Duration) {
	RequestsTotal.WithLabelValues(state).Inc()
	RequestDuration.WithLabelValues(state).Observe(elapsed.Seconds())
}

// RecordHTTPRequest records one finished HTTP request.
func RecordHTTPRequest(method, path, status string, elapsed time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// TrackActiveRequest adjusts the in-flight request gauge.
func TrackActiveRequest(active bool) {
	if active {
		ActiveHTTPRequests.Inc()
	} else {
		ActiveHTTPRequests.Dec()
	}
}
