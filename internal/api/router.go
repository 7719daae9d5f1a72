// Mitra - Personality-Aware Media Recommendation Engine
// Copyright 2026 Anik R. (anikrm)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/anikrm/mitra

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anikrm/mitra/internal/middleware"
)

// RouterConfig tunes the HTTP edge.
type RouterConfig struct {
	// IPRateLimit caps requests per IP per minute at the edge, before
	// the per-user limiter runs. Zero disables it.
	IPRateLimit int
}

// NewRouter assembles the route tree.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	// Health endpoints stay outside the IP limiter so orchestrator
	// probes never get throttled.
	r.Route("/healthz", func(r chi.Router) {
		r.Get("/live", h.HealthLive)
		r.Get("/ready", h.HealthReady)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.IPRateLimit > 0 {
			r.Use(httprate.LimitByIP(cfg.IPRateLimit, time.Minute))
		}
		r.Use(middleware.PrometheusMetrics)

		r.Post("/users/{userID}/recommendations", h.Recommendations)
		r.Put("/users/{userID}/profile", h.UpsertProfile)
		r.Put("/users/{userID}/history", h.UpsertHistory)
		r.Get("/users/{userID}/ratelimit", h.RateLimitUsage)
		r.Post("/feedback", h.Feedback)
		r.Get("/stats", h.Stats)
	})

	return r
}
