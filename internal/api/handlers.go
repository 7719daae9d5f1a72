// Mitra - Personality-Aware Media Recommendation Engine
// Copyright 2026 Anik R. (anikrm)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/anikrm/mitra

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/anikrm/mitra/internal/cache"
	"github.com/anikrm/mitra/internal/logging"
	"github.com/anikrm/mitra/internal/personality"
	"github.com/anikrm/mitra/internal/ratelimit"
	"github.com/anikrm/mitra/internal/recommend"
	"github.com/anikrm/mitra/internal/store"
)

// Recommender is the engine surface the handlers need.
type Recommender interface {
	Initialize(ctx context.Context, req recommend.Request) (*recommend.Result, error)
	RecordFeedback(ctx context.Context, fb recommend.Feedback) error
}

// UsageReporter reports per-user rate limit windows.
type UsageReporter interface {
	Usage(ctx context.Context, userID string) (ratelimit.Usage, error)
}

// QTableStats is the read-only RL surface for the stats endpoint.
type QTableStats interface {
	Len() int
}

// SourceWriter persists the user data the scoring pipeline reads.
type SourceWriter interface {
	SaveProfile(ctx context.Context, userID string, p personality.Profile) error
	SaveHistory(ctx context.Context, userID string, entries []recommend.HistoryEntry) error
}

// Handler bundles the HTTP handlers with their dependencies.
type Handler struct {
	engine   Recommender
	limiter  UsageReporter
	budget   *ratelimit.ProviderBudget
	cache    *cache.Cache
	qtable   QTableStats
	sources  SourceWriter
	probe    store.Store
	validate *validator.Validate
	log      zerolog.Logger
}

// NewHandler wires the handler set.
func NewHandler(engine Recommender, limiter UsageReporter, budget *ratelimit.ProviderBudget, c *cache.Cache, qtable QTableStats, sources SourceWriter, probe store.Store) *Handler {
	return &Handler{
		engine:   engine,
		limiter:  limiter,
		budget:   budget,
		cache:    c,
		qtable:   qtable,
		sources:  sources,
		probe:    probe,
		validate: validator.New(),
		log:      logging.With().Str("component", "api").Logger(),
	}
}

// Recommendations handles POST /api/v1/users/{userID}/recommendations.
func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	userID := chi.URLParam(r, "userID")
	if userID == "" {
		rw.BadRequest("user ID is required")
		return
	}

	var body RecommendationRequest
	if err := decodeBody(r, h.validate, &body, true); err != nil {
		if details := validationDetails(err); details != nil {
			rw.ValidationError("invalid request body", details)
			return
		}
		rw.BadRequest(err.Error())
		return
	}

	res, err := h.engine.Initialize(r.Context(), recommend.Request{
		UserID:       userID,
		TopN:         body.TopN,
		ForceRefresh: body.ForceRefresh,
	})
	if err != nil {
		h.writeEngineError(rw, userID, err)
		return
	}
	rw.Success(res)
}

// writeEngineError maps the engine's error taxonomy onto HTTP status
// codes.
func (h *Handler) writeEngineError(rw *ResponseWriter, userID string, err error) {
	var rle *recommend.RateLimitedError
	switch {
	case errors.As(err, &rle):
		rw.TooManyRequests("request rate limit exceeded", rle.RetryAfterSeconds)
	case errors.Is(err, recommend.ErrNoCandidates):
		rw.ServiceUnavailable("no candidates available, try again later")
	default:
		h.log.Error().Err(err).Str("user_id", userID).Msg("recommendation request failed")
		rw.InternalError("recommendation request failed")
	}
}

// Feedback handles POST /api/v1/feedback.
func (h *Handler) Feedback(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var body FeedbackRequest
	if err := decodeBody(r, h.validate, &body, false); err != nil {
		if details := validationDetails(err); details != nil {
			rw.ValidationError("invalid feedback", details)
			return
		}
		rw.BadRequest(err.Error())
		return
	}

	err := h.engine.RecordFeedback(r.Context(), recommend.Feedback{
		UserID:          body.UserID,
		ItemID:          body.ItemID,
		Interaction:     body.Interaction,
		CompletionRatio: body.CompletionRatio,
		Genre:           body.Genre,
		Features: recommend.FeatureVector{
			Energy:  body.Features.Energy,
			Valence: body.Features.Valence,
			Tempo:   body.Features.Tempo,
		},
	})
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	rw.Success(map[string]string{"status": "accepted"})
}

// UpsertProfile handles PUT /api/v1/users/{userID}/profile.
// Out-of-range trait scores are clamped on write, not rejected.
func (h *Handler) UpsertProfile(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	userID := chi.URLParam(r, "userID")
	if userID == "" {
		rw.BadRequest("user ID is required")
		return
	}

	var body ProfileRequest
	if err := decodeBody(r, h.validate, &body, false); err != nil {
		if details := validationDetails(err); details != nil {
			rw.ValidationError("invalid profile", details)
			return
		}
		rw.BadRequest(err.Error())
		return
	}

	err := h.sources.SaveProfile(r.Context(), userID, personality.Profile{
		Openness:          body.Openness,
		Conscientiousness: body.Conscientiousness,
		Extraversion:      body.Extraversion,
		Agreeableness:     body.Agreeableness,
		Neuroticism:       body.Neuroticism,
	})
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("profile save failed")
		rw.InternalError("profile save failed")
		return
	}
	rw.Success(map[string]string{"status": "stored"})
}

// UpsertHistory handles PUT /api/v1/users/{userID}/history. A history
// refresh invalidates the user's cached recommendations so the next
// request rescores against the new entries.
func (h *Handler) UpsertHistory(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	userID := chi.URLParam(r, "userID")
	if userID == "" {
		rw.BadRequest("user ID is required")
		return
	}

	var body HistoryRequest
	if err := decodeBody(r, h.validate, &body, false); err != nil {
		if details := validationDetails(err); details != nil {
			rw.ValidationError("invalid history", details)
			return
		}
		rw.BadRequest(err.Error())
		return
	}

	if err := h.sources.SaveHistory(r.Context(), userID, body.Tracks); err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("history save failed")
		rw.InternalError("history save failed")
		return
	}
	if _, err := h.cache.InvalidateUser(r.Context(), cache.CategoryRecommendation, userID); err != nil {
		h.log.Warn().Err(err).Str("user_id", userID).Msg("cache invalidation after history refresh failed")
	}
	rw.Success(map[string]string{"status": "stored"})
}

// RateLimitUsage handles GET /api/v1/users/{userID}/ratelimit.
func (h *Handler) RateLimitUsage(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	userID := chi.URLParam(r, "userID")
	if userID == "" {
		rw.BadRequest("user ID is required")
		return
	}

	usage, err := h.limiter.Usage(r.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("usage lookup failed")
		rw.InternalError("usage lookup failed")
		return
	}
	rw.Success(usage)
}

// statsResponse is the GET /api/v1/stats payload.
type statsResponse struct {
	Cache    map[string]cacheStats `json:"cache"`
	QTable   qtableStats           `json:"qtable"`
	Provider map[string]float64    `json:"provider_tokens"`
}

type cacheStats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

type qtableStats struct {
	States int `json:"states"`
}

// Stats handles GET /api/v1/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	cacheOut := make(map[string]cacheStats, 4)
	for _, cat := range []cache.Category{
		cache.CategoryRecommendation,
		cache.CategoryFeature,
		cache.CategoryProvider,
		cache.CategoryUserState,
	} {
		s := h.cache.Stats(cat)
		cacheOut[string(cat)] = cacheStats{Hits: s.Hits, Misses: s.Misses, HitRate: s.HitRate()}
	}

	now := time.Now()
	provider := make(map[string]float64, 4)
	for _, ep := range []string{
		ratelimit.EndpointSimilar,
		ratelimit.EndpointGenreSearch,
		ratelimit.EndpointNewReleases,
		ratelimit.EndpointPopular,
	} {
		provider[ep] = h.budget.TokensAt(ep, now)
	}

	rw.Success(statsResponse{
		Cache:    cacheOut,
		QTable:   qtableStats{States: h.qtable.Len()},
		Provider: provider,
	})
}

// HealthLive handles GET /healthz/live: process is up.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]string{"status": "ok"})
}

// HealthReady handles GET /healthz/ready: the store answers reads.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	// Any read proves the store is reachable; a missing probe key is a
	// healthy answer.
	if _, err := h.probe.Get(ctx, "health:probe"); err != nil && !errors.Is(err, store.ErrNotFound) {
		rw.ServiceUnavailable("store not ready")
		return
	}
	rw.Success(map[string]string{"status": "ready"})
}
