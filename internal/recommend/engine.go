// Mitra - Personality-Aware Media Recommendation Engine
// Copyright 2026 Anik R. (anikrm)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/anikrm/mitra

package recommend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/anikrm/mitra/internal/cache"
	"github.com/anikrm/mitra/internal/logging"
	"github.com/anikrm/mitra/internal/metrics"
	"github.com/anikrm/mitra/internal/personality"
	"github.com/anikrm/mitra/internal/ratelimit"
	"github.com/anikrm/mitra/internal/rl"
)

// Request cycle defaults.
const (
	DefaultTopN = 20
	MaxTopN     = 50

	// DefaultRequestBudget is the hard wall-clock bound per request.
	DefaultRequestBudget = 3 * time.Second

	// lockRetryWait is how long a stampede-lock loser waits before its
	// single cache re-read.
	lockRetryWait = 150 * time.Millisecond

	// latestContext is the stable alias context under which the newest
	// result is always cached, serving the stale-fallback path.
	latestContext = "latest"
)

// EngineConfig tunes the orchestrator.
type EngineConfig struct {
	// RequestBudget is the end-to-end wall-clock bound. Default 3s.
	RequestBudget time.Duration `koanf:"request_budget"`

	// Weights are the composite score weights. Zero value uses the
	// defaults.
	Weights ScoreWeights `koanf:"weights"`

	// SyncFeedback applies Q-table updates inline instead of in a
	// goroutine. Test use only; production feedback is asynchronous.
	SyncFeedback bool `koanf:"-"`
}

// Deps are the injected collaborators. Everything shared and mutable
// (cache, limiter, Q-table) comes in from outside; the engine holds no
// process-global state.
type Deps struct {
	Generator *Generator
	Cache     *cache.Cache
	Limiter   *ratelimit.Limiter
	QTable    *rl.QTable
	History   HistorySource
	Profiles  ProfileSource
}

// Engine is the recommendation orchestrator: one request/response
// cycle through rate check, cache, candidate generation, scoring, and
// selection.
type Engine struct {
	gen      *Generator
	scorer   *Scorer
	cache    *cache.Cache
	limiter  *ratelimit.Limiter
	qtable   *rl.QTable
	history  HistorySource
	profiles ProfileSource
	cfg      EngineConfig
	log      zerolog.Logger
}

// NewEngine wires the orchestrator from its dependencies.
func NewEngine(deps Deps, cfg EngineConfig) *Engine {
	if cfg.RequestBudget <= 0 {
		cfg.RequestBudget = DefaultRequestBudget
	}
	return &Engine{
		gen:      deps.Generator,
		scorer:   NewScorer(cfg.Weights),
		cache:    deps.Cache,
		limiter:  deps.Limiter,
		qtable:   deps.QTable,
		history:  deps.History,
		profiles: deps.Profiles,
		cfg:      cfg,
		log:      logging.With().Str("component", "engine").Logger(),
	}
}

// cacheContext is everything that shapes a result; requests with the
// same context intentionally collide on one cache key.
type cacheContext struct {
	ProfileBucket string       `json:"profile_bucket"`
	Stage         Stage        `json:"stage"`
	TopN          int          `json:"top_n"`
	Weights       ScoreWeights `json:"weights"`
}

// Initialize serves the session-bootstrap request: returns the cached
// ranked list when fresh enough, otherwise generates, scores, selects,
// and caches a new one.
//
// Terminal states and errors:
//   - returned_cached / returned_fresh: err is nil
//   - returned_stale_fallback: err is nil (rate limited or provider
//     outage, newest cached result served)
//   - failed: err is ErrRateLimited or ErrNoCandidates, both meaning
//     no cached fallback existed either
func (e *Engine) Initialize(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	requestID := uuid.NewString()

	topN := req.TopN
	if topN <= 0 {
		topN = DefaultTopN
	}
	if topN > MaxTopN {
		topN = MaxTopN
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.RequestBudget)
	defer cancel()

	// RATE_CHECK
	decision, err := e.limiter.Allow(ctx, req.UserID)
	if err != nil {
		// A broken limiter store must not take the engine down; admit
		// the request and let provider budgets protect the quota.
		e.log.Warn().Err(err).Str("user_id", req.UserID).Msg("limiter unavailable, admitting request")
		decision = ratelimit.Decision{Allowed: true}
	}
	if !decision.Allowed {
		return e.rateLimited(ctx, req, requestID, decision, start)
	}

	profile, age, target := e.userContext(ctx, req.UserID)
	stage := StageFor(age)

	key := cache.Key(cache.CategoryRecommendation, req.UserID, cacheContext{
		ProfileBucket: profile.Bucket(),
		Stage:         stage,
		TopN:          topN,
		Weights:       e.scorer.weights,
	})

	cacheHealthy := true

	// CACHE_LOOKUP
	if !req.ForceRefresh {
		if res, ok := e.readCached(ctx, key, requestID, start, &cacheHealthy); ok {
			return res, nil
		}
	}

	// Stampede protection: one filler per key; losers re-read once and
	// then compute without writing back.
	writeBack := cacheHealthy
	if cacheHealthy && !req.ForceRefresh {
		acquired, lockErr := e.cache.AcquireFillLock(ctx, key)
		if lockErr != nil {
			cacheHealthy = false
			writeBack = false
		} else if acquired {
			defer e.cache.ReleaseFillLock(ctx, key)
		} else {
			select {
			case <-time.After(lockRetryWait):
			case <-ctx.Done():
			}
			if res, ok := e.readCached(ctx, key, requestID, start, &cacheHealthy); ok {
				return res, nil
			}
			writeBack = false
		}
	}

	// GENERATE
	weights := WeightsFor(age)
	history := e.userHistory(ctx, req.UserID)
	pool := e.gen.Generate(ctx, req.UserID, history, target, weights)
	if len(pool) == 0 {
		// Availability over freshness: a provider outage degrades to the
		// newest cached result before it becomes a user-visible failure.
		if res, ok := e.staleFallback(ctx, req.UserID, requestID, start); ok {
			e.log.Warn().Str("user_id", req.UserID).Str("request_id", requestID).
				Msg("all candidate sources failed, serving stale result")
			return res, nil
		}
		res := &Result{
			RequestID:   requestID,
			UserID:      req.UserID,
			Stage:       stage,
			State:       StateFailed,
			CacheStatus: "miss",
			GeneratedAt: time.Now().UTC(),
			LatencyMS:   time.Since(start).Milliseconds(),
		}
		metrics.RecordRequest(string(StateFailed), time.Since(start))
		e.log.Error().Str("user_id", req.UserID).Str("request_id", requestID).
			Msg("all candidate sources failed or empty")
		return res, ErrNoCandidates
	}

	// SCORE + SELECT_TOP_N
	scoreStart := time.Now()
	scored := e.scorer.ScoreAll(pool, target, history, e.adjustFunc(profile))
	items := e.scorer.SelectTopN(scored, topN)
	metrics.ScoringDuration.Observe(time.Since(scoreStart).Seconds())

	res := &Result{
		RequestID:   requestID,
		UserID:      req.UserID,
		Items:       items,
		Stage:       stage,
		State:       StateReturnedFresh,
		CacheStatus: "miss",
		GeneratedAt: time.Now().UTC(),
		LatencyMS:   time.Since(start).Milliseconds(),
	}
	if req.ForceRefresh {
		res.CacheStatus = "bypass"
		writeBack = cacheHealthy
	}

	// CACHE_WRITE
	if writeBack {
		if err := e.cache.Set(ctx, cache.CategoryRecommendation, key, res); err != nil {
			e.log.Warn().Err(err).Str("user_id", req.UserID).Msg("cache write skipped")
		}
		latestKey := cache.Key(cache.CategoryRecommendation, req.UserID, latestContext)
		if err := e.cache.Set(ctx, cache.CategoryRecommendation, latestKey, res); err != nil {
			e.log.Warn().Err(err).Str("user_id", req.UserID).Msg("latest alias write skipped")
		}
	}

	metrics.RecordRequest(string(StateReturnedFresh), time.Since(start))
	e.log.Info().
		Str("user_id", req.UserID).
		Str("request_id", requestID).
		Str("stage", string(stage)).
		Int("pool", len(pool)).
		Int("returned", len(items)).
		Int64("latency_ms", res.LatencyMS).
		Msg("recommendations generated")
	return res, nil
}

// readCached attempts a cache read. On store failure it flips
// *healthy so the caller computes fresh and skips the write-back.
func (e *Engine) readCached(ctx context.Context, key, requestID string, start time.Time, healthy *bool) (*Result, bool) {
	var cached Result
	hit, err := e.cache.Get(ctx, cache.CategoryRecommendation, key, &cached)
	if err != nil {
		*healthy = false
		e.log.Warn().Err(err).Msg("cache unavailable, computing fresh")
		return nil, false
	}
	if !hit {
		return nil, false
	}

	cached.RequestID = requestID
	cached.State = StateReturnedCached
	cached.CacheStatus = "hit"
	cached.LatencyMS = time.Since(start).Milliseconds()
	metrics.RecordRequest(string(StateReturnedCached), time.Since(start))
	return &cached, true
}

// staleFallback reads the latest-alias entry, shared by the
// rate-limited and provider-outage degradations.
func (e *Engine) staleFallback(ctx context.Context, userID, requestID string, start time.Time) (*Result, bool) {
	latestKey := cache.Key(cache.CategoryRecommendation, userID, latestContext)

	var cached Result
	hit, err := e.cache.Get(ctx, cache.CategoryRecommendation, latestKey, &cached)
	if err != nil || !hit {
		return nil, false
	}
	cached.RequestID = requestID
	cached.State = StateReturnedStaleFallback
	cached.CacheStatus = "hit"
	cached.LatencyMS = time.Since(start).Milliseconds()
	metrics.RecordRequest(string(StateReturnedStaleFallback), time.Since(start))
	return &cached, true
}

// rateLimited serves the newest cached result if any, else a typed
// rejection.
func (e *Engine) rateLimited(ctx context.Context, req Request, requestID string, decision ratelimit.Decision, start time.Time) (*Result, error) {
	if res, ok := e.staleFallback(ctx, req.UserID, requestID, start); ok {
		e.log.Debug().Str("user_id", req.UserID).Msg("rate limited, serving stale result")
		return res, nil
	}

	metrics.RecordRequest(string(StateFailed), time.Since(start))
	return &Result{
		RequestID:   requestID,
		UserID:      req.UserID,
		State:       StateFailed,
		CacheStatus: "miss",
		GeneratedAt: time.Now().UTC(),
		LatencyMS:   time.Since(start).Milliseconds(),
	}, &RateLimitedError{RetryAfterSeconds: decision.RetryAfterSeconds}
}

// RecordFeedback ingests one interaction: invalidates the user's
// recommendation cache entries and applies the Q-table update
// (asynchronously unless SyncFeedback).
func (e *Engine) RecordFeedback(ctx context.Context, fb Feedback) error {
	reward, ok := rl.Reward(fb.Interaction, fb.CompletionRatio)
	if !ok {
		return fmt.Errorf("record feedback: unknown interaction %q", fb.Interaction)
	}
	metrics.FeedbackEvents.WithLabelValues(fb.Interaction).Inc()

	if _, err := e.cache.InvalidateUser(ctx, cache.CategoryRecommendation, fb.UserID); err != nil {
		// Invalidation failing means the user may briefly see the old
		// list; the Q-table update still proceeds.
		e.log.Warn().Err(err).Str("user_id", fb.UserID).Msg("feedback cache invalidation failed")
	}

	if e.cfg.SyncFeedback {
		e.applyFeedback(ctx, fb, reward)
		return nil
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		e.applyFeedback(ctx, fb, reward)
	}()
	return nil
}

func (e *Engine) applyFeedback(ctx context.Context, fb Feedback, reward float64) {
	profile, err := e.profiles.Profile(ctx, fb.UserID)
	if err != nil {
		e.log.Warn().Err(err).Str("user_id", fb.UserID).Msg("feedback profile lookup failed")
		profile = personality.Profile{}
	}
	bucket := rl.FeatureBucket(fb.Features.Energy, fb.Features.Valence, fb.Features.Tempo)
	e.qtable.Update(profile.Bucket(), bucket, fb.Genre, reward)

	e.log.Debug().
		Str("user_id", fb.UserID).
		Str("item_id", fb.ItemID).
		Str("interaction", fb.Interaction).
		Float64("reward", reward).
		Msg("feedback applied")
}

// adjustFunc builds the per-candidate RL adjustment closure. A nil
// Q-table (RL store down at startup) degrades to no adjustment.
func (e *Engine) adjustFunc(profile personality.Profile) AdjustFunc {
	if e.qtable == nil {
		return nil
	}
	bucket := profile.Bucket()
	return func(c Candidate) float64 {
		fb := rl.FeatureBucket(c.Features.Energy, c.Features.Valence, c.Features.Tempo)
		return e.qtable.Adjustment(bucket, fb, primaryGenre(c))
	}
}

func (e *Engine) userContext(ctx context.Context, userID string) (personality.Profile, int, personality.TargetVector) {
	profile, err := e.profiles.Profile(ctx, userID)
	if err != nil {
		e.log.Warn().Err(err).Str("user_id", userID).Msg("profile lookup failed, using neutral profile")
		profile = personality.Profile{}
	}
	return profile.Clamped(), e.accountAge(ctx, userID), personality.MapTraits(profile)
}

func (e *Engine) accountAge(ctx context.Context, userID string) int {
	age, err := e.profiles.AccountAgeDays(ctx, userID)
	if err != nil {
		e.log.Warn().Err(err).Str("user_id", userID).Msg("account age lookup failed, treating as new account")
		return 0
	}
	if age < 0 {
		return 0
	}
	return age
}

func (e *Engine) userHistory(ctx context.Context, userID string) []HistoryEntry {
	history, err := e.history.TopTracks(ctx, userID)
	if err != nil {
		e.log.Warn().Err(err).Str("user_id", userID).Msg("history lookup failed, scoring without history")
		return nil
	}
	return history
}

func primaryGenre(c Candidate) string {
	if len(c.Genres) == 0 {
		return ""
	}
	return strings.ToLower(c.Genres[0])
}
