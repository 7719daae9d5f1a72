// Mitra - Personality-Aware Media Recommendation Engine
// Copyright 2026 Anik R. (anikrm)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/anikrm/mitra

package recommend

import (
	"context"
	"errors"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/rs/zerolog"

	"github.com/anikrm/mitra/internal/logging"
	"github.com/anikrm/mitra/internal/metrics"
	"github.com/anikrm/mitra/internal/personality"
	"github.com/anikrm/mitra/internal/ratelimit"
)

// Candidate pool bounds.
const (
	DefaultTargetCandidates = 300
	MaxCandidates           = 500

	// Per-sub-source fetch sizes.
	maxSimilar     = 200
	maxPerGenre    = 100
	maxNewReleases = 50
	maxPopular     = 100

	// genreFanout is how many top-affinity genres get their own search.
	genreFanout = 3

	// seedLimit bounds how many history items seed the similar search.
	seedLimit = 5
)

// GeneratorConfig tunes the candidate fan-out.
type GeneratorConfig struct {
	// Target is the desired pool size after dedupe. Default 300,
	// capped at 500.
	Target int `koanf:"target" validate:"gte=0,lte=500"`

	// SubSourceTimeout bounds each sub-source call. The single retry
	// runs at half this timeout. Default 2s.
	SubSourceTimeout time.Duration `koanf:"sub_source_timeout"`
}

// Generator fans out to the provider sub-sources and assembles the
// deduplicated candidate pool. Sub-source failures degrade the pool,
// never the request.
type Generator struct {
	provider Provider
	budget   *ratelimit.ProviderBudget
	breakers map[SourceTag]*gobreaker.CircuitBreaker[[]Candidate]
	target   int
	timeout  time.Duration
	log      zerolog.Logger
}

// NewGenerator creates a generator with one circuit breaker per
// sub-source endpoint.
func NewGenerator(provider Provider, budget *ratelimit.ProviderBudget, cfg GeneratorConfig) *Generator {
	target := cfg.Target
	if target <= 0 {
		target = DefaultTargetCandidates
	}
	if target > MaxCandidates {
		target = MaxCandidates
	}
	timeout := cfg.SubSourceTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	g := &Generator{
		provider: provider,
		budget:   budget,
		breakers: make(map[SourceTag]*gobreaker.CircuitBreaker[[]Candidate]),
		target:   target,
		timeout:  timeout,
		log:      logging.With().Str("component", "candidates").Logger(),
	}
	for _, src := range []SourceTag{SourceSimilar, SourceGenre, SourceNewRelease, SourcePopular} {
		g.breakers[src] = gobreaker.NewCircuitBreaker[[]Candidate](gobreaker.Settings{
			Name:    string(src),
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		})
	}
	return g
}

// subFetch is one parallel sub-source invocation.
type subFetch struct {
	source   SourceTag
	endpoint string
	fetch    func(ctx context.Context) ([]Candidate, error)
}

// Generate assembles the candidate pool for one request. The stage
// weights gate the sub-source mix: week-1 accounts skip the
// history-seeded search and always pull the popularity fallback.
// Failed sub-sources are dropped; an empty pool is the caller's
// signal for ErrNoCandidates.
func (g *Generator) Generate(ctx context.Context, userID string, history []HistoryEntry, target personality.TargetVector, weights StageWeights) []Candidate {
	fetches := make([]subFetch, 0, 2+genreFanout)

	if weights.HistoryWeight > 0 && len(history) > 0 {
		seeds := make([]string, 0, seedLimit)
		for _, h := range history {
			seeds = append(seeds, h.ID)
			if len(seeds) == seedLimit {
				break
			}
		}
		fetches = append(fetches, subFetch{
			source:   SourceSimilar,
			endpoint: ratelimit.EndpointSimilar,
			fetch: func(ctx context.Context) ([]Candidate, error) {
				return g.provider.FetchSimilar(ctx, seeds, maxSimilar)
			},
		})
	}

	for _, genre := range target.TopGenres(genreFanout) {
		genre := genre
		fetches = append(fetches, subFetch{
			source:   SourceGenre,
			endpoint: ratelimit.EndpointGenreSearch,
			fetch: func(ctx context.Context) ([]Candidate, error) {
				return g.provider.SearchGenre(ctx, genre, maxPerGenre)
			},
		})
	}

	fetches = append(fetches, subFetch{
		source:   SourceNewRelease,
		endpoint: ratelimit.EndpointNewReleases,
		fetch: func(ctx context.Context) ([]Candidate, error) {
			return g.provider.NewReleases(ctx, maxNewReleases)
		},
	})

	pool := g.runFetches(ctx, userID, fetches)

	// Popularity fallback: always for new accounts, otherwise only when
	// the pool came up short.
	if weights.PopularWeight > 0 || len(pool) < g.target/2 {
		popular := g.runFetches(ctx, userID, []subFetch{{
			source:   SourcePopular,
			endpoint: ratelimit.EndpointPopular,
			fetch: func(ctx context.Context) ([]Candidate, error) {
				return g.provider.Popular(ctx, maxPopular)
			},
		}})
		pool = append(pool, popular...)
	}

	pool = dedupe(pool)
	if len(pool) > MaxCandidates {
		pool = pool[:MaxCandidates]
	}
	metrics.CandidatesGenerated.Observe(float64(len(pool)))
	return pool
}

// runFetches executes the sub-fetches in parallel and joins results.
func (g *Generator) runFetches(ctx context.Context, userID string, fetches []subFetch) []Candidate {
	var (
		mu   sync.Mutex
		pool []Candidate
		wg   sync.WaitGroup
	)

	for _, f := range fetches {
		f := f
		if !g.budget.Allow(f.endpoint) {
			// Skip, don't block: quota recovers on its own and the
			// orchestrator works with whatever the other sources return.
			metrics.ProviderBudgetSkips.WithLabelValues(string(f.source)).Inc()
			g.log.Debug().
				Str("source", string(f.source)).
				Str("user_id", userID).
				Msg("provider budget exhausted, skipping sub-source")
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			items, err := g.fetchWithRetry(ctx, f)
			if err != nil {
				metrics.SourceFailures.WithLabelValues(string(f.source)).Inc()
				g.log.Warn().Err(err).
					Str("source", string(f.source)).
					Str("user_id", userID).
					Msg("sub-source dropped for this request")
				return
			}
			for i := range items {
				if items[i].Source == "" {
					items[i].Source = f.source
				}
			}
			mu.Lock()
			pool = append(pool, items...)
			mu.Unlock()
		}()
	}

	wg.Wait()
	return pool
}

// fetchWithRetry runs one sub-source through its breaker with the
// configured timeout, then once more at half timeout on failure.
func (g *Generator) fetchWithRetry(ctx context.Context, f subFetch) ([]Candidate, error) {
	items, err := g.fetchOnce(ctx, f, g.timeout)
	if err == nil {
		return items, nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) {
		metrics.BreakerOpen.WithLabelValues(string(f.source)).Inc()
		return nil, &SourceError{Source: f.source, Err: err}
	}

	items, err = g.fetchOnce(ctx, f, g.timeout/2)
	if err != nil {
		return nil, &SourceError{Source: f.source, Err: err}
	}
	return items, nil
}

func (g *Generator) fetchOnce(ctx context.Context, f subFetch, timeout time.Duration) ([]Candidate, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return g.breakers[f.source].Execute(func() ([]Candidate, error) {
		return f.fetch(callCtx)
	})
}

// dedupe keeps the first occurrence of each item ID.
func dedupe(pool []Candidate) []Candidate {
	seen := make(map[string]struct{}, len(pool))
	out := pool[:0]
	for _, c := range pool {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}
