// Mitra - Personality-Aware Media Recommendation Engine
// Copyright 2026 Anik R. (anikrm)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/anikrm/mitra

package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Provider endpoint names used as budget keys.
const (
	EndpointSimilar     = "similar"
	EndpointGenreSearch = "genre_search"
	EndpointNewReleases = "new_releases"
	EndpointPopular     = "popular"
)

// EndpointBudget configures one provider endpoint's token bucket.
type EndpointBudget struct {
	// PerSecond is the sustained request rate. Default: 2.
	PerSecond float64 `koanf:"per_second" validate:"gte=0"`

	// Burst is the bucket capacity. Default: 5.
	Burst int `koanf:"burst" validate:"gte=0"`
}

// ProviderConfig maps endpoint name to budget. Missing endpoints get
// the defaults.
type ProviderConfig struct {
	Endpoints map[string]EndpointBudget `koanf:"endpoints"`
}

// ProviderBudget tracks outbound provider quota with one token bucket
// per endpoint. The candidate source consults it before each sub-fetch
// and skips the sub-source when the bucket is empty.
type ProviderBudget struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	config  ProviderConfig
}

// NewProviderBudget creates a budget with buckets for the four
// candidate endpoints.
func NewProviderBudget(cfg ProviderConfig) *ProviderBudget {
	b := &ProviderBudget{
		buckets: make(map[string]*rate.Limiter),
		config:  cfg,
	}
	for _, ep := range []string{EndpointSimilar, EndpointGenreSearch, EndpointNewReleases, EndpointPopular} {
		b.buckets[ep] = rate.NewLimiter(b.limitFor(ep))
	}
	return b
}

func (b *ProviderBudget) limitFor(endpoint string) (rate.Limit, int) {
	budget, ok := b.config.Endpoints[endpoint]
	if !ok || budget.PerSecond <= 0 {
		budget.PerSecond = 2
	}
	if budget.Burst <= 0 {
		budget.Burst = 5
	}
	return rate.Limit(budget.PerSecond), budget.Burst
}

// Allow consumes one token for the endpoint if available. A false
// return means the sub-source should be skipped this request, not
// blocked on. The caller owns the skip accounting.
func (b *ProviderBudget) Allow(endpoint string) bool {
	b.mu.Lock()
	bucket, ok := b.buckets[endpoint]
	if !ok {
		bucket = rate.NewLimiter(b.limitFor(endpoint))
		b.buckets[endpoint] = bucket
	}
	b.mu.Unlock()

	return bucket.Allow()
}

// TokensAt reports the available tokens for an endpoint at t. Used by
// the stats surface.
func (b *ProviderBudget) TokensAt(endpoint string, t time.Time) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	bucket, ok := b.buckets[endpoint]
	if !ok {
		return 0
	}
	return bucket.TokensAt(t)
}
