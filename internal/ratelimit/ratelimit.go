// Mitra - Personality-Aware Media Recommendation Engine
// Copyright 2026 Anik R. (anikrm)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/anikrm/mitra

// Package ratelimit enforces the per-user request budget and the
// outbound provider quotas.
//
// The per-user limiter is a bucketed sliding window kept in the shared
// store, so every engine instance sees the same counters. The provider
// budget is a set of local token buckets (golang.org/x/time/rate), one
// per provider endpoint.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anikrm/mitra/internal/metrics"
	"github.com/anikrm/mitra/internal/store"
)

// Defaults for the per-user window.
const (
	DefaultLimit  = 100
	DefaultWindow = time.Minute

	// numBuckets divides the window; 6 buckets of 10s approximate the
	// sliding window with bounded key count per user.
	numBuckets = 6
)

// Config holds per-user limiter settings.
type Config struct {
	// Limit is the maximum requests per window per user. Default: 100.
	Limit int `koanf:"limit" validate:"gte=0"`

	// Window is the sliding window duration. Default: 1m.
	Window time.Duration `koanf:"window"`
}

// Decision is the outcome of a limiter check.
type Decision struct {
	Allowed bool `json:"allowed"`

	// Remaining is the number of requests left in the window.
	Remaining int `json:"remaining"`

	// RetryAfterSeconds is how long a rejected caller should wait.
	// Zero when Allowed.
	RetryAfterSeconds int `json:"retry_after_seconds,omitempty"`
}

// Usage is the per-user window snapshot for the stats endpoint.
type Usage struct {
	Used           int `json:"used"`
	Limit          int `json:"limit"`
	WindowSeconds  int `json:"window_seconds"`
	ResetInSeconds int `json:"reset_in_seconds"`
}

// Limiter is the store-backed per-user sliding window.
type Limiter struct {
	store  store.Store
	limit  int
	window time.Duration
	bucket time.Duration
	now    func() time.Time
}

// NewLimiter creates a limiter over the shared store.
func NewLimiter(s store.Store, cfg Config) *Limiter {
	limit := cfg.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}

	return &Limiter{
		store:  s,
		limit:  limit,
		window: window,
		bucket: window / numBuckets,
		now:    time.Now,
	}
}

// SetClock replaces the limiter's time source. Test use only.
func (l *Limiter) SetClock(now func() time.Time) {
	l.now = now
}

// key builds the store key for one user bucket.
func (l *Limiter) key(userID string, bucketStart int64) string {
	return fmt.Sprintf("ratelimit:%s:%d", userID, bucketStart)
}

// bucketStarts returns the start instants (unix seconds scaled to the
// bucket size) of every bucket overlapping the current window, newest
// first.
func (l *Limiter) bucketStarts(now time.Time) []int64 {
	bucketSec := int64(l.bucket / time.Second)
	current := now.Unix() / bucketSec * bucketSec

	starts := make([]int64, 0, numBuckets+1)
	// One extra bucket covers the partial oldest bucket of the window.
	for i := 0; i <= numBuckets; i++ {
		starts = append(starts, current-int64(i)*bucketSec)
	}
	return starts
}

// Allow checks and consumes one request for userID. When the window is
// exhausted the request is not counted and RetryAfterSeconds reports
// when the oldest contributing bucket leaves the window.
func (l *Limiter) Allow(ctx context.Context, userID string) (Decision, error) {
	now := l.now()
	used, oldest, err := l.windowCount(ctx, userID, now)
	if err != nil {
		return Decision{}, err
	}

	if used >= l.limit {
		retry := l.retryAfter(now, oldest)
		metrics.RateLimitRejections.Inc()
		return Decision{Allowed: false, RetryAfterSeconds: retry}, nil
	}

	starts := l.bucketStarts(now)
	// Counter TTL outlives the window by one bucket so a bucket never
	// vanishes while it can still contribute.
	if _, err := l.store.Increment(ctx, l.key(userID, starts[0]), 1, l.window+l.bucket); err != nil {
		return Decision{}, fmt.Errorf("ratelimit increment for %s: %w", userID, err)
	}

	return Decision{Allowed: true, Remaining: l.limit - used - 1}, nil
}

// Usage reports the user's current window without consuming a request.
func (l *Limiter) Usage(ctx context.Context, userID string) (Usage, error) {
	now := l.now()
	used, oldest, err := l.windowCount(ctx, userID, now)
	if err != nil {
		return Usage{}, err
	}

	return Usage{
		Used:           used,
		Limit:          l.limit,
		WindowSeconds:  int(l.window / time.Second),
		ResetInSeconds: l.retryAfter(now, oldest),
	}, nil
}

// windowCount sums the user's buckets and returns the total plus the
// start of the oldest non-empty bucket (0 when all empty).
func (l *Limiter) windowCount(ctx context.Context, userID string, now time.Time) (int, int64, error) {
	total := 0
	var oldest int64

	for _, start := range l.bucketStarts(now) {
		data, err := l.store.Get(ctx, l.key(userID, start))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return 0, 0, fmt.Errorf("ratelimit read for %s: %w", userID, err)
		}
		n := parseCount(data)
		if n > 0 {
			total += n
			oldest = start
		}
	}
	return total, oldest, nil
}

// retryAfter computes seconds until the oldest contributing bucket
// falls out of the window, at least 1.
func (l *Limiter) retryAfter(now time.Time, oldestBucket int64) int {
	if oldestBucket == 0 {
		return 1
	}
	freeAt := time.Unix(oldestBucket, 0).Add(l.window + l.bucket)
	secs := int(freeAt.Sub(now).Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}

func parseCount(data []byte) int {
	n := 0
	for _, c := range data {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}
