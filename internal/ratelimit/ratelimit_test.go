// Mitra - Personality-Aware Media Recommendation Engine
// Copyright 2026 Anik R. (anikrm)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/anikrm/mitra

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/anikrm/mitra/internal/store"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *time.Time) {
	t.Helper()

	ms := store.NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ms.SetClock(func() time.Time { return now })

	l := NewLimiter(ms, cfg)
	l.SetClock(func() time.Time { return now })
	return l, &now
}

func TestLimiterAllowsUpToLimit(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t, Config{Limit: 100, Window: time.Minute})

	for i := 0; i < 100; i++ {
		d, err := l.Allow(ctx, "u1")
		if err != nil {
			t.Fatalf("Allow #%d: %v", i+1, err)
		}
		if !d.Allowed {
			t.Fatalf("request %d rejected below the limit", i+1)
		}
		if want := 100 - i - 1; d.Remaining != want {
			t.Errorf("request %d: Remaining = %d, want %d", i+1, d.Remaining, want)
		}
	}

	d, err := l.Allow(ctx, "u1")
	if err != nil {
		t.Fatalf("Allow #101: %v", err)
	}
	if d.Allowed {
		t.Error("101st request allowed")
	}
	if d.RetryAfterSeconds <= 0 {
		t.Errorf("RetryAfterSeconds = %d, want > 0", d.RetryAfterSeconds)
	}
}

func TestLimiterWindowSlides(t *testing.T) {
	ctx := context.Background()
	l, now := newTestLimiter(t, Config{Limit: 10, Window: time.Minute})

	for i := 0; i < 10; i++ {
		if d, _ := l.Allow(ctx, "u1"); !d.Allowed {
			t.Fatalf("request %d rejected below the limit", i+1)
		}
	}
	if d, _ := l.Allow(ctx, "u1"); d.Allowed {
		t.Fatal("11th request allowed inside window")
	}

	// After the window plus one bucket the counters have lapsed.
	*now = now.Add(time.Minute + 11*time.Second)
	d, err := l.Allow(ctx, "u1")
	if err != nil {
		t.Fatalf("Allow after window: %v", err)
	}
	if !d.Allowed {
		t.Error("request rejected after the window slid past all buckets")
	}
}

func TestLimiterIsolatesUsers(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t, Config{Limit: 1, Window: time.Minute})

	if d, _ := l.Allow(ctx, "u1"); !d.Allowed {
		t.Fatal("u1 first request rejected")
	}
	if d, _ := l.Allow(ctx, "u1"); d.Allowed {
		t.Fatal("u1 second request allowed over limit")
	}
	if d, _ := l.Allow(ctx, "u2"); !d.Allowed {
		t.Error("u2 affected by u1's window")
	}
}

func TestLimiterRejectionNotCounted(t *testing.T) {
	ctx := context.Background()
	l, now := newTestLimiter(t, Config{Limit: 2, Window: time.Minute})

	_, _ = l.Allow(ctx, "u1")
	_, _ = l.Allow(ctx, "u1")
	for i := 0; i < 5; i++ {
		if d, _ := l.Allow(ctx, "u1"); d.Allowed {
			t.Fatal("over-limit request allowed")
		}
	}

	u, err := l.Usage(ctx, "u1")
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if u.Used != 2 {
		t.Errorf("Used = %d after rejected requests, want 2", u.Used)
	}
	_ = now
}

func TestLimiterUsage(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t, Config{Limit: 100, Window: time.Minute})

	for i := 0; i < 3; i++ {
		_, _ = l.Allow(ctx, "u1")
	}

	u, err := l.Usage(ctx, "u1")
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if u.Used != 3 || u.Limit != 100 || u.WindowSeconds != 60 {
		t.Errorf("Usage = %+v, want used=3 limit=100 window=60", u)
	}
}

func TestLimiterDefaults(t *testing.T) {
	l := NewLimiter(store.NewMemoryStore(), Config{})

	if l.limit != DefaultLimit {
		t.Errorf("limit = %d, want default %d", l.limit, DefaultLimit)
	}
	if l.window != DefaultWindow {
		t.Errorf("window = %v, want default %v", l.window, DefaultWindow)
	}
}

func TestProviderBudgetSkipsWhenExhausted(t *testing.T) {
	b := NewProviderBudget(ProviderConfig{
		Endpoints: map[string]EndpointBudget{
			EndpointPopular: {PerSecond: 0.001, Burst: 2},
		},
	})

	if !b.Allow(EndpointPopular) {
		t.Fatal("first call rejected with full bucket")
	}
	if !b.Allow(EndpointPopular) {
		t.Fatal("second call rejected within burst")
	}
	if b.Allow(EndpointPopular) {
		t.Error("call allowed with exhausted bucket")
	}
}

func TestProviderBudgetDefaultEndpoints(t *testing.T) {
	b := NewProviderBudget(ProviderConfig{})

	for _, ep := range []string{EndpointSimilar, EndpointGenreSearch, EndpointNewReleases, EndpointPopular} {
		if !b.Allow(ep) {
			t.Errorf("endpoint %s rejected with default budget", ep)
		}
	}
}
