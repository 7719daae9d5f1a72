// Mitra - Personality-Aware Media Recommendation Engine
// Copyright 2026 Anik R. (anikrm)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/anikrm/mitra

// Package cache provides the recommendation result cache on top of the
// shared store. Entries are grouped into categories with fixed TTLs:
//
//	rec   - scored recommendation lists (24h)
//	feat  - audio feature vectors (7d)
//	prov  - raw provider responses (6h)
//	state - per-user session state (30m)
//
// Keys follow "{category}:{userID}:{contextHash}" so a user's entries for
// one category can be invalidated with a single prefix delete. Stampede
// protection uses a short-lived SetNX lock next to the real key.
package cache

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/anikrm/mitra/internal/metrics"
	"github.com/anikrm/mitra/internal/store"
)

// ErrUnavailable marks a store failure on the cache path. A miss is
// never an error; errors.Is against this sentinel separates "not
// cached" from "cache down" for callers.
var ErrUnavailable = errors.New("cache: store unavailable")

// Category identifies a cache namespace with its own TTL.
type Category string

const (
	CategoryRecommendation Category = "rec"
	CategoryFeature        Category = "feat"
	CategoryProvider       Category = "prov"
	CategoryUserState      Category = "state"
)

// Default TTLs per category.
const (
	RecommendationTTL = 24 * time.Hour
	FeatureTTL        = 7 * 24 * time.Hour
	ProviderTTL       = 6 * time.Hour
	UserStateTTL      = 30 * time.Minute

	// lockTTL bounds how long a crashed filler can block other fillers.
	lockTTL = 3 * time.Second
)

// Config overrides category TTLs. Zero values keep the defaults.
type Config struct {
	RecommendationTTL time.Duration `koanf:"recommendation_ttl"`
	FeatureTTL        time.Duration `koanf:"feature_ttl"`
	ProviderTTL       time.Duration `koanf:"provider_ttl"`
	UserStateTTL      time.Duration `koanf:"user_state_ttl"`
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// HitRate returns the hit percentage, 0 when no lookups happened.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100.0
}

// Cache is the category-aware cache over a shared Store. The store is
// injected; nothing here owns a connection or a singleton.
type Cache struct {
	store store.Store
	ttls  map[Category]time.Duration

	mu    sync.Mutex
	stats map[Category]*Stats
}

// New creates a Cache over the given store.
func New(s store.Store, cfg Config) *Cache {
	ttls := map[Category]time.Duration{
		CategoryRecommendation: RecommendationTTL,
		CategoryFeature:        FeatureTTL,
		CategoryProvider:       ProviderTTL,
		CategoryUserState:      UserStateTTL,
	}
	if cfg.RecommendationTTL > 0 {
		ttls[CategoryRecommendation] = cfg.RecommendationTTL
	}
	if cfg.FeatureTTL > 0 {
		ttls[CategoryFeature] = cfg.FeatureTTL
	}
	if cfg.ProviderTTL > 0 {
		ttls[CategoryProvider] = cfg.ProviderTTL
	}
	if cfg.UserStateTTL > 0 {
		ttls[CategoryUserState] = cfg.UserStateTTL
	}

	return &Cache{
		store: s,
		ttls:  ttls,
		stats: map[Category]*Stats{
			CategoryRecommendation: {},
			CategoryFeature:        {},
			CategoryProvider:       {},
			CategoryUserState:      {},
		},
	}
}

// TTL returns the configured TTL for a category.
func (c *Cache) TTL(cat Category) time.Duration {
	return c.ttls[cat]
}

// Key builds the cache key for a user and request context. The context
// parameters are serialized and hashed so that any change in scoring
// context (profile bucket, weights, top-N) lands on a different key.
func Key(cat Category, userID string, contextParams interface{}) string {
	data, err := json.Marshal(contextParams)
	if err != nil {
		// Marshal failing on plain structs does not happen in practice;
		// fall back to the raw value rather than dropping the entry.
		return fmt.Sprintf("%s:%s:%v", cat, userID, contextParams)
	}
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%s:%s:%x", cat, userID, hash[:16])
}

// userPrefix is the common prefix of all of a user's keys in a category.
func userPrefix(cat Category, userID string) string {
	return fmt.Sprintf("%s:%s:", cat, userID)
}

// Get reads key into dest. Returns (false, nil) on a miss, (false, err)
// when the store itself failed.
func (c *Cache) Get(ctx context.Context, cat Category, key string, dest interface{}) (bool, error) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.record(cat, false)
			metrics.RecordCacheMiss(string(cat))
			return false, nil
		}
		return false, fmt.Errorf("cache get %q: %w: %w", key, ErrUnavailable, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		// A corrupt entry behaves like a miss; drop it so the next fill
		// replaces it.
		_ = c.store.Delete(ctx, key)
		c.record(cat, false)
		metrics.RecordCacheMiss(string(cat))
		return false, nil
	}

	c.record(cat, true)
	metrics.RecordCacheHit(string(cat))
	return true, nil
}

// Set writes value under key with the category's TTL.
func (c *Cache) Set(ctx context.Context, cat Category, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal %q: %w", key, err)
	}
	if err := c.store.Set(ctx, key, data, c.ttls[cat]); err != nil {
		return fmt.Errorf("cache set %q: %w: %w", key, ErrUnavailable, err)
	}
	return nil
}

// InvalidateUser removes all of a user's entries in a category and
// returns how many were dropped.
func (c *Cache) InvalidateUser(ctx context.Context, cat Category, userID string) (int, error) {
	n, err := c.store.DeletePrefix(ctx, userPrefix(cat, userID))
	if err != nil {
		return 0, fmt.Errorf("cache invalidate %s for user %s: %w: %w", cat, userID, ErrUnavailable, err)
	}
	return n, nil
}

// AcquireFillLock tries to take the per-key fill lock used for stampede
// protection. Returns true when this caller is the designated filler.
func (c *Cache) AcquireFillLock(ctx context.Context, key string) (bool, error) {
	ok, err := c.store.SetNX(ctx, key+":lock", []byte("1"), lockTTL)
	if err != nil {
		return false, fmt.Errorf("cache lock %q: %w: %w", key, ErrUnavailable, err)
	}
	return ok, nil
}

// ReleaseFillLock drops the fill lock. Best effort: the lock TTL covers
// a filler that dies before releasing.
func (c *Cache) ReleaseFillLock(ctx context.Context, key string) {
	_ = c.store.Delete(ctx, key+":lock")
}

// Stats returns a snapshot of the counters for one category.
func (c *Cache) Stats(cat Category) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.stats[cat]
}

func (c *Cache) record(cat Category, hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.stats[cat]
	if !ok {
		s = &Stats{}
		c.stats[cat] = s
	}
	if hit {
		s.Hits++
	} else {
		s.Misses++
	}
}
