// Mitra - Personality-Aware Media Recommendation Engine
// Copyright 2026 Anik R. (anikrm)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/anikrm/mitra

// Package config loads the layered runtime configuration: built-in
// defaults, then an optional YAML file, then environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/anikrm/mitra/internal/cache"
	"github.com/anikrm/mitra/internal/provider"
	"github.com/anikrm/mitra/internal/ratelimit"
	"github.com/anikrm/mitra/internal/recommend"
)

// Config is the full runtime configuration.
type Config struct {
	Server    ServerConfig              `koanf:"server"`
	Store     StoreConfig               `koanf:"store"`
	Logging   LoggingConfig             `koanf:"logging"`
	Cache     cache.Config              `koanf:"cache"`
	RateLimit ratelimit.Config          `koanf:"ratelimit"`
	Provider  ratelimit.ProviderConfig  `koanf:"provider"`
	Catalog   provider.Config           `koanf:"catalog"`
	Generator recommend.GeneratorConfig `koanf:"generator"`
	Engine    recommend.EngineConfig    `koanf:"engine"`
	RL        RLConfig                  `koanf:"rl"`
}

// LoggingConfig holds log output settings. Mapped onto the logging
// package's Config at startup.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"gte=1,lte=65535"`
	Timeout time.Duration `koanf:"timeout"`

	// IPRateLimit is the per-IP request cap at the HTTP edge,
	// requests per minute. Zero disables it.
	IPRateLimit int `koanf:"ip_rate_limit" validate:"gte=0"`
}

// StoreConfig holds the embedded store settings.
type StoreConfig struct {
	// Path is the on-disk store directory. Empty runs in-memory.
	Path string `koanf:"path"`

	// GCInterval is how often value-log garbage collection runs.
	GCInterval time.Duration `koanf:"gc_interval"`

	// GCDiscardRatio is the rewrite threshold passed to the store GC.
	GCDiscardRatio float64 `koanf:"gc_discard_ratio" validate:"gte=0,lte=1"`
}

// RLConfig holds the Q-table persistence settings.
type RLConfig struct {
	// FlushInterval is how often the Q-table snapshot is written to
	// the store.
	FlushInterval time.Duration `koanf:"flush_interval"`
}

// defaultConfig returns the built-in defaults. They are applied first,
// then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8642,
			Timeout:     30 * time.Second,
			IPRateLimit: 300,
		},
		Store: StoreConfig{
			Path:           "/data/mitra",
			GCInterval:     10 * time.Minute,
			GCDiscardRatio: 0.5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Cache: cache.Config{
			RecommendationTTL: cache.RecommendationTTL,
			FeatureTTL:        cache.FeatureTTL,
			ProviderTTL:       cache.ProviderTTL,
			UserStateTTL:      cache.UserStateTTL,
		},
		RateLimit: ratelimit.Config{
			Limit:  ratelimit.DefaultLimit,
			Window: ratelimit.DefaultWindow,
		},
		Provider: ratelimit.ProviderConfig{
			Endpoints: map[string]ratelimit.EndpointBudget{
				ratelimit.EndpointSimilar:     {PerSecond: 2, Burst: 5},
				ratelimit.EndpointGenreSearch: {PerSecond: 2, Burst: 5},
				ratelimit.EndpointNewReleases: {PerSecond: 2, Burst: 5},
				ratelimit.EndpointPopular:     {PerSecond: 2, Burst: 5},
			},
		},
		Catalog: provider.Config{
			BaseURL: "http://localhost:8700",
			Timeout: 10 * time.Second,
		},
		Generator: recommend.GeneratorConfig{
			Target:           recommend.DefaultTargetCandidates,
			SubSourceTimeout: 2 * time.Second,
		},
		Engine: recommend.EngineConfig{
			RequestBudget: recommend.DefaultRequestBudget,
			Weights:       recommend.DefaultScoreWeights(),
		},
		RL: RLConfig{
			FlushInterval: 5 * time.Minute,
		},
	}
}

// Validate checks structural constraints via struct tags plus the
// cross-field rules tags cannot express.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "console", "":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}

	// The composite weights must describe a convex-ish combination;
	// all-zero falls back to defaults downstream, but a partial zero
	// sum is a misconfiguration.
	w := c.Engine.Weights
	sum := w.History + w.Personality + w.Diversity + w.Novelty
	if sum != 0 && (sum < 0.99 || sum > 1.01) {
		return fmt.Errorf("ENGINE_WEIGHTS must sum to 1.0, got %.3f", sum)
	}

	if c.RateLimit.Window != 0 && c.RateLimit.Window < 6*time.Second {
		return fmt.Errorf("RATELIMIT_WINDOW must be at least 6s, got %s", c.RateLimit.Window)
	}

	return nil
}
