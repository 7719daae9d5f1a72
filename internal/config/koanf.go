// Mitra - Personality-Aware Media Recommendation Engine
// Copyright 2026 Anik R. (anikrm)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/anikrm/mitra

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where the config file is searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/mitra/config.yaml",
	"/etc/mitra/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load builds the configuration from three layers with increasing
// precedence: built-in defaults, an optional YAML file, environment
// variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// findConfigFile returns the first existing config file path, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps environment variable names to config paths.
// Unmapped variables are dropped so stray environment noise cannot
// leak into the configuration.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - RATELIMIT_WINDOW -> ratelimit.window
//   - RL_FLUSH_INTERVAL -> rl.flush_interval
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server mappings
		"http_host":     "server.host",
		"http_port":     "server.port",
		"http_timeout":  "server.timeout",
		"ip_rate_limit": "server.ip_rate_limit",

		// Store mappings
		"store_path":             "store.path",
		"store_gc_interval":      "store.gc_interval",
		"store_gc_discard_ratio": "store.gc_discard_ratio",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",

		// Cache TTL mappings
		"cache_recommendation_ttl": "cache.recommendation_ttl",
		"cache_feature_ttl":        "cache.feature_ttl",
		"cache_provider_ttl":       "cache.provider_ttl",
		"cache_user_state_ttl":     "cache.user_state_ttl",

		// Per-user rate limit mappings
		"ratelimit_limit":  "ratelimit.limit",
		"ratelimit_window": "ratelimit.window",

		// Provider budget mappings
		"provider_similar_per_second":      "provider.endpoints.similar.per_second",
		"provider_similar_burst":           "provider.endpoints.similar.burst",
		"provider_genre_search_per_second": "provider.endpoints.genre_search.per_second",
		"provider_genre_search_burst":      "provider.endpoints.genre_search.burst",
		"provider_new_releases_per_second": "provider.endpoints.new_releases.per_second",
		"provider_new_releases_burst":      "provider.endpoints.new_releases.burst",
		"provider_popular_per_second":      "provider.endpoints.popular.per_second",
		"provider_popular_burst":           "provider.endpoints.popular.burst",

		// Catalog upstream mappings
		"catalog_base_url": "catalog.base_url",
		"catalog_api_key":  "catalog.api_key",
		"catalog_timeout":  "catalog.timeout",

		// Candidate generator mappings
		"generator_target":             "generator.target",
		"generator_sub_source_timeout": "generator.sub_source_timeout",

		// Engine mappings
		"engine_request_budget":     "engine.request_budget",
		"engine_weight_history":     "engine.weights.history",
		"engine_weight_personality": "engine.weights.personality",
		"engine_weight_diversity":   "engine.weights.diversity",
		"engine_weight_novelty":     "engine.weights.novelty",

		// RL persistence mappings
		"rl_flush_interval": "rl.flush_interval",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
