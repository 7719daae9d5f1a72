// Mitra - Personality-Aware Media Recommendation Engine
// Copyright 2026 Anik R. (anikrm)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/anikrm/mitra

// Package recommend implements the recommendation request cycle:
// candidate generation, weighted scoring, cold-start staging, top-N
// selection, and the orchestrating engine with cache, rate-limit, and
// RL integration.
package recommend

import (
	"context"
	"time"

	"github.com/anikrm/mitra/internal/personality"
)

// SourceTag identifies which sub-source produced a candidate.
type SourceTag string

const (
	SourceSimilar    SourceTag = "similar"
	SourceGenre      SourceTag = "genre_search"
	SourceNewRelease SourceTag = "new_release"
	SourcePopular    SourceTag = "popular"
)

// FeatureVector holds the audio attributes used for scoring. All
// dimensions except Tempo are already in [0,1]; Tempo is raw BPM and
// normalized on demand.
type FeatureVector struct {
	Danceability     float64 `json:"danceability"`
	Energy           float64 `json:"energy"`
	Valence          float64 `json:"valence"`
	Tempo            float64 `json:"tempo"`
	Acousticness     float64 `json:"acousticness"`
	Instrumentalness float64 `json:"instrumentalness"`
	Speechiness      float64 `json:"speechiness"`
}

// Candidate is an unscored item from a provider sub-source.
type Candidate struct {
	ID         string            `json:"id"`
	Title      string            `json:"title"`
	Artist     string            `json:"artist"`
	Genres     []string          `json:"genres,omitempty"`
	Popularity int               `json:"popularity"` // 0-100, provider-global
	Features   FeatureVector     `json:"features"`
	Source     SourceTag         `json:"source"`
	Metadata   map[string]string `json:"metadata,omitempty"` // opaque provider passthrough
}

// ComponentScores breaks the composite down for observability and
// test assertions. All components are in [0,1]; RLAdjustment is in
// [-0.05, +0.05].
type ComponentScores struct {
	HistorySimilarity float64 `json:"history_similarity"`
	PersonalityMatch  float64 `json:"personality_match"`
	DiversityBonus    float64 `json:"diversity_bonus"`
	NoveltyFactor     float64 `json:"novelty_factor"`
	RLAdjustment      float64 `json:"rl_adjustment"`
	Composite         float64 `json:"composite"`
}

// ScoredCandidate is a candidate with its scoring breakdown. Ephemeral:
// recomputed each scoring pass, persisted only inside a cached Result.
type ScoredCandidate struct {
	Candidate
	Scores ComponentScores `json:"scores"`
}

// HistoryEntry is one item of the user's bounded listening history,
// refreshed by an external collaborator and read-only here.
type HistoryEntry struct {
	ID         string        `json:"id"`
	Artist     string        `json:"artist"`
	Genres     []string      `json:"genres,omitempty"`
	Features   FeatureVector `json:"features"`
	PlayCount  int           `json:"play_count"`
	LastPlayed time.Time     `json:"last_played"`
}

// TerminalState is the orchestrator's per-request outcome.
type TerminalState string

const (
	StateReturnedCached        TerminalState = "returned_cached"
	StateReturnedFresh         TerminalState = "returned_fresh"
	StateReturnedStaleFallback TerminalState = "returned_stale_fallback"
	StateFailed                TerminalState = "failed"
)

// Request asks for a ranked list at session start.
type Request struct {
	UserID string `json:"user_id" validate:"required"`

	// TopN bounds the result size. Default 20, max 50.
	TopN int `json:"top_n" validate:"gte=0,lte=50"`

	// ForceRefresh bypasses the cache read (not the write).
	ForceRefresh bool `json:"force_refresh"`
}

// Result is the ranked recommendation list with request metadata.
type Result struct {
	RequestID   string            `json:"request_id"`
	UserID      string            `json:"user_id"`
	Items       []ScoredCandidate `json:"items"`
	Stage       Stage             `json:"cold_start_stage"`
	State       TerminalState     `json:"state"`
	CacheStatus string            `json:"cache_status"` // hit / miss / bypass
	GeneratedAt time.Time         `json:"generated_at"`
	LatencyMS   int64             `json:"latency_ms"`
}

// Feedback is one user interaction with a recommended item.
type Feedback struct {
	UserID      string `json:"user_id" validate:"required"`
	ItemID      string `json:"item_id" validate:"required"`
	Interaction string `json:"interaction" validate:"required"`

	// CompletionRatio applies to play events, 0-1 of the item consumed.
	CompletionRatio float64 `json:"completion_ratio" validate:"gte=0,lte=1"`

	// Genre and Features describe the item for Q-table bucketing.
	Genre    string        `json:"genre"`
	Features FeatureVector `json:"features"`
}

// Provider supplies raw candidates. Implemented by provider-specific
// collaborators outside this engine; faked in tests.
type Provider interface {
	FetchSimilar(ctx context.Context, seedIDs []string, max int) ([]Candidate, error)
	SearchGenre(ctx context.Context, genre string, max int) ([]Candidate, error)
	NewReleases(ctx context.Context, max int) ([]Candidate, error)
	Popular(ctx context.Context, max int) ([]Candidate, error)
}

// HistorySource supplies the user's bounded listening history.
type HistorySource interface {
	TopTracks(ctx context.Context, userID string) ([]HistoryEntry, error)
}

// ProfileSource supplies the personality profile and account age.
type ProfileSource interface {
	Profile(ctx context.Context, userID string) (personality.Profile, error)
	AccountAgeDays(ctx context.Context, userID string) (int, error)
}
