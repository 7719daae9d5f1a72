// Mitra - Personality-Aware Media Recommendation Engine
// Copyright 2026 Anik R. (anikrm)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/anikrm/mitra

// Package rl maintains the feedback-driven Q-table that nudges
// composite scores by a bounded delta. Single-step temporal-difference
// updates, no discounting: each recommend/observe-feedback pair is an
// independent episode.
package rl

import (
	"fmt"
	"strings"
	"sync"

	"github.com/anikrm/mitra/internal/metrics"
)

// Learning parameters.
const (
	// alpha is the TD learning rate.
	alpha = 0.1

	// maxAdjustment bounds the total score nudge.
	maxAdjustment = 0.05

	// maxGenreBonus bounds the secondary per-genre component inside
	// the overall adjustment bound.
	maxGenreBonus = 0.02

	// qScale maps a Q value (roughly [-1, 2]) onto the adjustment
	// range: a consistently liked bucket (Q around 1) reaches the cap.
	qScale = 0.05

	// genreScale maps the average genre reward onto the genre bonus.
	genreScale = 0.02
)

// Interaction types accepted by Reward.
const (
	InteractionLike          = "like"
	InteractionDislike       = "dislike"
	InteractionPlay          = "play"
	InteractionSkip          = "skip"
	InteractionSave          = "save"
	InteractionAddToPlaylist = "add_to_playlist"
	InteractionRepeat        = "repeat"
	InteractionShare         = "share"
)

// baseRewards is the fixed interaction-to-reward lookup.
var baseRewards = map[string]float64{
	InteractionLike:          1.0,
	InteractionDislike:       -1.0,
	InteractionPlay:          0.8,
	InteractionSkip:          -0.4,
	InteractionSave:          1.5,
	InteractionAddToPlaylist: 1.8,
	InteractionRepeat:        1.2,
	InteractionShare:         1.3,
}

// Reward maps an interaction to its scalar reward. Play rewards are
// modified by how much of the item was consumed. Unknown interactions
// return (0, false).
func Reward(interaction string, completionRatio float64) (float64, bool) {
	base, ok := baseRewards[interaction]
	if !ok {
		return 0, false
	}
	if interaction == InteractionPlay {
		switch {
		case completionRatio > 0.9:
			base += 0.4
		case completionRatio < 0.2:
			base -= 0.3
		case completionRatio > 0.5:
			base += 0.2
		}
	}
	return base, true
}

// StateKey builds the composite Q-table key.
func StateKey(personalityBucket, featureBucket, genre string) string {
	if genre == "" {
		genre = "unknown"
	}
	return personalityBucket + "|" + featureBucket + "|" + strings.ToLower(genre)
}

// FeatureBucket discretizes the scoring-relevant audio features into a
// stable key: energy and valence in thirds, tempo in slow/med/fast.
func FeatureBucket(energy, valence, tempoBPM float64) string {
	return fmt.Sprintf("e%s_v%s_t%s", third(energy), third(valence), tempoBin(tempoBPM))
}

func third(v float64) string {
	switch {
	case v < 0.33:
		return "l"
	case v < 0.67:
		return "m"
	default:
		return "h"
	}
}

func tempoBin(bpm float64) string {
	switch {
	case bpm == 0:
		return "med" // missing tempo treated as moderate
	case bpm < 90:
		return "slow"
	case bpm < 140:
		return "med"
	default:
		return "fast"
	}
}

// genreStats is the running per-genre reward aggregate.
type genreStats struct {
	Sum   float64 `json:"sum"`
	Count int64   `json:"count"`
}

func (g genreStats) avg() float64 {
	if g.Count == 0 {
		return 0
	}
	return g.Sum / float64(g.Count)
}

// QTable is the in-memory state-value table plus per-genre running
// performance. Persistence is an explicit lifecycle (Load/Save in
// persistence.go), not a side effect of updates.
type QTable struct {
	mu     sync.RWMutex
	q      map[string]float64
	genres map[string]genreStats
}

// NewQTable creates an empty table.
func NewQTable() *QTable {
	return &QTable{
		q:      make(map[string]float64),
		genres: make(map[string]genreStats),
	}
}

// Adjustment returns the bounded score nudge for a state. Missing
// buckets are neutral. The primary component comes from the bucket's
// Q value; a secondary bounded bonus reflects how the genre performs
// for this user base overall.
func (t *QTable) Adjustment(personalityBucket, featureBucket, genre string) float64 {
	key := StateKey(personalityBucket, featureBucket, genre)

	t.mu.RLock()
	q, ok := t.q[key]
	g := t.genres[strings.ToLower(genre)]
	t.mu.RUnlock()

	adj := 0.0
	if ok {
		adj = clamp(q*qScale, -maxAdjustment, maxAdjustment)
	}
	adj += clamp(g.avg()*genreScale, -maxGenreBonus, maxGenreBonus)
	return clamp(adj, -maxAdjustment, maxAdjustment)
}

// Update applies one TD step for the state and folds the reward into
// the genre aggregate. Last-writer-wins under concurrency is
// acceptable: rewards are small incremental nudges.
func (t *QTable) Update(personalityBucket, featureBucket, genre string, reward float64) {
	key := StateKey(personalityBucket, featureBucket, genre)

	t.mu.Lock()
	q := t.q[key]
	t.q[key] = q + alpha*(reward-q)

	gk := strings.ToLower(genre)
	if gk == "" {
		gk = "unknown"
	}
	g := t.genres[gk]
	g.Sum += reward
	g.Count++
	t.genres[gk] = g

	size := len(t.q)
	t.mu.Unlock()

	metrics.QTableSize.Set(float64(size))
}

// Value returns the raw Q value for a state, 0 when absent. Mostly for
// tests and the stats surface.
func (t *QTable) Value(personalityBucket, featureBucket, genre string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.q[StateKey(personalityBucket, featureBucket, genre)]
}

// Len returns the number of state buckets.
func (t *QTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.q)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
