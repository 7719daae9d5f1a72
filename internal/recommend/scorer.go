// Mitra - Personality-Aware Media Recommendation Engine
// Copyright 2026 Anik R. (anikrm)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/anikrm/mitra

package recommend

import (
	"runtime"
	"strings"
	"sync"

	"github.com/anikrm/mitra/internal/personality"
)

// Genre scoring factors: a matching affinity genre adds half its
// weight, an aversion genre subtracts 30% of its weight.
const (
	genreBonusFactor   = 0.5
	genrePenaltyFactor = 0.3
)

// Novelty levels.
const (
	noveltyKnownItem    = 0.2
	noveltyKnownArtist  = 0.6
	noveltyNewArtist    = 0.9
	noveltyEmptyHistory = 0.8

	// popularityPenalty scales down novelty for globally ubiquitous
	// items: popularity 100 costs 30% of the novelty score.
	popularityPenalty = 0.3
)

// RL adjustment bound.
const maxRLAdjustment = 0.05

// ScoreWeights are the composite component weights. Tunable via
// config; defaults match the production values.
type ScoreWeights struct {
	History     float64 `koanf:"history" validate:"gte=0,lte=1"`
	Personality float64 `koanf:"personality" validate:"gte=0,lte=1"`
	Diversity   float64 `koanf:"diversity" validate:"gte=0,lte=1"`
	Novelty     float64 `koanf:"novelty" validate:"gte=0,lte=1"`
}

// DefaultScoreWeights returns the production composite weights.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{History: 0.4, Personality: 0.4, Diversity: 0.1, Novelty: 0.1}
}

// AdjustFunc supplies the bounded RL adjustment for a candidate. A nil
// AdjustFunc means no adjustment (RL store down or disabled).
type AdjustFunc func(Candidate) float64

// Scorer computes component and composite scores. Stateless apart from
// its weights; safe for concurrent use.
type Scorer struct {
	weights ScoreWeights
}

// NewScorer creates a scorer. Zero-valued weights fall back to the
// defaults.
func NewScorer(weights ScoreWeights) *Scorer {
	if weights.History == 0 && weights.Personality == 0 && weights.Diversity == 0 && weights.Novelty == 0 {
		weights = DefaultScoreWeights()
	}
	return &Scorer{weights: weights}
}

// historyIndex precomputes history lookups shared across candidates.
type historyIndex struct {
	empty    bool
	centroid []float64
	items    map[string]struct{}
	artists  map[string]struct{}
}

func buildHistoryIndex(history []HistoryEntry) historyIndex {
	idx := historyIndex{
		empty:   len(history) == 0,
		items:   make(map[string]struct{}, len(history)),
		artists: make(map[string]struct{}, len(history)),
	}
	vectors := make([][]float64, 0, len(history))
	for _, h := range history {
		idx.items[h.ID] = struct{}{}
		if h.Artist != "" {
			idx.artists[strings.ToLower(h.Artist)] = struct{}{}
		}
		vectors = append(vectors, h.Features.Normalized())
	}
	idx.centroid = Centroid(vectors)
	return idx
}

// ScoreAll computes the selection-independent components (history
// similarity, personality match, novelty, RL adjustment) for every
// candidate, chunked across workers. DiversityBonus and Composite are
// finalized during SelectTopN. Output order matches input order.
func (s *Scorer) ScoreAll(candidates []Candidate, target personality.TargetVector, history []HistoryEntry, adjust AdjustFunc) []ScoredCandidate {
	idx := buildHistoryIndex(history)
	out := make([]ScoredCandidate, len(candidates))

	workers := runtime.GOMAXPROCS(0)
	if workers > 4 {
		workers = 4
	}
	if workers < 1 || len(candidates) < 32 {
		workers = 1
	}

	chunk := (len(candidates) + workers - 1) / workers
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * chunk
		if lo >= len(candidates) {
			break
		}
		hi := lo + chunk
		if hi > len(candidates) {
			hi = len(candidates)
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				out[i] = s.scoreOne(candidates[i], target, idx, adjust)
			}
		}(lo, hi)
	}
	wg.Wait()
	return out
}

func (s *Scorer) scoreOne(c Candidate, target personality.TargetVector, idx historyIndex, adjust AdjustFunc) ScoredCandidate {
	scores := ComponentScores{
		HistorySimilarity: historySimilarity(c, idx),
		PersonalityMatch:  personalityMatch(c, target),
		NoveltyFactor:     noveltyFactor(c, idx),
	}
	if adjust != nil {
		scores.RLAdjustment = clamp(adjust(c), -maxRLAdjustment, maxRLAdjustment)
	}
	return ScoredCandidate{Candidate: c, Scores: scores}
}

// historySimilarity is the cosine similarity between the candidate and
// the history centroid, 0 with empty history.
func historySimilarity(c Candidate, idx historyIndex) float64 {
	if idx.empty || idx.centroid == nil {
		return 0
	}
	return clamp01(Cosine(c.Features.Normalized(), idx.centroid))
}

// personalityMatch scores feature closeness to the trait-derived
// targets, adjusted by genre affinities and aversions.
func personalityMatch(c Candidate, target personality.TargetVector) float64 {
	base := 0.5 // neutral when the profile produced no targets
	if len(target.Features) > 0 {
		sum := 0.0
		for feat, want := range target.Features {
			got, ok := c.Features.Dim(feat)
			if !ok {
				continue
			}
			diff := want - got
			if diff < 0 {
				diff = -diff
			}
			sum += 1 - diff
		}
		base = sum / float64(len(target.Features))
	}

	adjustment := 0.0
	for _, g := range c.Genres {
		g = strings.ToLower(g)
		if w, ok := target.GenreAffinity[g]; ok {
			adjustment += w * genreBonusFactor
		}
		if w, ok := target.GenreAversion[g]; ok {
			adjustment -= w * genrePenaltyFactor
		}
	}

	return clamp01(base + adjustment)
}

// noveltyFactor rewards unheard artists and items, with a penalty for
// globally ubiquitous content.
func noveltyFactor(c Candidate, idx historyIndex) float64 {
	var novelty float64
	switch {
	case idx.empty:
		novelty = noveltyEmptyHistory
	default:
		if _, seen := idx.items[c.ID]; seen {
			novelty = noveltyKnownItem
		} else if _, known := idx.artists[strings.ToLower(c.Artist)]; known {
			novelty = noveltyKnownArtist
		} else {
			novelty = noveltyNewArtist
		}
	}

	pop := clamp(float64(c.Popularity)/100, 0, 1)
	return clamp01(novelty * (1 - pop*popularityPenalty))
}

// SelectTopN greedily picks n candidates, recomputing the diversity
// bonus against the already-selected set at each step and finalizing
// the composite. Ties break on higher novelty, then lexical item ID,
// so results are deterministic.
func (s *Scorer) SelectTopN(scored []ScoredCandidate, n int) []ScoredCandidate {
	if n <= 0 || len(scored) == 0 {
		return nil
	}
	if n > len(scored) {
		n = len(scored)
	}

	vectors := make([][]float64, len(scored))
	for i := range scored {
		vectors[i] = scored[i].Features.Normalized()
	}

	selected := make([]ScoredCandidate, 0, n)
	selectedVecs := make([][]float64, 0, n)
	used := make([]bool, len(scored))

	for len(selected) < n {
		bestIdx := -1
		var best ScoredCandidate

		for i := range scored {
			if used[i] {
				continue
			}

			maxSim := 0.0
			for _, sv := range selectedVecs {
				if sim := Cosine(vectors[i], sv); sim > maxSim {
					maxSim = sim
				}
			}

			cand := scored[i]
			cand.Scores.DiversityBonus = clamp01(1 - maxSim)
			cand.Scores.Composite = s.composite(cand.Scores)

			if bestIdx < 0 || betterThan(cand, best) {
				bestIdx = i
				best = cand
			}
		}

		if bestIdx < 0 {
			break
		}
		used[bestIdx] = true
		selected = append(selected, best)
		selectedVecs = append(selectedVecs, vectors[bestIdx])
	}

	return selected
}

func (s *Scorer) composite(cs ComponentScores) float64 {
	base := s.weights.History*cs.HistorySimilarity +
		s.weights.Personality*cs.PersonalityMatch +
		s.weights.Diversity*cs.DiversityBonus +
		s.weights.Novelty*cs.NoveltyFactor
	return clamp01(base + cs.RLAdjustment)
}

// betterThan orders candidates by composite desc, novelty desc, then
// item ID asc.
func betterThan(a, b ScoredCandidate) bool {
	if a.Scores.Composite != b.Scores.Composite {
		return a.Scores.Composite > b.Scores.Composite
	}
	if a.Scores.NoveltyFactor != b.Scores.NoveltyFactor {
		return a.Scores.NoveltyFactor > b.Scores.NoveltyFactor
	}
	return a.ID < b.ID
}
