// Mitra - Personality-Aware Media Recommendation Engine
// Copyright 2026 Anik R. (anikrm)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/anikrm/mitra

// Package personality maps Big Five trait profiles onto audio-feature
// targets and genre affinities. Everything here is pure: no I/O, no
// clock, fully deterministic for a given profile.
package personality

import (
	"fmt"
	"sort"
)

// Trait names.
const (
	Openness          = "openness"
	Conscientiousness = "conscientiousness"
	Extraversion      = "extraversion"
	Agreeableness     = "agreeableness"
	Neuroticism       = "neuroticism"
)

// Profile holds Big Five trait scores in [0,1]. Out-of-range inputs are
// tolerated and clamped during mapping.
type Profile struct {
	Openness          float64 `json:"openness" validate:"gte=0,lte=1"`
	Conscientiousness float64 `json:"conscientiousness" validate:"gte=0,lte=1"`
	Extraversion      float64 `json:"extraversion" validate:"gte=0,lte=1"`
	Agreeableness     float64 `json:"agreeableness" validate:"gte=0,lte=1"`
	Neuroticism       float64 `json:"neuroticism" validate:"gte=0,lte=1"`
}

// Clamped returns a copy with every trait forced into [0,1].
func (p Profile) Clamped() Profile {
	return Profile{
		Openness:          clamp01(p.Openness),
		Conscientiousness: clamp01(p.Conscientiousness),
		Extraversion:      clamp01(p.Extraversion),
		Agreeableness:     clamp01(p.Agreeableness),
		Neuroticism:       clamp01(p.Neuroticism),
	}
}

// Trait returns the named trait score.
func (p Profile) Trait(name string) float64 {
	switch name {
	case Openness:
		return p.Openness
	case Conscientiousness:
		return p.Conscientiousness
	case Extraversion:
		return p.Extraversion
	case Agreeableness:
		return p.Agreeableness
	case Neuroticism:
		return p.Neuroticism
	default:
		return 0
	}
}

// Bucket discretizes the profile into a stable string key for Q-table
// state lookup: one low/med/high letter per trait in fixed order.
func (p Profile) Bucket() string {
	c := p.Clamped()
	return fmt.Sprintf("o%s_c%s_e%s_a%s_n%s",
		bin(c.Openness), bin(c.Conscientiousness), bin(c.Extraversion),
		bin(c.Agreeableness), bin(c.Neuroticism))
}

func bin(v float64) string {
	switch {
	case v < 0.33:
		return "l"
	case v < 0.67:
		return "m"
	default:
		return "h"
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// TargetVector is the personality-derived listening target: preferred
// audio-feature values plus weighted genre affinities and aversions.
type TargetVector struct {
	// Features maps audio feature name to its target value in [0,1].
	// Tempo is normalized ((bpm-40)/160) like candidate features.
	Features map[string]float64 `json:"features"`

	// GenreAffinity accumulates trait-weighted positive genre weights.
	GenreAffinity map[string]float64 `json:"genre_affinity"`

	// GenreAversion accumulates trait-weighted negative genre weights.
	GenreAversion map[string]float64 `json:"genre_aversion"`
}

// traitMapping is one trait's contribution to the target vector.
type traitMapping struct {
	trait    string
	weight   float64
	features map[string]float64
	likes    []string
	dislikes []string
}

// traitMappings encodes the trait-to-audio model. Feature targets are
// in normalized space; conscientiousness prefers a moderate ~100 BPM
// tempo, hence 0.375.
var traitMappings = []traitMapping{
	{
		trait:  Openness,
		weight: 0.25,
		features: map[string]float64{
			"valence":      0.5,
			"acousticness": 0.6,
		},
		likes:    []string{"classical", "folk", "world", "jazz", "experimental"},
		dislikes: []string{"pop"},
	},
	{
		trait:  Conscientiousness,
		weight: 0.15,
		features: map[string]float64{
			"energy": 0.4,
			"tempo":  0.375,
		},
		dislikes: []string{"rock", "metal", "punk"},
	},
	{
		trait:  Extraversion,
		weight: 0.25,
		features: map[string]float64{
			"energy":       0.75,
			"danceability": 0.7,
			"valence":      0.8,
		},
		likes: []string{"pop", "dance", "hip-hop", "electronic"},
	},
	{
		trait:  Agreeableness,
		weight: 0.15,
		likes:  []string{"jazz", "country", "soul", "r&b"},
		dislikes: []string{
			"death-metal", "hardcore",
		},
	},
	{
		trait:  Neuroticism,
		weight: 0.20,
		features: map[string]float64{
			"valence": 0.7,
		},
		likes:    []string{"soul", "pop", "indie"},
		dislikes: []string{"metal", "hard-rock"},
	},
}

// MapTraits derives the target vector for a profile. Feature targets
// are the trait-weighted blend of every trait naming that feature;
// genre weights accumulate traitScore x traitWeight per mention.
func MapTraits(p Profile) TargetVector {
	p = p.Clamped()

	featSum := make(map[string]float64)
	featWeight := make(map[string]float64)
	affinity := make(map[string]float64)
	aversion := make(map[string]float64)

	for _, m := range traitMappings {
		contribution := p.Trait(m.trait) * m.weight
		if contribution == 0 {
			continue
		}
		for feat, target := range m.features {
			featSum[feat] += contribution * target
			featWeight[feat] += contribution
		}
		for _, g := range m.likes {
			affinity[g] += contribution
		}
		for _, g := range m.dislikes {
			aversion[g] += contribution
		}
	}

	features := make(map[string]float64, len(featSum))
	for feat, sum := range featSum {
		features[feat] = sum / featWeight[feat]
	}

	return TargetVector{
		Features:      features,
		GenreAffinity: affinity,
		GenreAversion: aversion,
	}
}

// TopGenres returns up to n genres by descending affinity, ties broken
// lexically for stable output.
func (t TargetVector) TopGenres(n int) []string {
	genres := make([]string, 0, len(t.GenreAffinity))
	for g := range t.GenreAffinity {
		genres = append(genres, g)
	}
	sort.Slice(genres, func(i, j int) bool {
		ai, aj := t.GenreAffinity[genres[i]], t.GenreAffinity[genres[j]]
		if ai != aj {
			return ai > aj
		}
		return genres[i] < genres[j]
	})
	if len(genres) > n {
		genres = genres[:n]
	}
	return genres
}
