// Mitra - Personality-Aware Media Recommendation Engine
// Copyright 2026 Anik R. (anikrm)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/anikrm/mitra

package personality

import (
	"reflect"
	"testing"
)

func TestMapTraitsOutputInRange(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
	}{
		{"all zero", Profile{}},
		{"all one", Profile{1, 1, 1, 1, 1}},
		{"mixed", Profile{Openness: 0.9, Conscientiousness: 0.2, Extraversion: 0.7, Agreeableness: 0.4, Neuroticism: 0.6}},
		{"out of range clamped", Profile{Openness: 1.7, Conscientiousness: -0.3, Extraversion: 2, Agreeableness: 0.5, Neuroticism: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tv := MapTraits(tt.profile)
			for feat, v := range tv.Features {
				if v < 0 || v > 1 {
					t.Errorf("feature %s target %f out of [0,1]", feat, v)
				}
			}
			for g, w := range tv.GenreAffinity {
				if w < 0 {
					t.Errorf("genre %s affinity %f negative", g, w)
				}
			}
		})
	}
}

func TestMapTraitsDeterministic(t *testing.T) {
	p := Profile{Openness: 0.8, Conscientiousness: 0.3, Extraversion: 0.6, Agreeableness: 0.5, Neuroticism: 0.4}

	a := MapTraits(p)
	b := MapTraits(p)
	if !reflect.DeepEqual(a, b) {
		t.Error("MapTraits is not deterministic for identical profiles")
	}
}

func TestMapTraitsZeroProfileIsEmpty(t *testing.T) {
	tv := MapTraits(Profile{})

	if len(tv.Features) != 0 {
		t.Errorf("zero profile produced feature targets: %v", tv.Features)
	}
	if len(tv.GenreAffinity) != 0 {
		t.Errorf("zero profile produced affinities: %v", tv.GenreAffinity)
	}
}

func TestMapTraitsBlendsFeatureTargets(t *testing.T) {
	// Extraversion alone pins energy at its 0.75 target.
	onlyExtra := MapTraits(Profile{Extraversion: 1})
	if got := onlyExtra.Features["energy"]; got != 0.75 {
		t.Errorf("extraversion-only energy target = %f, want 0.75", got)
	}

	// Adding conscientiousness (target 0.4) pulls the blend down.
	both := MapTraits(Profile{Extraversion: 1, Conscientiousness: 1})
	if got := both.Features["energy"]; got >= 0.75 || got <= 0.4 {
		t.Errorf("blended energy target = %f, want strictly between 0.4 and 0.75", got)
	}
}

func TestMapTraitsGenreAccumulation(t *testing.T) {
	// Pop is liked by extraversion and neuroticism but disliked by
	// openness; high openness must register an aversion too.
	tv := MapTraits(Profile{Openness: 1, Extraversion: 1, Neuroticism: 1})

	wantAffinity := 1*0.25 + 1*0.20 // extraversion + neuroticism
	if got := tv.GenreAffinity["pop"]; !almostEqual(got, wantAffinity) {
		t.Errorf("pop affinity = %f, want %f", got, wantAffinity)
	}
	if got := tv.GenreAversion["pop"]; !almostEqual(got, 0.25) {
		t.Errorf("pop aversion = %f, want 0.25", got)
	}
}

func TestTopGenres(t *testing.T) {
	tv := TargetVector{GenreAffinity: map[string]float64{
		"jazz":      0.40,
		"classical": 0.25,
		"soul":      0.40,
		"folk":      0.10,
	}}

	got := tv.TopGenres(3)
	// jazz and soul tie at 0.40; lexical order breaks the tie.
	want := []string{"jazz", "soul", "classical"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("TopGenres(3) = %v, want %v", got, want)
	}
}

func TestBucket(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
		want    string
	}{
		{"all low", Profile{0.1, 0.2, 0.0, 0.32, 0.1}, "ol_cl_el_al_nl"},
		{"all high", Profile{0.9, 0.7, 1.0, 0.67, 0.99}, "oh_ch_eh_ah_nh"},
		{"mixed", Profile{0.5, 0.1, 0.8, 0.4, 0.66}, "om_cl_eh_am_nm"},
		{"clamped", Profile{Openness: 3, Conscientiousness: -1}, "oh_cl_el_al_nl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.profile.Bucket(); got != tt.want {
				t.Errorf("Bucket() = %q, want %q", got, tt.want)
			}
		})
	}
}

func almostEqual(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}
