// Mitra - Personality-Aware Media Recommendation Engine
// Copyright 2026 Anik R. (anikrm)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/anikrm/mitra

package recommend

import "testing"

func TestStageFor(t *testing.T) {
	tests := []struct {
		name string
		days int
		want Stage
	}{
		{"day zero", 0, StageWeek1},
		{"day six", 6, StageWeek1},
		{"day seven", 7, StageWeek2To4},
		{"day twenty", 20, StageWeek2To4},
		{"day twenty-seven", 27, StageWeek2To4},
		{"day twenty-eight", 28, StageMonth2Plus},
		{"ninety days", 90, StageMonth2Plus},
		{"negative clock skew", -3, StageWeek1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StageFor(tt.days); got != tt.want {
				t.Errorf("StageFor(%d) = %q, want %q", tt.days, got, tt.want)
			}
		})
	}
}

func TestWeightsFor(t *testing.T) {
	tests := []struct {
		name string
		days int
		want StageWeights
	}{
		{"3 days", 3, StageWeights{PersonalityWeight: 0.8, HistoryWeight: 0.0, PopularWeight: 0.2}},
		{"20 days", 20, StageWeights{PersonalityWeight: 0.6, HistoryWeight: 0.4, PopularWeight: 0.0}},
		{"90 days", 90, StageWeights{PersonalityWeight: 0.4, HistoryWeight: 0.4, PopularWeight: 0.2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WeightsFor(tt.days); got != tt.want {
				t.Errorf("WeightsFor(%d) = %+v, want %+v", tt.days, got, tt.want)
			}
		})
	}
}

func TestWeightsSumToOne(t *testing.T) {
	for _, days := range []int{0, 10, 100} {
		w := WeightsFor(days)
		sum := w.PersonalityWeight + w.HistoryWeight + w.PopularWeight
		if sum < 0.999 || sum > 1.001 {
			t.Errorf("weights for %d days sum to %f, want 1", days, sum)
		}
	}
}
