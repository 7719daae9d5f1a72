// Mitra - Personality-Aware Media Recommendation Engine
// Copyright 2026 Anik R. (anikrm)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/anikrm/mitra

package recommend

// Stage is the cold-start stage derived from account age.
type Stage string

const (
	StageWeek1      Stage = "week_1"       // < 7 days
	StageWeek2To4   Stage = "week_2_4"     // 7-27 days
	StageMonth2Plus Stage = "month_2_plus" // >= 28 days
)

// StageWeights parametrizes the candidate sub-source mix per stage.
// Weights sum to 1. PopularWeight doubles as the "other signals" share
// for mature accounts.
type StageWeights struct {
	PersonalityWeight float64 `json:"personality_weight"`
	HistoryWeight     float64 `json:"history_weight"`
	PopularWeight     float64 `json:"popular_weight"`
}

// StageFor maps account age in days to a cold-start stage. Negative
// ages (clock skew upstream) are treated as day zero.
func StageFor(accountAgeDays int) Stage {
	switch {
	case accountAgeDays < 7:
		return StageWeek1
	case accountAgeDays < 28:
		return StageWeek2To4
	default:
		return StageMonth2Plus
	}
}

// WeightsFor returns the sub-source mix for an account age. Pure
// function: week 1 leans almost entirely on personality, history takes
// over as listening data accumulates.
func WeightsFor(accountAgeDays int) StageWeights {
	switch StageFor(accountAgeDays) {
	case StageWeek1:
		return StageWeights{PersonalityWeight: 0.8, HistoryWeight: 0.0, PopularWeight: 0.2}
	case StageWeek2To4:
		return StageWeights{PersonalityWeight: 0.6, HistoryWeight: 0.4, PopularWeight: 0.0}
	default:
		return StageWeights{PersonalityWeight: 0.4, HistoryWeight: 0.4, PopularWeight: 0.2}
	}
}
