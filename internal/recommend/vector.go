// Mitra - Personality-Aware Media Recommendation Engine
// Copyright 2026 Anik R. (anikrm)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/anikrm/mitra

package recommend

import "math"

// Tempo normalization bounds: 40 BPM maps to 0, 200 BPM to 1.
const (
	tempoMin     = 40.0
	tempoRange   = 160.0
	tempoDefault = 120.0
)

// NormalizeTempo maps raw BPM into [0,1]. Zero (missing) tempo falls
// back to a moderate 120 BPM.
func NormalizeTempo(bpm float64) float64 {
	if bpm == 0 {
		bpm = tempoDefault
	}
	return clamp01((bpm - tempoMin) / tempoRange)
}

// Normalized returns the vector as a fixed-order slice with tempo
// normalized, ready for cosine math.
func (f FeatureVector) Normalized() []float64 {
	return []float64{
		clamp01(f.Danceability),
		clamp01(f.Energy),
		clamp01(f.Valence),
		NormalizeTempo(f.Tempo),
		clamp01(f.Acousticness),
		clamp01(f.Instrumentalness),
		clamp01(f.Speechiness),
	}
}

// Dim returns the named feature in normalized space. Names match the
// personality target vector keys.
func (f FeatureVector) Dim(name string) (float64, bool) {
	switch name {
	case "danceability":
		return clamp01(f.Danceability), true
	case "energy":
		return clamp01(f.Energy), true
	case "valence":
		return clamp01(f.Valence), true
	case "tempo":
		return NormalizeTempo(f.Tempo), true
	case "acousticness":
		return clamp01(f.Acousticness), true
	case "instrumentalness":
		return clamp01(f.Instrumentalness), true
	case "speechiness":
		return clamp01(f.Speechiness), true
	default:
		return 0, false
	}
}

// Cosine returns the cosine similarity of two equal-length vectors,
// 0 when either has zero magnitude.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// Centroid returns the element-wise mean of the vectors, nil for an
// empty input.
func Centroid(vectors [][]float64) []float64 {
	if len(vectors) == 0 {
		return nil
	}
	out := make([]float64, len(vectors[0]))
	for _, v := range vectors {
		for i := range out {
			if i < len(v) {
				out[i] += v[i]
			}
		}
	}
	for i := range out {
		out[i] /= float64(len(vectors))
	}
	return out
}

func clamp01(v float64) float64 {
	return clamp(v, 0, 1)
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
