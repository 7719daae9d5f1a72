// Mitra - Personality-Aware Media Recommendation Engine
// Copyright 2026 Anik R. (anikrm)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/anikrm/mitra

package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/anikrm/mitra/internal/recommend"
)

// RecommendationRequest is the optional POST body for the
// recommendations endpoint.
type RecommendationRequest struct {
	// TopN is the requested list length. Zero means the default.
	TopN int `json:"top_n" validate:"gte=0,lte=50"`

	// ForceRefresh bypasses the cached result.
	ForceRefresh bool `json:"force_refresh"`
}

// FeedbackRequest is the POST body for the feedback endpoint.
type FeedbackRequest struct {
	UserID          string  `json:"user_id" validate:"required,max=128"`
	ItemID          string  `json:"item_id" validate:"required,max=256"`
	Interaction     string  `json:"interaction" validate:"required"`
	CompletionRatio float64 `json:"completion_ratio" validate:"gte=0,lte=1"`
	Genre           string  `json:"genre" validate:"max=64"`

	Features FeedbackFeatures `json:"features"`
}

// FeedbackFeatures are the audio features of the item the feedback is
// about, used to bucket the reward.
type FeedbackFeatures struct {
	Energy  float64 `json:"energy" validate:"gte=0,lte=1"`
	Valence float64 `json:"valence" validate:"gte=0,lte=1"`
	Tempo   float64 `json:"tempo" validate:"gte=0,lte=400"`
}

// ProfileRequest is the PUT body for the profile endpoint. Trait
// scores outside [0,1] are accepted and clamped downstream.
type ProfileRequest struct {
	Openness          float64 `json:"openness"`
	Conscientiousness float64 `json:"conscientiousness"`
	Extraversion      float64 `json:"extraversion"`
	Agreeableness     float64 `json:"agreeableness"`
	Neuroticism       float64 `json:"neuroticism"`
}

// HistoryRequest is the PUT body for the history endpoint.
type HistoryRequest struct {
	Tracks []recommend.HistoryEntry `json:"tracks" validate:"required,max=200"`
}

// decodeBody reads and validates a JSON request body into dest. An
// empty body is allowed when allowEmpty; unknown fields are rejected.
func decodeBody(r *http.Request, v *validator.Validate, dest interface{}, allowEmpty bool) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(body) == 0 {
		if allowEmpty {
			return nil
		}
		return errors.New("request body is required")
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if err := v.Struct(dest); err != nil {
		return err
	}
	return nil
}

// validationDetails flattens validator errors into field/rule pairs for
// the error envelope.
func validationDetails(err error) interface{} {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make([]map[string]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, map[string]string{
			"field": fe.Field(),
			"rule":  fe.Tag(),
		})
	}
	return out
}
