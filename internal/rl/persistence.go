// Mitra - Personality-Aware Media Recommendation Engine
// Copyright 2026 Anik R. (anikrm)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/anikrm/mitra

package rl

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/anikrm/mitra/internal/store"
)

// BlobKey is the single store key holding the serialized table.
const BlobKey = "rl:qtable:v1"

// ErrStoreUnavailable marks a store failure during Load or Save, as
// opposed to a missing or corrupt blob.
var ErrStoreUnavailable = errors.New("rl: store unavailable")

// snapshot is the persisted wire form: flat bucket map plus genre
// aggregates. No schema beyond key to value.
type snapshot struct {
	Q      map[string]float64    `json:"q"`
	Genres map[string]genreStats `json:"genres,omitempty"`
}

// Load replaces the table contents from the store blob. A missing blob
// leaves the table empty; that is the first-boot path, not an error.
func (t *QTable) Load(ctx context.Context, s store.Store) error {
	data, err := s.Get(ctx, BlobKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load qtable: %w: %w", ErrStoreUnavailable, err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode qtable blob: %w", err)
	}
	if snap.Q == nil {
		snap.Q = make(map[string]float64)
	}
	if snap.Genres == nil {
		snap.Genres = make(map[string]genreStats)
	}

	t.mu.Lock()
	t.q = snap.Q
	t.genres = snap.Genres
	t.mu.Unlock()
	return nil
}

// Save writes the current table to the store blob. Called periodically
// by the flush service and once on shutdown.
func (t *QTable) Save(ctx context.Context, s store.Store) error {
	t.mu.RLock()
	snap := snapshot{
		Q:      make(map[string]float64, len(t.q)),
		Genres: make(map[string]genreStats, len(t.genres)),
	}
	for k, v := range t.q {
		snap.Q[k] = v
	}
	for k, v := range t.genres {
		snap.Genres[k] = v
	}
	t.mu.RUnlock()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode qtable blob: %w", err)
	}
	if err := s.Set(ctx, BlobKey, data, 0); err != nil {
		return fmt.Errorf("save qtable: %w: %w", ErrStoreUnavailable, err)
	}
	return nil
}
