// Mitra - Personality-Aware Media Recommendation Engine
// Copyright 2026 Anik R. (anikrm)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/anikrm/mitra

package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/anikrm/mitra/internal/personality"
	"github.com/anikrm/mitra/internal/recommend"
	"github.com/anikrm/mitra/internal/store"
)

// Key namespaces for user data in the shared store. Separate from the
// cache categories so invalidation sweeps never touch them.
const (
	profileKeyPrefix = "profile:"
	historyKeyPrefix = "history:"
)

// historyLimit bounds the stored listening history per user.
const historyLimit = 50

// StoreSources implements the profile and history sources on the shared
// key-value store. Entries are written through the ingestion endpoints
// and read on every recommendation request.
type StoreSources struct {
	store store.Store
}

var (
	_ recommend.ProfileSource = (*StoreSources)(nil)
	_ recommend.HistorySource = (*StoreSources)(nil)
)

// NewStoreSources creates store-backed sources.
func NewStoreSources(s store.Store) *StoreSources {
	return &StoreSources{store: s}
}

// profileRecord is the stored profile blob. CreatedAt anchors the
// account age used for cold-start staging.
type profileRecord struct {
	Profile   personality.Profile `json:"profile"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// Profile returns the stored personality profile. A user without one
// gets the neutral zero profile, not an error.
func (s *StoreSources) Profile(ctx context.Context, userID string) (personality.Profile, error) {
	rec, err := s.profileRecord(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return personality.Profile{}, nil
		}
		return personality.Profile{}, err
	}
	return rec.Profile, nil
}

// AccountAgeDays returns whole days since the profile was first stored.
// Unknown users are treated as brand new.
func (s *StoreSources) AccountAgeDays(ctx context.Context, userID string) (int, error) {
	rec, err := s.profileRecord(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if rec.CreatedAt.IsZero() {
		return 0, nil
	}
	days := int(time.Since(rec.CreatedAt).Hours() / 24)
	if days < 0 {
		return 0, nil
	}
	return days, nil
}

// TopTracks returns the user's stored listening history, most recent
// refresh wins. No history is an empty result, not an error.
func (s *StoreSources) TopTracks(ctx context.Context, userID string) ([]recommend.HistoryEntry, error) {
	raw, err := s.store.Get(ctx, historyKeyPrefix+userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load history: %w", err)
	}
	var entries []recommend.HistoryEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return entries, nil
}

// SaveProfile stores the user's personality profile. The first write
// stamps CreatedAt; later writes keep it so the account age survives
// profile updates.
func (s *StoreSources) SaveProfile(ctx context.Context, userID string, p personality.Profile) error {
	now := time.Now().UTC()
	rec := profileRecord{Profile: p.Clamped(), CreatedAt: now, UpdatedAt: now}

	if existing, err := s.profileRecord(ctx, userID); err == nil && !existing.CreatedAt.IsZero() {
		rec.CreatedAt = existing.CreatedAt
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if err := s.store.Set(ctx, profileKeyPrefix+userID, raw, 0); err != nil {
		return fmt.Errorf("store profile: %w", err)
	}
	return nil
}

// SaveHistory replaces the user's listening history, keeping at most
// the first historyLimit entries.
func (s *StoreSources) SaveHistory(ctx context.Context, userID string, entries []recommend.HistoryEntry) error {
	if len(entries) > historyLimit {
		entries = entries[:historyLimit]
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := s.store.Set(ctx, historyKeyPrefix+userID, raw, 0); err != nil {
		return fmt.Errorf("store history: %w", err)
	}
	return nil
}

func (s *StoreSources) profileRecord(ctx context.Context, userID string) (profileRecord, error) {
	raw, err := s.store.Get(ctx, profileKeyPrefix+userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return profileRecord{}, store.ErrNotFound
		}
		return profileRecord{}, fmt.Errorf("load profile: %w", err)
	}
	var rec profileRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return profileRecord{}, fmt.Errorf("decode profile: %w", err)
	}
	return rec, nil
}
