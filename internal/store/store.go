// Mitra - Personality-Aware Media Recommendation Engine
// Copyright 2026 Anik R. (anikrm)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/anikrm/mitra

// Package store provides the shared key-value layer backing the
// recommendation cache, rate-limiter state, and persisted Q-table.
//
// Production deployments run on BadgerDB; tests use the in-memory
// implementation with an injectable clock.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist or has expired.
var ErrNotFound = errors.New("store: key not found")

// Store is the key-value contract shared by all engine components.
// A zero TTL means the entry never expires.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set writes key with the given TTL, replacing any existing value.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX writes key only if it does not already exist. Returns true
	// when the write happened. Used for stampede locks.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every key with the given prefix and returns
	// the number of keys removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)

	// Increment atomically adds delta to the integer counter at key,
	// creating it with the given TTL when absent, and returns the new
	// value. The TTL is not refreshed on existing counters.
	Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)

	// Close releases underlying resources.
	Close() error
}
