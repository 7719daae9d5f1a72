// Mitra - Personality-Aware Media Recommendation Engine
// Copyright 2026 Anik R. (anikrm)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/anikrm/mitra

package recommend

import (
	"errors"
	"fmt"

	"github.com/anikrm/mitra/internal/cache"
	"github.com/anikrm/mitra/internal/rl"
)

// Error taxonomy for the request cycle. Every failure inside the
// engine is converted to one of these at the component boundary so
// callers and tests can assert on failure kinds with errors.Is. The
// store-failure kinds are the producing packages' sentinels, re-exported
// so callers match on one taxonomy.
var (
	// ErrRateLimited: the user exceeded the per-minute window and no
	// cached fallback existed.
	ErrRateLimited = errors.New("recommend: rate limited")

	// ErrCacheUnavailable: the shared store failed on the cache path.
	// Requests compute fresh and skip the write-back.
	ErrCacheUnavailable = cache.ErrUnavailable

	// ErrCandidateSource: a sub-source failed after its retry. Non-fatal
	// per request; recorded on the dropped sub-source only.
	ErrCandidateSource = errors.New("recommend: candidate source failure")

	// ErrNoCandidates: every sub-source failed or returned empty and no
	// cached fallback existed.
	ErrNoCandidates = errors.New("recommend: no candidates available")

	// ErrRLStoreUnavailable: the Q-table store failed on load or flush.
	// All adjustments read as 0; recommendations proceed.
	ErrRLStoreUnavailable = rl.ErrStoreUnavailable
)

// RateLimitedError carries the retry hint alongside ErrRateLimited.
type RateLimitedError struct {
	RetryAfterSeconds int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("recommend: rate limited, retry after %ds", e.RetryAfterSeconds)
}

// Is makes errors.Is(err, ErrRateLimited) match.
func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// SourceError identifies which sub-source failed.
type SourceError struct {
	Source SourceTag
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("recommend: source %s: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrCandidateSource) match.
func (e *SourceError) Is(target error) bool {
	return target == ErrCandidateSource
}
