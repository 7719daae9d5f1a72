// Mitra - Personality-Aware Media Recommendation Engine
// Copyright 2026 Anik R. (anikrm)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/anikrm/mitra

package services

import (
	"context"
	"errors"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

// GCRunner is the value-log garbage collection surface of the store.
type GCRunner interface {
	RunGC(discardRatio float64) error
}

// StoreGCService runs value-log garbage collection on the embedded
// store at a fixed interval. Badger only reclaims vlog space when GC is
// driven externally; without this service expired cache entries keep
// their disk space.
type StoreGCService struct {
	store        GCRunner
	interval     time.Duration
	discardRatio float64
	log          zerolog.Logger
}

// NewStoreGCService creates the GC driver. Interval defaults to 10m,
// discard ratio to 0.5.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewStoreGCService(s GCRunner, interval time.Duration, discardRatio float64, logger zerolog.Logger) *StoreGCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if discardRatio <= 0 || discardRatio > 1 {
		discardRatio = 0.5
	}
	return &StoreGCService{
		store:        s,
		interval:     interval,
		discardRatio: discardRatio,
		log:          logger.With().Str("service", "store-gc").Logger(),
	}
}

// Serve implements suture.Service.
func (s *StoreGCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.interval).Msg("store gc service running")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			s.runOnce()
		}
	}
}

// runOnce drives GC until a pass reclaims nothing. Each successful
// RunGC call rewrites at most one vlog file.
func (s *StoreGCService) runOnce() {
	for {
		err := s.store.RunGC(s.discardRatio)
		if err == nil {
			s.log.Debug().Msg("value log file reclaimed")
			continue
		}
		if errors.Is(err, badger.ErrNoRewrite) {
			return
		}
		s.log.Warn().Err(err).Msg("store gc pass failed")
		return
	}
}

// String identifies the service in suture's event log.
func (s *StoreGCService) String() string {
	return "store-gc"
}
