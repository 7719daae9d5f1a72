// Mitra - Personality-Aware Media Recommendation Engine
// Copyright 2026 Anik R. (anikrm)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/anikrm/mitra

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/anikrm/mitra/internal/store"
)

// QTableFlusher is the persistence surface of the Q-table.
type QTableFlusher interface {
	Save(ctx context.Context, s store.Store) error
	Len() int
}

// RLFlushService periodically snapshots the Q-table to the store so
// learned adjustments survive restarts. A final snapshot is written on
// shutdown.
type RLFlushService struct {
	qtable   QTableFlusher
	store    store.Store
	interval time.Duration
	log      zerolog.Logger
}

// NewRLFlushService creates the flusher. Interval defaults to 5m.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewRLFlushService(qtable QTableFlusher, s store.Store, interval time.Duration, logger zerolog.Logger) *RLFlushService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &RLFlushService{
		qtable:   qtable,
		store:    s,
		interval: interval,
		log:      logger.With().Str("service", "rl-flush").Logger(),
	}
}

// Serve implements suture.Service.
func (s *RLFlushService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.interval).Msg("q-table flush service running")

	for {
		select {
		case <-ctx.Done():
			// Last chance to persist what this process learned.
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := s.qtable.Save(flushCtx, s.store)
			cancel()
			if err != nil {
				s.log.Error().Err(err).Msg("final q-table flush failed")
			} else {
				s.log.Info().Int("states", s.qtable.Len()).Msg("final q-table flush complete")
			}
			return ctx.Err()

		case <-ticker.C:
			if err := s.qtable.Save(ctx, s.store); err != nil {
				s.log.Warn().Err(err).Msg("q-table flush failed")
				continue
			}
			s.log.Debug().Int("states", s.qtable.Len()).Msg("q-table flushed")
		}
	}
}

// String identifies the service in suture's event log.
func (s *RLFlushService) String() string {
	return "rl-flush"
}
