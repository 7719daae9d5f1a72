// Mitra - Personality-Aware Media Recommendation Engine
// Copyright 2026 Anik R. (anikrm)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/anikrm/mitra

// Command server runs the Mitra recommendation service: the HTTP API,
// the Q-table flush loop, and the store garbage collector under one
// supervisor tree.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anikrm/mitra/internal/api"
	"github.com/anikrm/mitra/internal/cache"
	"github.com/anikrm/mitra/internal/config"
	"github.com/anikrm/mitra/internal/logging"
	"github.com/anikrm/mitra/internal/provider"
	"github.com/anikrm/mitra/internal/ratelimit"
	"github.com/anikrm/mitra/internal/recommend"
	"github.com/anikrm/mitra/internal/rl"
	"github.com/anikrm/mitra/internal/store"
	"github.com/anikrm/mitra/internal/supervisor"
	"github.com/anikrm/mitra/internal/supervisor/services"
)

const version = "0.3.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", version).
		Str("log_level", cfg.Logging.Level).
		Msg("Starting Mitra recommendation engine")

	// Shared KV store backing the cache, limiter state, user data, and
	// the persisted Q-table.
	kv, err := store.OpenBadger(cfg.Store.Path)
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.Store.Path).Msg("Failed to open store")
	}
	defer func() {
		if err := kv.Close(); err != nil {
			logging.Error().Err(err).Msg("Store close failed")
		}
	}()

	recCache := cache.New(kv, cfg.Cache)
	limiter := ratelimit.NewLimiter(kv, cfg.RateLimit)
	budget := ratelimit.NewProviderBudget(cfg.Provider)

	// The Q-table loads its last snapshot at startup. A load failure is
	// survivable: the engine runs without RL adjustments until feedback
	// rebuilds the table.
	qtable := rl.NewQTable()
	loadCtx, cancelLoad := context.WithTimeout(context.Background(), 10*time.Second)
	if err := qtable.Load(loadCtx, kv); err != nil {
		logging.Warn().Err(err).Msg("Q-table load failed, starting with empty table")
	} else {
		logging.Info().Int("states", qtable.Len()).Msg("Q-table loaded")
	}
	cancelLoad()

	catalog := provider.NewClient(cfg.Catalog)
	sources := provider.NewStoreSources(kv)

	generator := recommend.NewGenerator(catalog, budget, cfg.Generator)
	engine := recommend.NewEngine(recommend.Deps{
		Generator: generator,
		Cache:     recCache,
		Limiter:   limiter,
		QTable:    qtable,
		History:   sources,
		Profiles:  sources,
	}, cfg.Engine)

	handler := api.NewHandler(engine, limiter, budget, recCache, qtable, sources, kv)
	router := api.NewRouter(handler, api.RouterConfig{IPRateLimit: cfg.Server.IPRateLimit})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
	}

	treeCfg := supervisor.DefaultTreeConfig()
	tree := supervisor.NewTree(slog.New(logging.NewSlogHandler()), treeCfg)

	svcLog := logging.Logger()
	tree.AddDataService(services.NewRLFlushService(qtable, kv, cfg.RL.FlushInterval, svcLog))
	tree.AddDataService(services.NewStoreGCService(kv, cfg.Store.GCInterval, cfg.Store.GCDiscardRatio, svcLog))
	tree.AddAPIService(services.NewHTTPService(httpServer, treeCfg.ShutdownTimeout))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().
		Str("addr", httpServer.Addr).
		Str("catalog", cfg.Catalog.BaseURL).
		Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for services to stop")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Stopped")
}
