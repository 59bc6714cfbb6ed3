// Umbra - Privacy-Preserving Analytics Event Ingestion
// Copyright 2026 A. Velier (avelier)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelier/umbra

// Package main is the entry point for the Umbra ingestion server.
//
// Umbra receives client telemetry events over HTTP, derives a
// daily-rotating pseudonymous user identity from the client IP, user
// agent, and a per-app daily salt, enriches events with coarse
// geolocation, and persists normalized rows into DuckDB, optionally
// buffered through embedded NATS JetStream.
//
// The server initializes components in the following order:
//
//  1. Configuration: Koanf v2 over defaults, config file, and env vars
//  2. Database: DuckDB with salt, app, and event tables
//  3. Identity service: two-tier cached daily salt hashing
//  4. GeoIP resolver: MaxMind web service or ip-api, LRU cached
//  5. Event transport: NATS JetStream publisher and store consumer,
//     or a direct store sink when NATS is disabled
//  6. HTTP server: chi router with app-key auth and rate limiting
//
// All long-running components run under a suture supervisor tree and
// shut down gracefully on SIGINT and SIGTERM.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avelier/umbra/internal/api"
	"github.com/avelier/umbra/internal/config"
	"github.com/avelier/umbra/internal/database"
	"github.com/avelier/umbra/internal/geoip"
	"github.com/avelier/umbra/internal/identity"
	"github.com/avelier/umbra/internal/ingest"
	"github.com/avelier/umbra/internal/logging"
	"github.com/avelier/umbra/internal/supervisor"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if runAdminCommand(os.Args[1:]) {
		return
	}

	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", version).
		Str("environment", cfg.Server.Environment).
		Msg("Starting Umbra")

	// Log level follows config file edits without a restart.
	if path := config.FindConfigFile(); path != "" {
		err := config.WatchConfigFile(path, func() {
			fresh, err := config.LoadWithKoanf()
			if err != nil {
				logging.Warn().Err(err).Msg("Config reload failed, keeping current settings")
				return
			}
			logging.SetLevelString(fresh.Logging.Level)
			logging.Info().Str("level", fresh.Logging.Level).Msg("Log level reloaded")
		})
		if err != nil {
			logging.Warn().Err(err).Msg("Config file watch unavailable")
		}
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	identitySvc := identity.NewService(db,
		identity.WithSaltCacheTTL(cfg.Identity.SaltCacheTTL),
		identity.WithSessionTTL(cfg.Identity.SessionTTL),
	)

	geoResolver, err := geoip.FromConfig(&cfg.GeoIP)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to configure GeoIP resolver")
	}
	logging.Info().Str("provider", cfg.GeoIP.Provider).Msg("GeoIP resolver configured")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	// Retention pruning keeps expired salts deletable on schedule; once a
	// salt row is gone the identities derived from it are uncomputable.
	tree.AddStorageService(supervisor.NewPrunerService(db, supervisor.PrunerConfig{
		SaltRetentionDays:  cfg.Database.SaltRetentionDays,
		EventRetentionDays: cfg.Database.EventRetentionDays,
	}))

	readiness := []api.ReadinessCheck{
		{Name: "database", Check: db.Ping},
	}

	var sink ingest.EventSink
	if cfg.NATS.Enabled {
		nats, err := initNATS(ctx, &cfg.NATS, db, tree)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize NATS transport")
		}
		defer nats.Close()

		sink = ingest.NewPublisherSink(nats.Publisher, cfg.NATS.Subject)
		readiness = append(readiness, nats.ReadinessChecks()...)
		logging.Info().
			Str("stream", cfg.NATS.StreamName).
			Str("subject", cfg.NATS.Subject).
			Bool("embedded", cfg.NATS.EmbeddedServer).
			Msg("Event transport initialized")
	} else {
		// Single-process mode: events go straight into DuckDB.
		sink = ingest.NewStoreSink(db)
		logging.Info().Msg("NATS disabled, writing events directly to the store")
	}

	pipeline := ingest.NewPipeline(identitySvc, geoResolver, ingest.NewHeuristicParser(), sink)

	router := api.NewRouter(
		api.NewHandler(pipeline, &cfg.API),
		api.NewHealthHandler(version, readiness...),
		api.NewAppAuthenticator(db, &cfg.API),
		&cfg.API,
	)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	tree.AddAPIService(supervisor.NewHTTPService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server added to supervisor tree")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Drain until the supervisor has fully stopped.
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Umbra stopped gracefully")
}
