// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/AleutianAI/AleutianDeck/pkg/extensions"
	"github.com/AleutianAI/AleutianDeck/pkg/logging"
	"github.com/AleutianAI/AleutianDeck/services/deck/config"
	"github.com/AleutianAI/AleutianDeck/services/deck/debounce"
	"github.com/AleutianAI/AleutianDeck/services/deck/engine"
	"github.com/AleutianAI/AleutianDeck/services/deck/handlers"
	"github.com/AleutianAI/AleutianDeck/services/deck/livesync"
	"github.com/AleutianAI/AleutianDeck/services/deck/observability"
	"github.com/AleutianAI/AleutianDeck/services/deck/routes"
	"github.com/AleutianAI/AleutianDeck/services/deck/storage"
	"github.com/AleutianAI/AleutianDeck/services/deck/storage/backend"
	"github.com/AleutianAI/AleutianDeck/services/deck/telemetry"
)

// app holds every long-lived component of a running deckd.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	gateway  storage.Gateway
	hub      *livesync.Hub
	registry *engine.Registry
	router   *gin.Engine
	ext      extensions.ServiceOptions

	shutdownTelemetry func(context.Context) error
}

// metricsSink is where the Prometheus collectors live and /metrics reads.
type metricsSink struct {
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// newLogger builds the process logger from the logging section.
func newLogger(cfg config.LoggingConfig, debug bool) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if debug {
		level = logging.LevelDebug
	}
	return logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Dir,
		Service: "deckd",
		Format:  logging.Format(cfg.Format),
	}), nil
}

// newExtensions selects the auth providers. Without configured tokens the
// no-op defaults apply and every caller is the local admin.
func newExtensions(cfg config.AuthConfig, logger *slog.Logger) (extensions.ServiceOptions, error) {
	opts := extensions.DefaultOptions().WithAudit(extensions.NewSlogAuditLogger(logger))
	if len(cfg.Tokens) == 0 {
		return opts, nil
	}
	tokens := make(map[string]extensions.AuthInfo, len(cfg.Tokens))
	for _, tc := range cfg.Tokens {
		tokens[tc.Token] = extensions.AuthInfo{
			UserID: tc.UserID,
			Email:  tc.Email,
			Roles:  tc.Roles,
		}
	}
	provider, err := extensions.NewTokenAuthProvider(tokens)
	if err != nil {
		return extensions.ServiceOptions{}, fmt.Errorf("auth tokens: %w", err)
	}
	return opts.WithAuth(provider).WithAuthz(extensions.NewRoleAuthzProvider(nil)), nil
}

// newApp wires storage, the engine registry, live sync and the router.
//
// # Inputs
//
//   - ctx: Bounds storage connection setup.
//   - cfg: Validated configuration.
//   - logger: Process logger.
//   - sink: Prometheus registry for the deck collectors.
//
// # Outputs
//
//   - *app: Ready to serve. Call shutdown to release it.
//   - error: Telemetry, storage or auth setup failure. Anything opened
//     before the failure is closed.
func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger, sink metricsSink) (*app, error) {
	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	gw, err := backend.Open(ctx, cfg.Storage, logger)
	if err != nil {
		_ = shutdownTelemetry(ctx)
		return nil, fmt.Errorf("storage: %w", err)
	}

	ext, err := newExtensions(cfg.Auth, logger)
	if err != nil {
		_ = gw.Close()
		_ = shutdownTelemetry(ctx)
		return nil, err
	}

	metrics := observability.NewDeckMetrics(sink.Registerer)
	hub := livesync.NewHub(livesync.Options{
		Buffer:  cfg.Sync.Buffer,
		Logger:  logger,
		Metrics: metrics,
	})
	registry := engine.NewRegistry(gw, hub, engine.Options{
		MaxHistory: cfg.History.MaxSize,
		Persistence: debounce.Config{
			Wait:       cfg.Persistence.Wait,
			MaxWait:    cfg.Persistence.MaxWait,
			RunTimeout: cfg.Persistence.RunTimeout,
		},
		Logger:      logger,
		Metrics:     metrics,
		Instruments: telemetry.DefaultInstruments(),
	})

	handler := handlers.NewDeckHandler(registry, handlers.Options{
		KeepAlive:      cfg.Sync.KeepaliveInterval,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Metrics:        metrics,
		Audit:          ext.AuditLogger,
		Logger:         logger,
	})

	gin.SetMode(cfg.Server.GinMode)
	router := routes.NewRouter(routes.Deps{
		Handler:     handler,
		Extensions:  ext,
		ServiceName: cfg.Telemetry.ServiceName,
		Logger:      logger,
		Gatherer:    sink.Gatherer,
	})

	return &app{
		cfg:               cfg,
		logger:            logger,
		gateway:           gw,
		hub:               hub,
		registry:          registry,
		router:            router,
		ext:               ext,
		shutdownTelemetry: shutdownTelemetry,
	}, nil
}

// shutdown flushes every open document, ends all live-sync streams,
// releases storage and telemetry and wipes the token table. Errors are
// joined; every step runs.
func (a *app) shutdown(ctx context.Context) error {
	var errs []error
	if err := a.registry.DisposeAll(ctx); err != nil {
		errs = append(errs, fmt.Errorf("dispose documents: %w", err))
	}
	a.hub.Close()
	if err := a.gateway.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close storage: %w", err))
	}
	if err := a.shutdownTelemetry(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown telemetry: %w", err))
	}
	if tokens, ok := a.ext.AuthProvider.(*extensions.TokenAuthProvider); ok {
		tokens.Destroy()
	}
	return errors.Join(errs...)
}
