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
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianDeck/services/deck/config"
)

// loadConfig reads configPath and applies the command-line overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	if debugMode {
		cfg.Server.GinMode = "debug"
		cfg.Logging.Level = "debug"
	}
	return cfg, cfg.Validate()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logs, err := newLogger(cfg.Logging, debugMode)
	if err != nil {
		return err
	}
	defer logs.Close()
	logger := logs.Slog()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// The OTel Prometheus exporter registers on the default registry, so
	// the deck collectors share it and /metrics serves both.
	a, err := newApp(ctx, cfg, logger, metricsSink{
		Registerer: prometheus.DefaultRegisterer,
		Gatherer:   prometheus.DefaultGatherer,
	})
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("deckd listening",
			"address", addr,
			"storage", cfg.Storage.Backend,
			"max_history", cfg.History.MaxSize,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var runErr error
	select {
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
			logger.Error("http server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Streams stay open until their documents are disposed, so the server
	// stops accepting first and the app then ends the streams.
	srv.SetKeepAlivesEnabled(false)
	httpDone := make(chan error, 1)
	go func() { httpDone <- srv.Shutdown(shutdownCtx) }()

	if err := a.shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown incomplete", "error", err)
		runErr = errors.Join(runErr, err)
	}
	if err := <-httpDone; err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	logger.Info("deckd stopped")
	return runErr
}
