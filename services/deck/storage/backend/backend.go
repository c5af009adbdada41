// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package backend opens the storage.Gateway named in configuration.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/AleutianDeck/services/deck/config"
	"github.com/AleutianAI/AleutianDeck/services/deck/storage"
	"github.com/AleutianAI/AleutianDeck/services/deck/storage/badger"
	"github.com/AleutianAI/AleutianDeck/services/deck/storage/postgres"
	"github.com/AleutianAI/AleutianDeck/services/deck/storage/redis"
)

// ErrUnknownBackend is returned for a backend name Open does not know.
var ErrUnknownBackend = errors.New("unknown storage backend")

// Open connects the backend selected by cfg.Backend.
//
// # Inputs
//
//   - ctx: Bounds connection setup for network backends.
//   - cfg: Storage section of the deckd configuration.
//   - logger: Receives backend-internal messages. May be nil.
//
// # Outputs
//
//   - storage.Gateway: Caller must Close it.
//   - error: ErrUnknownBackend or a connection failure.
func Open(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (storage.Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("backend", cfg.Backend)

	switch cfg.Backend {
	case config.BackendMemory:
		logger.Warn("using in-memory storage; documents are lost on restart")
		return storage.NewMemory(), nil

	case config.BackendBadger:
		bc := badger.DefaultConfig(cfg.Badger.Path)
		bc.InMemory = cfg.Badger.InMemory
		bc.SyncWrites = cfg.Badger.SyncWrites
		bc.GCInterval = cfg.Badger.GCInterval
		bc.Logger = logger
		g, err := badger.Open(bc)
		if err != nil {
			return nil, err
		}
		logger.Info("storage opened", "path", cfg.Badger.Path, "in_memory", cfg.Badger.InMemory)
		return g, nil

	case config.BackendPostgres:
		g, err := postgres.Open(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, err
		}
		logger.Info("storage opened")
		return g, nil

	case config.BackendRedis:
		g, err := redis.Open(ctx, redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("storage opened", "addr", cfg.Redis.Addr)
		return g, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
}
