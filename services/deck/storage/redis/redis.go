// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package redis stores deck documents in Redis.
//
// Keys are deck:<id>:snapshot and deck:<id>:history. A positive TTL makes
// idle documents expire; every save refreshes it.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianDeck/services/deck/history"
	"github.com/AleutianAI/AleutianDeck/services/deck/model"
	"github.com/AleutianAI/AleutianDeck/services/deck/storage"
	"github.com/AleutianAI/AleutianDeck/services/deck/telemetry"
)

// Client is the subset of *redis.Client the gateway uses.
type Client interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
	Close() error
}

// Config configures Open.
type Config struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// Gateway is a storage.Gateway over Redis strings.
type Gateway struct {
	client Client
	ttl    time.Duration
	closed atomic.Bool
}

var _ storage.Gateway = (*Gateway)(nil)

// New wraps client. ttl <= 0 keeps keys forever.
func New(client Client, ttl time.Duration) *Gateway {
	if ttl < 0 {
		ttl = 0
	}
	return &Gateway{client: client, ttl: ttl}
}

// Open connects to cfg.Addr and pings the server.
func Open(ctx context.Context, cfg Config) (*Gateway, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	return New(client, cfg.TTL), nil
}

func snapshotKey(docID string) string { return "deck:" + docID + ":snapshot" }
func historyKey(docID string) string  { return "deck:" + docID + ":history" }

// LoadDeck implements storage.Gateway.
func (g *Gateway) LoadDeck(ctx context.Context, docID string) (*model.Deck, error) {
	raw, err := g.get(ctx, "redis.LoadDeck", docID, snapshotKey(docID))
	if err != nil {
		return nil, err
	}
	return storage.DecodeDeck(raw)
}

// SaveDeck implements storage.Gateway.
func (g *Gateway) SaveDeck(ctx context.Context, docID string, deck *model.Deck) error {
	raw, err := storage.EncodeDeck(deck)
	if err != nil {
		return err
	}
	return g.set(ctx, "redis.SaveDeck", docID, snapshotKey(docID), raw)
}

// LoadHistory implements storage.Gateway.
func (g *Gateway) LoadHistory(ctx context.Context, docID string) (history.Snapshot, error) {
	raw, err := g.get(ctx, "redis.LoadHistory", docID, historyKey(docID))
	if err != nil {
		return history.Snapshot{}, err
	}
	return storage.DecodeHistory(raw)
}

// SaveHistory implements storage.Gateway.
func (g *Gateway) SaveHistory(ctx context.Context, docID string, snap history.Snapshot) error {
	raw, err := storage.EncodeHistory(snap)
	if err != nil {
		return err
	}
	return g.set(ctx, "redis.SaveHistory", docID, historyKey(docID), raw)
}

// Delete implements storage.Gateway.
func (g *Gateway) Delete(ctx context.Context, docID string) error {
	if g.closed.Load() {
		return storage.ErrClosed
	}
	if err := g.client.Del(ctx, snapshotKey(docID), historyKey(docID)).Err(); err != nil {
		return fmt.Errorf("redis: delete %s: %w", docID, err)
	}
	return nil
}

// Close closes the client once.
func (g *Gateway) Close() error {
	if g.closed.Swap(true) {
		return nil
	}
	return g.client.Close()
}

func (g *Gateway) get(ctx context.Context, op, docID, key string) ([]byte, error) {
	if g.closed.Load() {
		return nil, storage.ErrClosed
	}
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerStorage, op,
		trace.WithAttributes(attribute.String("document_id", docID)))
	defer span.End()

	raw, err := g.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("redis: get %s: %w", key, err)
	}
	return raw, nil
}

func (g *Gateway) set(ctx context.Context, op, docID, key string, raw []byte) error {
	if g.closed.Load() {
		return storage.ErrClosed
	}
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerStorage, op,
		trace.WithAttributes(attribute.String("document_id", docID)))
	defer span.End()

	if err := g.client.Set(ctx, key, raw, g.ttl).Err(); err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}
