// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianDeck/services/deck/history"
	"github.com/AleutianAI/AleutianDeck/services/deck/model"
	"github.com/AleutianAI/AleutianDeck/services/deck/storage"
	"github.com/AleutianAI/AleutianDeck/services/deck/telemetry"
)

const (
	recordSnapshot = "snapshot"
	recordHistory  = "history"
)

func key(docID, record string) []byte {
	return []byte("deck/" + docID + "/" + record)
}

// Gateway is a storage.Gateway over BadgerDB.
//
// # Thread Safety
//
// Safe for concurrent use. Badger transactions serialize conflicting writes.
type Gateway struct {
	db *badger.DB
	gc *gcRunner

	closeOnce sync.Once
	closeErr  error
}

var _ storage.Gateway = (*Gateway)(nil)

// Open opens (or creates) the database and starts value-log GC when
// cfg.GCInterval is positive.
//
// # Outputs
//
//   - *Gateway: Ready for use. Caller must Close it.
//   - error: Non-nil if the directory or database could not be opened.
func Open(cfg Config) (*Gateway, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	g := &Gateway{db: db}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		gc, err := newGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		g.gc = gc
	}
	return g, nil
}

// LoadDeck implements storage.Gateway.
func (g *Gateway) LoadDeck(ctx context.Context, docID string) (*model.Deck, error) {
	raw, err := g.get(ctx, "badger.LoadDeck", docID, recordSnapshot)
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
	return g.set(ctx, "badger.SaveDeck", docID, recordSnapshot, raw)
}

// LoadHistory implements storage.Gateway.
func (g *Gateway) LoadHistory(ctx context.Context, docID string) (history.Snapshot, error) {
	raw, err := g.get(ctx, "badger.LoadHistory", docID, recordHistory)
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
	return g.set(ctx, "badger.SaveHistory", docID, recordHistory, raw)
}

// Delete removes both records in one transaction.
func (g *Gateway) Delete(ctx context.Context, docID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := g.db.Update(func(txn *badger.Txn) error {
		for _, rec := range []string{recordSnapshot, recordHistory} {
			if err := txn.Delete(key(docID, rec)); err != nil {
				return err
			}
		}
		return nil
	})
	return mapErr(err)
}

// Close stops GC and closes the database. Safe to call more than once.
func (g *Gateway) Close() error {
	g.closeOnce.Do(func() {
		if g.gc != nil {
			g.gc.stop()
		}
		g.closeErr = g.db.Close()
	})
	return g.closeErr
}

func (g *Gateway) get(ctx context.Context, op, docID, record string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, span := telemetry.StartSpan(ctx, telemetry.TracerStorage, op,
		trace.WithAttributes(attribute.String("document_id", docID)))
	defer span.End()

	var raw []byte
	err := g.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(docID, record))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s %s", storage.ErrNotFound, record, docID)
	}
	if err != nil {
		err = mapErr(err)
		telemetry.RecordError(span, err)
		return nil, err
	}
	return raw, nil
}

func (g *Gateway) set(ctx context.Context, op, docID, record string, raw []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, span := telemetry.StartSpan(ctx, telemetry.TracerStorage, op,
		trace.WithAttributes(
			attribute.String("document_id", docID),
			attribute.Int("bytes", len(raw)),
		))
	defer span.End()

	err := g.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(docID, record), raw)
	})
	if err != nil {
		err = mapErr(err)
		telemetry.RecordError(span, err)
		return err
	}
	return nil
}

func mapErr(err error) error {
	if errors.Is(err, badger.ErrDBClosed) {
		return storage.ErrClosed
	}
	if err != nil {
		return fmt.Errorf("badger: %w", err)
	}
	return nil
}
