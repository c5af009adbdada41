// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/AleutianAI/AleutianDeck/services/deck/history"
	"github.com/AleutianAI/AleutianDeck/services/deck/model"
)

// Memory is an in-process Gateway. Records are held encoded, so callers
// never share memory with stored state.
type Memory struct {
	mu      sync.RWMutex
	decks   map[string][]byte
	history map[string][]byte
	closed  bool

	// FailSaves makes every save return this error when non-nil. Tests use
	// it to exercise persistence failure paths.
	FailSaves error
	// FailLoads makes every load return this error when non-nil.
	FailLoads error
}

var _ Gateway = (*Memory)(nil)

// NewMemory creates an empty in-memory gateway.
func NewMemory() *Memory {
	return &Memory{
		decks:   make(map[string][]byte),
		history: make(map[string][]byte),
	}
}

func (m *Memory) LoadDeck(ctx context.Context, docID string) (*model.Deck, error) {
	raw, err := m.load(ctx, m.decks, docID)
	if err != nil {
		return nil, err
	}
	return DecodeDeck(raw)
}

func (m *Memory) SaveDeck(ctx context.Context, docID string, deck *model.Deck) error {
	raw, err := EncodeDeck(deck)
	if err != nil {
		return err
	}
	return m.save(ctx, m.decks, docID, raw)
}

func (m *Memory) LoadHistory(ctx context.Context, docID string) (history.Snapshot, error) {
	raw, err := m.load(ctx, m.history, docID)
	if err != nil {
		return history.Snapshot{}, err
	}
	return DecodeHistory(raw)
}

func (m *Memory) SaveHistory(ctx context.Context, docID string, snap history.Snapshot) error {
	raw, err := EncodeHistory(snap)
	if err != nil {
		return err
	}
	return m.save(ctx, m.history, docID, raw)
}

func (m *Memory) Delete(ctx context.Context, docID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.decks, docID)
	delete(m.history, docID)
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// SetFailSaves sets or clears the injected save error.
func (m *Memory) SetFailSaves(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailSaves = err
}

// Has reports whether a deck snapshot is stored for docID.
func (m *Memory) Has(docID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.decks[docID]
	return ok
}

func (m *Memory) load(ctx context.Context, bucket map[string][]byte, docID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	if m.FailLoads != nil {
		return nil, m.FailLoads
	}
	raw, ok := bucket[docID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, docID)
	}
	return raw, nil
}

func (m *Memory) save(ctx context.Context, bucket map[string][]byte, docID string, raw []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.FailSaves != nil {
		return m.FailSaves
	}
	bucket[docID] = raw
	return nil
}
