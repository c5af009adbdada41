// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storage defines the persistence gateway for deck documents.
//
// # Description
//
// A document is persisted as two records keyed by document id: the deck
// snapshot and the history record {undoStack, redoStack}. Both are JSON.
// Writes are whole-record overwrites and therefore idempotent.
//
// Backends live in sub-packages (badger, postgres, redis); Memory in this
// package serves tests and the "memory" backend.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/AleutianAI/AleutianDeck/services/deck/command"
	"github.com/AleutianAI/AleutianDeck/services/deck/history"
	"github.com/AleutianAI/AleutianDeck/services/deck/model"
)

// ErrNotFound is returned by loads when no record exists for the document.
var ErrNotFound = errors.New("record not found")

// ErrClosed is returned by operations on a closed gateway.
var ErrClosed = errors.New("gateway closed")

// Gateway durably stores deck snapshots and history records.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Gateway interface {
	// LoadDeck returns the last saved deck, or ErrNotFound.
	LoadDeck(ctx context.Context, docID string) (*model.Deck, error)

	// SaveDeck overwrites the deck snapshot.
	SaveDeck(ctx context.Context, docID string, deck *model.Deck) error

	// LoadHistory returns the last saved history record, or ErrNotFound.
	LoadHistory(ctx context.Context, docID string) (history.Snapshot, error)

	// SaveHistory overwrites the history record.
	SaveHistory(ctx context.Context, docID string, snap history.Snapshot) error

	// Delete removes both records. Deleting a missing document is not an error.
	Delete(ctx context.Context, docID string) error

	// Close releases backend resources.
	Close() error
}

// =============================================================================
// Record encoding
// =============================================================================

// EncodeDeck serializes a deck snapshot record.
func EncodeDeck(d *model.Deck) ([]byte, error) {
	if d == nil {
		return nil, errors.New("nil deck")
	}
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode deck: %w", err)
	}
	return data, nil
}

// DecodeDeck parses a deck snapshot record.
func DecodeDeck(data []byte) (*model.Deck, error) {
	var d model.Deck
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode deck: %w", err)
	}
	if d.Slides == nil {
		d.Slides = []model.Slide{}
	}
	return &d, nil
}

// EncodeHistory serializes a history record.
func EncodeHistory(s history.Snapshot) ([]byte, error) {
	data, err := json.Marshal(normalizeSnapshot(s))
	if err != nil {
		return nil, fmt.Errorf("encode history: %w", err)
	}
	return data, nil
}

// DecodeHistory parses a history record.
func DecodeHistory(data []byte) (history.Snapshot, error) {
	var s history.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return history.Snapshot{}, fmt.Errorf("decode history: %w", err)
	}
	return normalizeSnapshot(s), nil
}

func normalizeSnapshot(s history.Snapshot) history.Snapshot {
	if s.UndoStack == nil {
		s.UndoStack = []command.Command{}
	}
	if s.RedoStack == nil {
		s.RedoStack = []command.Command{}
	}
	return s
}
