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
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianDeck/services/deck/command"
	"github.com/AleutianAI/AleutianDeck/services/deck/history"
	"github.com/AleutianAI/AleutianDeck/services/deck/model"
	"github.com/AleutianAI/AleutianDeck/services/deck/storage"
	"github.com/AleutianAI/AleutianDeck/services/deck/storage/storagetest"
)

func TestGateway_Conformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Gateway {
		g, err := Open(InMemoryConfig())
		require.NoError(t, err)
		return g
	})
}

// TestGateway_Reopen verifies records survive closing and reopening a
// persistent store.
func TestGateway_Reopen(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig(t.TempDir())
	cfg.SyncWrites = false

	g, err := Open(cfg)
	require.NoError(t, err)
	d, add := storagetest.SampleDeck(t)
	require.NoError(t, g.SaveDeck(ctx, "doc", d))
	require.NoError(t, g.SaveHistory(ctx, "doc", history.Snapshot{UndoStack: []command.Command{add}}))
	require.NoError(t, g.Close())
	require.NoError(t, g.Close())

	g2, err := Open(cfg)
	require.NoError(t, err)
	defer g2.Close()
	got, err := g2.LoadDeck(ctx, "doc")
	require.NoError(t, err)
	assert.True(t, model.Equal(d, got))

	snap, err := g2.LoadHistory(ctx, "doc")
	require.NoError(t, err)
	require.Len(t, snap.UndoStack, 1)
	assert.Equal(t, command.TypeAddElement, snap.UndoStack[0].Type)
	assert.Empty(t, snap.RedoStack)
}

func TestGateway_KeyLayout(t *testing.T) {
	ctx := context.Background()
	g, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer g.Close()

	require.NoError(t, g.SaveDeck(ctx, "doc-7", model.NewDeck("t")))
	err = g.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte("deck/doc-7/snapshot"))
		return err
	})
	assert.NoError(t, err)
}

func TestGateway_Closed(t *testing.T) {
	g, err := Open(InMemoryConfig())
	require.NoError(t, err)
	require.NoError(t, g.Close())

	err = g.SaveDeck(context.Background(), "doc", model.NewDeck("x"))
	assert.ErrorIs(t, err, storage.ErrClosed)
}

func TestGateway_GCRunnerStops(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	cfg.GCInterval = 10 * time.Millisecond
	g, err := Open(cfg)
	require.NoError(t, err)
	require.NotNil(t, g.gc)
	time.Sleep(30 * time.Millisecond)
	assert.NoError(t, g.Close())
}

func TestNewGCRunner_RejectsBadConfig(t *testing.T) {
	_, err := newGCRunner(nil, 0, 0.5, nil)
	assert.Error(t, err)
	_, err = newGCRunner(nil, time.Second, 1.5, nil)
	assert.Error(t, err)
}
