// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianDeck/pkg/validation"
	"github.com/AleutianAI/AleutianDeck/services/deck/command"
	"github.com/AleutianAI/AleutianDeck/services/deck/livesync"
	"github.com/AleutianAI/AleutianDeck/services/deck/model"
	"github.com/AleutianAI/AleutianDeck/services/deck/storage"
)

func TestRegistry_LoadSharesConcurrentReads(t *testing.T) {
	gw := newBlockingGateway()
	reg := NewRegistry(gw, livesync.NewHub(livesync.Options{}), testOptions())
	defer reg.DisposeAll(context.Background())

	const callers = 8
	engines := make([]*Engine, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := reg.Load(context.Background(), "shared")
			assert.NoError(t, err)
			engines[i] = e
		}(i)
	}
	<-gw.started
	close(gw.release)
	wg.Wait()

	assert.Equal(t, 1, gw.loadCount())
	for _, e := range engines {
		assert.Same(t, engines[0], e)
	}
	assert.Equal(t, []string{"shared"}, reg.IDs())
}

func TestRegistry_GetAndDispose(t *testing.T) {
	mem := storage.NewMemory()
	reg := NewRegistry(mem, livesync.NewHub(livesync.Options{}), testOptions())
	ctx := context.Background()

	_, err := reg.Get("a")
	assert.ErrorIs(t, err, ErrNotLoaded)

	e, err := reg.Load(ctx, "a")
	require.NoError(t, err)
	got, err := reg.Get("a")
	require.NoError(t, err)
	assert.Same(t, e, got)

	_, err = e.Apply(ctx, command.New(command.AddSlide{}))
	require.NoError(t, err)

	require.NoError(t, reg.Dispose(ctx, "a"))
	assert.True(t, mem.Has("a"), "dispose flushes pending changes")
	assert.Equal(t, StateUnloaded, e.State())
	_, err = reg.Get("a")
	assert.ErrorIs(t, err, ErrNotLoaded)
	assert.ErrorIs(t, reg.Dispose(ctx, "a"), ErrNotLoaded)

	// a fresh load sees the saved deck
	e2, err := reg.Load(ctx, "a")
	require.NoError(t, err)
	assert.NotSame(t, e, e2)
	snap, err := e2.Snapshot()
	require.NoError(t, err)
	assert.Len(t, snap.Deck.Slides, 2)
	assert.Equal(t, 1, snap.UndoCount)
	require.NoError(t, reg.DisposeAll(ctx))
}

func TestRegistry_FailedLoadNotRegistered(t *testing.T) {
	mem := storage.NewMemory()
	mem.FailLoads = errors.New("timeout")
	reg := NewRegistry(mem, nil, testOptions())
	ctx := context.Background()

	_, err := reg.Load(ctx, "doc")
	require.ErrorIs(t, err, ErrLoadFailed)
	assert.Empty(t, reg.IDs())

	mem.FailLoads = nil
	e, err := reg.Load(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, StateReady, e.State())
	require.NoError(t, reg.DisposeAll(ctx))
}

func TestRegistry_DisposeAll(t *testing.T) {
	hub := livesync.NewHub(livesync.Options{})
	reg := NewRegistry(storage.NewMemory(), hub, testOptions())
	ctx := context.Background()

	for _, id := range []string{"c", "a", "b"} {
		_, err := reg.Load(ctx, id)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"a", "b", "c"}, reg.IDs())

	e, err := reg.Get("b")
	require.NoError(t, err)
	sub, err := e.Subscribe()
	require.NoError(t, err)

	require.NoError(t, reg.DisposeAll(ctx))
	assert.Empty(t, reg.IDs())
	<-sub.Done()
	assert.Equal(t, 0, hub.TopicCount())
}

func TestRegistry_InvalidID(t *testing.T) {
	reg := NewRegistry(storage.NewMemory(), nil, testOptions())
	for _, id := range []string{"", "../x", "deck:1"} {
		_, err := reg.Load(context.Background(), id)
		assert.ErrorIs(t, err, validation.ErrInvalidDocumentID, id)
	}
	assert.Empty(t, reg.IDs())
}

// slowSaveGateway holds SaveDeck until release is closed.
type slowSaveGateway struct {
	*storage.Memory
	saving  chan struct{}
	release chan struct{}
}

func newSlowSaveGateway() *slowSaveGateway {
	return &slowSaveGateway{
		Memory:  storage.NewMemory(),
		saving:  make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (g *slowSaveGateway) SaveDeck(ctx context.Context, id string, deck *model.Deck) error {
	g.saving <- struct{}{}
	<-g.release
	return g.Memory.SaveDeck(ctx, id, deck)
}

func TestRegistry_LoadWaitsForDispose(t *testing.T) {
	gw := newSlowSaveGateway()
	opts := testOptions()
	// only the flush on dispose writes
	opts.Persistence.Wait = time.Hour
	opts.Persistence.MaxWait = 0
	reg := NewRegistry(gw, livesync.NewHub(livesync.Options{}), opts)
	ctx := context.Background()
	defer reg.DisposeAll(ctx)

	e, err := reg.Load(ctx, "doc")
	require.NoError(t, err)
	apply(t, e, command.AddElement{SlideID: firstSlideID(t, e), Element: textElement("el-1", 10, 20)})

	disposed := make(chan error, 1)
	go func() { disposed <- reg.Dispose(ctx, "doc") }()
	<-gw.saving

	type loadResult struct {
		e   *Engine
		err error
	}
	loaded := make(chan loadResult, 1)
	go func() {
		e2, err := reg.Load(ctx, "doc")
		loaded <- loadResult{e2, err}
	}()

	select {
	case <-loaded:
		t.Fatal("load returned while the previous engine was still flushing")
	case <-time.After(50 * time.Millisecond):
	}

	close(gw.release)
	require.NoError(t, <-disposed)

	res := <-loaded
	require.NoError(t, res.err)
	assert.NotSame(t, e, res.e)
	snap := mustSnapshot(t, res.e)
	assert.Len(t, snap.Deck.Slides[0].Elements, 1, "edit from the disposed session must be visible")
	assert.Equal(t, 1, snap.UndoCount)
}

func TestRegistry_LoadSurvivesFirstCallerCancel(t *testing.T) {
	gw := newBlockingGateway()
	reg := NewRegistry(gw, livesync.NewHub(livesync.Options{}), testOptions())
	defer reg.DisposeAll(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := reg.Load(ctx, "doc")
		first <- err
	}()
	<-gw.started

	second := make(chan *Engine, 1)
	go func() {
		e, err := reg.Load(context.Background(), "doc")
		assert.NoError(t, err)
		second <- e
	}()

	cancel()
	close(gw.release)

	assert.NoError(t, <-first)
	e := <-second
	require.NotNil(t, e)
	assert.Equal(t, StateReady, e.State())
	assert.Equal(t, 1, gw.loadCount())
	assert.Equal(t, []string{"doc"}, reg.IDs())
}

func TestRegistry_LoadWaitingOnDisposeHonorsContext(t *testing.T) {
	gw := newSlowSaveGateway()
	opts := testOptions()
	opts.Persistence.Wait = time.Hour
	opts.Persistence.MaxWait = 0
	reg := NewRegistry(gw, livesync.NewHub(livesync.Options{}), opts)

	e, err := reg.Load(context.Background(), "doc")
	require.NoError(t, err)
	apply(t, e, command.AddSlide{})

	disposed := make(chan error, 1)
	go func() { disposed <- reg.Dispose(context.Background(), "doc") }()
	<-gw.saving

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = reg.Load(ctx, "doc")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(gw.release)
	require.NoError(t, <-disposed)
	assert.Empty(t, reg.IDs())
}
