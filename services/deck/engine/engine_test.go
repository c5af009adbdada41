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

	"github.com/AleutianAI/AleutianDeck/services/deck/command"
	"github.com/AleutianAI/AleutianDeck/services/deck/debounce"
	"github.com/AleutianAI/AleutianDeck/services/deck/history"
	"github.com/AleutianAI/AleutianDeck/services/deck/livesync"
	"github.com/AleutianAI/AleutianDeck/services/deck/model"
	"github.com/AleutianAI/AleutianDeck/services/deck/storage"
)

// =============================================================================
// Helpers
// =============================================================================

func testOptions() Options {
	return Options{
		Persistence: debounce.Config{
			Wait:       10 * time.Millisecond,
			MaxWait:    50 * time.Millisecond,
			RunTimeout: time.Second,
		},
	}
}

func newLoaded(t *testing.T, gw storage.Gateway, opts Options) (*Engine, *livesync.Hub) {
	t.Helper()
	hub := livesync.NewHub(livesync.Options{Buffer: 128})
	e := New("doc-1", gw, hub, opts)
	require.NoError(t, e.Load(context.Background()))
	t.Cleanup(func() { _ = e.Close(context.Background()) })
	return e, hub
}

func textElement(id string, x, y float64) model.Element {
	return model.Element{
		ID:     id,
		Kind:   model.KindText,
		Bounds: model.Bounds{X: x, Y: y, Width: 200, Height: 40},
		Text:   &model.TextContent{Text: "Hello"},
	}
}

func mustSnapshot(t *testing.T, e *Engine) Snapshot {
	t.Helper()
	s, err := e.Snapshot()
	require.NoError(t, err)
	return s
}

func firstSlideID(t *testing.T, e *Engine) string {
	return mustSnapshot(t, e).Deck.Slides[0].ID
}

func apply(t *testing.T, e *Engine, p command.Params) Result {
	t.Helper()
	res, err := e.Apply(context.Background(), command.New(p))
	require.NoError(t, err)
	require.True(t, res.Applied)
	return res
}

func nextEvent(t *testing.T, sub *livesync.Subscription) livesync.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event")
		return livesync.Event{}
	}
}

// =============================================================================
// Scenarios
// =============================================================================

func TestScenario_AddElementUndoRedo(t *testing.T) {
	e, _ := newLoaded(t, storage.NewMemory(), testOptions())
	ctx := context.Background()
	slideID := firstSlideID(t, e)

	apply(t, e, command.AddElement{SlideID: slideID, Element: textElement("", 10, 20)})
	afterAdd := mustSnapshot(t, e).Deck
	require.Len(t, afterAdd.Slides[0].Elements, 1)
	assert.Equal(t, 10.0, afterAdd.Slides[0].Elements[0].Bounds.X)
	assert.Equal(t, 20.0, afterAdd.Slides[0].Elements[0].Bounds.Y)
	assert.NotEmpty(t, afterAdd.Slides[0].Elements[0].ID)

	res, err := e.Undo(ctx)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Empty(t, mustSnapshot(t, e).Deck.Slides[0].Elements)

	res, err = e.Redo(ctx)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.True(t, model.Equal(afterAdd, mustSnapshot(t, e).Deck))
}

func TestScenario_DeleteSlideUndoRestoresOrder(t *testing.T) {
	e, _ := newLoaded(t, storage.NewMemory(), testOptions())
	ctx := context.Background()

	apply(t, e, command.AddSlide{})
	before := mustSnapshot(t, e).Deck
	require.Len(t, before.Slides, 2)

	apply(t, e, command.DeleteSlide{Index: 0})
	assert.Len(t, mustSnapshot(t, e).Deck.Slides, 1)

	_, err := e.Undo(ctx)
	require.NoError(t, err)
	after := mustSnapshot(t, e).Deck
	require.Len(t, after.Slides, 2)
	assert.Equal(t, before.Slides[0].ID, after.Slides[0].ID)
	assert.Equal(t, before.Slides[1].ID, after.Slides[1].ID)
	assert.Equal(t, 1, after.Slides[0].Number)
	assert.Equal(t, 2, after.Slides[1].Number)
	assert.True(t, model.Equal(before, after))
}

func TestScenario_BoundedHistory(t *testing.T) {
	opts := testOptions()
	opts.MaxHistory = 3
	e, _ := newLoaded(t, storage.NewMemory(), opts)

	themes := []string{"t1", "t2", "t3", "t4", "t5"}
	for _, th := range themes {
		th := th
		apply(t, e, command.UpdateSettings{Patch: command.SettingsPatch{Theme: &th}})
	}
	snap := mustSnapshot(t, e)
	assert.Equal(t, 3, snap.UndoCount)

	h, err := e.History()
	require.NoError(t, err)
	require.Len(t, h.UndoStack, 3)
	for i, want := range []string{"t3", "t4", "t5"} {
		p := h.UndoStack[i].Params.(command.UpdateSettings)
		assert.Equal(t, want, *p.Patch.Theme)
	}
}

// =============================================================================
// History properties
// =============================================================================

func TestUndoAfterApply_RestoresState(t *testing.T) {
	e, _ := newLoaded(t, storage.NewMemory(), testOptions())
	ctx := context.Background()
	slideID := firstSlideID(t, e)
	apply(t, e, command.AddElement{SlideID: slideID, Element: textElement("a", 0, 0)})
	apply(t, e, command.AddElement{SlideID: slideID, Element: textElement("b", 5, 5)})

	title := "Agenda"
	cases := map[string]command.Params{
		"addSlide":      command.AddSlide{},
		"deleteSlide":   command.DeleteSlide{Index: 0},
		"updateSlide":   command.UpdateSlide{SlideID: slideID, Patch: command.SlidePatch{Title: &title}},
		"updateElement": command.UpdateElement{ElementID: "a", Patch: command.ElementPatch{Bounds: &model.Bounds{X: 1, Y: 1, Width: 9, Height: 9}}},
		"deleteElement": command.DeleteElement{ElementID: "b"},
		"group":         command.GroupElements{ElementIDs: []string{"a", "b"}},
	}
	front, err := command.NewLayerMove(command.TypeBringToFront, "a")
	require.NoError(t, err)
	cases["bringToFront"] = front

	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			before := mustSnapshot(t, e).Deck
			if name == "deleteSlide" {
				apply(t, e, command.AddSlide{})
				before = mustSnapshot(t, e).Deck
			}
			apply(t, e, p)
			_, err := e.Undo(ctx)
			require.NoError(t, err)
			assert.True(t, model.Equal(before, mustSnapshot(t, e).Deck))
		})
	}
}

func TestRedoAfterUndo_ReproducesTrajectory(t *testing.T) {
	e, _ := newLoaded(t, storage.NewMemory(), testOptions())
	ctx := context.Background()
	slideID := firstSlideID(t, e)

	apply(t, e, command.AddElement{SlideID: slideID, Element: textElement("a", 0, 0)})
	apply(t, e, command.AddSlide{})
	apply(t, e, command.ReorderSlides{From: 1, To: 0})
	final := mustSnapshot(t, e).Deck

	for i := 0; i < 3; i++ {
		res, err := e.Undo(ctx)
		require.NoError(t, err)
		require.True(t, res.Applied)
	}
	for i := 0; i < 3; i++ {
		res, err := e.Redo(ctx)
		require.NoError(t, err)
		require.True(t, res.Applied)
	}
	assert.True(t, model.Equal(final, mustSnapshot(t, e).Deck))
}

func TestApply_ClearsRedo(t *testing.T) {
	e, _ := newLoaded(t, storage.NewMemory(), testOptions())
	ctx := context.Background()

	apply(t, e, command.AddSlide{})
	apply(t, e, command.AddSlide{})
	_, err := e.Undo(ctx)
	require.NoError(t, err)
	_, err = e.Undo(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, mustSnapshot(t, e).RedoCount)

	res := apply(t, e, command.AddSlide{})
	assert.False(t, res.CanRedo)
	assert.Equal(t, 0, mustSnapshot(t, e).RedoCount)
}

func TestUndoRedo_EmptyIsNoop(t *testing.T) {
	e, hub := newLoaded(t, storage.NewMemory(), testOptions())
	ctx := context.Background()
	sub, err := e.Subscribe()
	require.NoError(t, err)
	nextEvent(t, sub)
	before := mustSnapshot(t, e)

	res, err := e.Undo(ctx)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Nil(t, res.Command)

	res, err = e.Redo(ctx)
	require.NoError(t, err)
	assert.False(t, res.Applied)

	after := mustSnapshot(t, e)
	assert.Equal(t, before.Revision, after.Revision)
	assert.Equal(t, 0, after.UndoCount)
	assert.Equal(t, 0, after.RedoCount)
	assert.True(t, model.Equal(before.Deck, after.Deck))
	assert.Equal(t, 1, hub.SubscriberCount("doc-1"))
	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

// =============================================================================
// Failure semantics
// =============================================================================

func TestApply_ValidationFailsClean(t *testing.T) {
	e, _ := newLoaded(t, storage.NewMemory(), testOptions())
	before := mustSnapshot(t, e)

	tests := []command.Params{
		command.UpdateElement{ElementID: "missing", Patch: command.ElementPatch{Bounds: &model.Bounds{Width: 1, Height: 1}}},
		command.DeleteSlide{Index: 5},
		command.DeleteSlide{Index: 0}, // last slide
		command.AddElement{SlideID: "nope", Element: textElement("z", 0, 0)},
	}
	for _, p := range tests {
		_, err := e.Apply(context.Background(), command.New(p))
		require.Error(t, err)
		assert.True(t, command.IsValidation(err), "%v", err)
	}

	after := mustSnapshot(t, e)
	assert.True(t, model.Equal(before.Deck, after.Deck))
	assert.Equal(t, 0, after.UndoCount)
	assert.Equal(t, before.Revision, after.Revision)
}

func TestApply_InvariantViolationRestoresState(t *testing.T) {
	e, _ := newLoaded(t, storage.NewMemory(), testOptions())

	// corrupt the numbering so any command fails the post-apply check
	e.mu.Lock()
	e.deck.Slides[0].Number = 9
	e.mu.Unlock()
	before := mustSnapshot(t, e)

	theme := "dark"
	_, err := e.Apply(context.Background(), command.New(command.UpdateSettings{Patch: command.SettingsPatch{Theme: &theme}}))
	require.ErrorIs(t, err, ErrInvariantViolation)

	after := mustSnapshot(t, e)
	assert.Equal(t, "default", after.Deck.Settings.Theme)
	assert.Equal(t, 0, after.UndoCount)
	assert.True(t, model.Equal(before.Deck, after.Deck))
	assert.Equal(t, StateReady, e.State())
}

// staleHistory returns a deck and a command prepared against a different
// deck, so the command cannot be applied or reverted on the returned one.
func staleHistory(t *testing.T) (*model.Deck, command.Command) {
	t.Helper()
	other := model.NewDeck("other")
	cmd, err := command.New(command.AddElement{SlideID: other.Slides[0].ID, Element: textElement("e1", 10, 10)}).Prepare(other)
	require.NoError(t, err)
	deck := model.NewDeck("stored")
	require.NotEqual(t, other.Slides[0].ID, deck.Slides[0].ID)
	return deck, cmd
}

func TestUndo_FailureKeepsCommandOnUndoStack(t *testing.T) {
	mem := storage.NewMemory()
	deck, cmd := staleHistory(t)
	ctx := context.Background()
	require.NoError(t, mem.SaveDeck(ctx, "doc-1", deck))
	require.NoError(t, mem.SaveHistory(ctx, "doc-1", history.Snapshot{UndoStack: []command.Command{cmd}}))

	e, _ := newLoaded(t, mem, testOptions())
	before := mustSnapshot(t, e)
	require.Equal(t, 1, before.UndoCount)

	_, err := e.Undo(ctx)
	require.ErrorIs(t, err, ErrInvariantViolation)

	after := mustSnapshot(t, e)
	assert.Equal(t, 1, after.UndoCount)
	assert.Equal(t, 0, after.RedoCount)
	assert.Equal(t, before.Revision, after.Revision)
	assert.True(t, model.Equal(before.Deck, after.Deck))
	assert.Equal(t, StateReady, e.State())
}

func TestRedo_FailureKeepsCommandOnRedoStack(t *testing.T) {
	mem := storage.NewMemory()
	deck, cmd := staleHistory(t)
	ctx := context.Background()
	require.NoError(t, mem.SaveDeck(ctx, "doc-1", deck))
	require.NoError(t, mem.SaveHistory(ctx, "doc-1", history.Snapshot{RedoStack: []command.Command{cmd}}))

	e, _ := newLoaded(t, mem, testOptions())
	before := mustSnapshot(t, e)
	require.Equal(t, 1, before.RedoCount)

	_, err := e.Redo(ctx)
	require.ErrorIs(t, err, ErrInvariantViolation)

	after := mustSnapshot(t, e)
	assert.Equal(t, 0, after.UndoCount)
	assert.Equal(t, 1, after.RedoCount)
	assert.Equal(t, before.Revision, after.Revision)
	assert.True(t, model.Equal(before.Deck, after.Deck))
	assert.Equal(t, StateReady, e.State())
}

func TestApply_NotReady(t *testing.T) {
	e := New("doc", storage.NewMemory(), nil, testOptions())
	assert.Equal(t, StateUnloaded, e.State())

	_, err := e.Apply(context.Background(), command.New(command.AddSlide{}))
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = e.Undo(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = e.Snapshot()
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = e.Subscribe()
	assert.ErrorIs(t, err, ErrNotReady)
	assert.NoError(t, e.Close(context.Background()))
}

// blockingGateway holds LoadDeck until release is closed.
type blockingGateway struct {
	*storage.Memory
	started chan struct{}
	release chan struct{}
	loads   int
	mu      sync.Mutex
}

func newBlockingGateway() *blockingGateway {
	return &blockingGateway{
		Memory:  storage.NewMemory(),
		started: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (g *blockingGateway) LoadDeck(ctx context.Context, id string) (*model.Deck, error) {
	g.mu.Lock()
	g.loads++
	g.mu.Unlock()
	g.started <- struct{}{}
	<-g.release
	return g.Memory.LoadDeck(ctx, id)
}

func (g *blockingGateway) loadCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.loads
}

func TestLoad_CallsDuringLoadingFail(t *testing.T) {
	gw := newBlockingGateway()
	e := New("doc", gw, nil, testOptions())

	done := make(chan error, 1)
	go func() { done <- e.Load(context.Background()) }()
	<-gw.started

	assert.Equal(t, StateLoading, e.State())
	_, err := e.Apply(context.Background(), command.New(command.AddSlide{}))
	assert.ErrorIs(t, err, ErrNotReady)
	assert.ErrorIs(t, e.Load(context.Background()), ErrNotReady)

	close(gw.release)
	require.NoError(t, <-done)
	assert.Equal(t, StateReady, e.State())
	require.NoError(t, e.Close(context.Background()))
}

func TestLoad_FailureLeavesUnloaded(t *testing.T) {
	mem := storage.NewMemory()
	mem.FailLoads = errors.New("connection refused")
	e := New("doc", mem, nil, testOptions())

	err := e.Load(context.Background())
	require.ErrorIs(t, err, ErrLoadFailed)
	assert.Equal(t, StateUnloaded, e.State())

	mem.FailLoads = nil
	require.NoError(t, e.Load(context.Background()))
	assert.Equal(t, StateReady, e.State())
	require.NoError(t, e.Close(context.Background()))
}

func TestLoad_RestoresStoredStateAndBoundsHistory(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()

	deck := model.NewDeck("stored")
	var cmds []command.Command
	for i := 0; i < 5; i++ {
		c, err := command.New(command.AddSlide{}).Prepare(deck)
		require.NoError(t, err)
		require.NoError(t, c.Apply(deck))
		cmds = append(cmds, c)
	}
	require.NoError(t, mem.SaveDeck(ctx, "doc-1", deck))
	require.NoError(t, mem.SaveHistory(ctx, "doc-1", history.Snapshot{UndoStack: cmds}))

	opts := testOptions()
	opts.MaxHistory = 3
	e, _ := newLoaded(t, mem, opts)
	snap := mustSnapshot(t, e)
	assert.Equal(t, "stored", snap.Deck.Meta.Title)
	assert.Len(t, snap.Deck.Slides, 6)
	assert.Equal(t, 3, snap.UndoCount)

	// the retained commands still invert against the loaded deck
	for i := 0; i < 3; i++ {
		_, err := e.Undo(ctx)
		require.NoError(t, err)
	}
	assert.Len(t, mustSnapshot(t, e).Deck.Slides, 3)
}

func TestLoad_DefaultsWhenAbsent(t *testing.T) {
	e, _ := newLoaded(t, storage.NewMemory(), testOptions())
	snap := mustSnapshot(t, e)
	assert.Equal(t, DefaultTitle, snap.Deck.Meta.Title)
	assert.Len(t, snap.Deck.Slides, 1)
	assert.False(t, snap.CanUndo)
}

// =============================================================================
// Persistence
// =============================================================================

func TestPersistence_DebouncedSave(t *testing.T) {
	mem := storage.NewMemory()
	e, _ := newLoaded(t, mem, testOptions())

	for i := 0; i < 5; i++ {
		apply(t, e, command.AddSlide{})
	}
	require.Eventually(t, func() bool { return mem.Has("doc-1") }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, e.Flush(context.Background()))
	snap, err := mem.LoadHistory(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Len(t, snap.UndoStack, 5)
	deck, err := mem.LoadDeck(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Len(t, deck.Slides, 6)
}

func TestPersistence_FailureDoesNotBlockEdits(t *testing.T) {
	mem := storage.NewMemory()
	opts := testOptions()
	opts.Persistence.Wait = time.Hour
	opts.Persistence.MaxWait = 0
	e, _ := newLoaded(t, mem, opts)

	mem.SetFailSaves(errors.New("disk full"))
	apply(t, e, command.AddSlide{})
	assert.Error(t, e.Flush(context.Background()))
	apply(t, e, command.AddSlide{})
	assert.False(t, mem.Has("doc-1"))

	mem.SetFailSaves(nil)
	require.NoError(t, e.Flush(context.Background()))
	deck, err := mem.LoadDeck(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Len(t, deck.Slides, 3)
}

func TestClose_FlushesAndEndsSubscriptions(t *testing.T) {
	mem := storage.NewMemory()
	opts := testOptions()
	opts.Persistence.Wait = time.Hour
	opts.Persistence.MaxWait = 0
	hub := livesync.NewHub(livesync.Options{})
	e := New("doc-1", mem, hub, opts)
	require.NoError(t, e.Load(context.Background()))

	sub, err := e.Subscribe()
	require.NoError(t, err)
	apply(t, e, command.AddSlide{})

	require.NoError(t, e.Close(context.Background()))
	assert.True(t, mem.Has("doc-1"))
	<-sub.Done()
	assert.Equal(t, StateUnloaded, e.State())
	assert.Equal(t, 0, hub.SubscriberCount("doc-1"))

	_, err = e.Apply(context.Background(), command.New(command.AddSlide{}))
	assert.ErrorIs(t, err, ErrNotReady)
	assert.NoError(t, e.Close(context.Background()))
}

// =============================================================================
// Live sync
// =============================================================================

func TestSubscribe_InitMatchesCurrentState(t *testing.T) {
	e, _ := newLoaded(t, storage.NewMemory(), testOptions())
	for i := 0; i < 4; i++ {
		apply(t, e, command.AddSlide{})
	}
	_, err := e.SetActiveSlide(context.Background(), 2)
	require.NoError(t, err)
	current := mustSnapshot(t, e)

	sub, err := e.Subscribe()
	require.NoError(t, err)
	ev := nextEvent(t, sub)
	assert.Equal(t, livesync.KindInit, ev.Kind)
	assert.Equal(t, current.Revision, ev.Revision)
	init := ev.Payload.(livesync.InitPayload)
	assert.True(t, model.Equal(current.Deck, init.Deck))
	assert.Equal(t, 2, init.ActiveSlide)
	assert.True(t, init.CanUndo)
}

func TestSubscribe_DeltasFollowInit(t *testing.T) {
	e, _ := newLoaded(t, storage.NewMemory(), testOptions())
	ctx := context.Background()
	sub, err := e.Subscribe()
	require.NoError(t, err)
	init := nextEvent(t, sub)

	apply(t, e, command.AddSlide{})
	_, err = e.Undo(ctx)
	require.NoError(t, err)
	_, err = e.Redo(ctx)
	require.NoError(t, err)

	wantActions := []livesync.Action{livesync.ActionApply, livesync.ActionUndo, livesync.ActionRedo}
	for i, want := range wantActions {
		ev := nextEvent(t, sub)
		assert.Equal(t, livesync.KindDelta, ev.Kind)
		assert.Equal(t, init.Revision+uint64(i+1), ev.Revision)
		p := ev.Payload.(livesync.DeltaPayload)
		assert.Equal(t, want, p.Action)
		require.NotNil(t, p.Command)
		assert.Equal(t, command.TypeAddSlide, p.Command.Type)
	}
}

func TestSubscribe_DisconnectIsolated(t *testing.T) {
	e, hub := newLoaded(t, storage.NewMemory(), testOptions())
	a, err := e.Subscribe()
	require.NoError(t, err)
	b, err := e.Subscribe()
	require.NoError(t, err)
	nextEvent(t, a)
	nextEvent(t, b)

	hub.Unsubscribe(a)
	apply(t, e, command.AddSlide{})

	_, open := <-a.Events()
	assert.False(t, open)
	ev := nextEvent(t, b)
	assert.Equal(t, livesync.KindDelta, ev.Kind)
}

func TestSetActiveSlide(t *testing.T) {
	e, _ := newLoaded(t, storage.NewMemory(), testOptions())
	ctx := context.Background()
	apply(t, e, command.AddSlide{})
	apply(t, e, command.AddSlide{})
	sub, err := e.Subscribe()
	require.NoError(t, err)
	nextEvent(t, sub)

	res, err := e.SetActiveSlide(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, res.ActiveSlide)
	ev := nextEvent(t, sub)
	p := ev.Payload.(livesync.DeltaPayload)
	assert.Equal(t, livesync.ActionNavigate, p.Action)
	assert.Equal(t, 2, p.ActiveSlide)
	assert.Nil(t, p.Command)
	assert.Equal(t, 2, mustSnapshot(t, e).UndoCount)

	_, err = e.SetActiveSlide(ctx, 3)
	assert.ErrorIs(t, err, command.ErrIndexOutOfRange)

	// deleting the active slide clamps the presenter
	apply(t, e, command.DeleteSlide{Index: 2})
	assert.Equal(t, 1, mustSnapshot(t, e).ActiveSlide)
}

func TestReset(t *testing.T) {
	e, _ := newLoaded(t, storage.NewMemory(), testOptions())
	apply(t, e, command.AddSlide{})
	apply(t, e, command.AddSlide{})
	sub, err := e.Subscribe()
	require.NoError(t, err)
	nextEvent(t, sub)

	res, err := e.Reset(context.Background())
	require.NoError(t, err)
	assert.False(t, res.CanUndo)
	snap := mustSnapshot(t, e)
	assert.Len(t, snap.Deck.Slides, 1)
	assert.Equal(t, 0, snap.UndoCount)

	ev := nextEvent(t, sub)
	p := ev.Payload.(livesync.DeltaPayload)
	assert.Equal(t, livesync.ActionReset, p.Action)
	require.NotNil(t, p.Deck)
	assert.True(t, model.Equal(snap.Deck, p.Deck))
}

// =============================================================================
// Concurrency
// =============================================================================

func TestApply_ConcurrentSerialized(t *testing.T) {
	e, _ := newLoaded(t, storage.NewMemory(), testOptions())
	slideID := firstSlideID(t, e)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Apply(context.Background(), command.New(command.AddElement{
				SlideID: slideID,
				Element: textElement("", 1, 1),
			}))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	snap := mustSnapshot(t, e)
	assert.Len(t, snap.Deck.Slides[0].Elements, 20)
	assert.Equal(t, 20, snap.UndoCount)
	assert.Equal(t, uint64(20), snap.Revision)
	require.NoError(t, snap.Deck.CheckInvariants())

	for i := 0; i < 20; i++ {
		_, err := e.Undo(context.Background())
		require.NoError(t, err)
	}
	assert.Empty(t, mustSnapshot(t, e).Deck.Slides[0].Elements)
}
