// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine is the only mutator of a deck.
//
// # Description
//
// An Engine owns one document: its deck, its history stack, its debounced
// persistence and its live-sync topic. Every edit runs as
// read → prepare → apply → check → push → schedule save → publish under
// the engine's mutex, so an inverse is never computed against state another
// edit has already changed. Engines for different documents share nothing.
//
// A Registry maps document ids to engines with an explicit load/dispose
// lifecycle.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianDeck/services/deck/command"
	"github.com/AleutianAI/AleutianDeck/services/deck/debounce"
	"github.com/AleutianAI/AleutianDeck/services/deck/history"
	"github.com/AleutianAI/AleutianDeck/services/deck/livesync"
	"github.com/AleutianAI/AleutianDeck/services/deck/model"
	"github.com/AleutianAI/AleutianDeck/services/deck/observability"
	"github.com/AleutianAI/AleutianDeck/services/deck/storage"
	"github.com/AleutianAI/AleutianDeck/services/deck/telemetry"
)

// DefaultTitle is the title of a deck created when none is stored.
const DefaultTitle = "Untitled deck"

// =============================================================================
// State
// =============================================================================

// State is the engine lifecycle state.
type State int

const (
	StateUnloaded State = iota
	StateLoading
	StateReady
	StateMutating
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateMutating:
		return "mutating"
	default:
		return "unknown"
	}
}

// =============================================================================
// Options and results
// =============================================================================

// Options configures an Engine.
type Options struct {
	// MaxHistory bounds the undo stack. 0 is unbounded.
	MaxHistory int

	// Persistence times the debounced save.
	Persistence debounce.Config

	Logger      *slog.Logger
	Metrics     *observability.DeckMetrics
	Instruments *telemetry.Instruments
}

// Result is returned by Apply, Undo and Redo.
//
// Applied is false only for Undo/Redo on an empty stack; that is a no-op,
// not an error.
type Result struct {
	Applied     bool             `json:"applied"`
	Command     *command.Command `json:"command,omitempty"`
	Revision    uint64           `json:"revision"`
	ActiveSlide int              `json:"activeSlide"`
	SlideCount  int              `json:"slideCount"`
	CanUndo     bool             `json:"canUndo"`
	CanRedo     bool             `json:"canRedo"`
}

// Snapshot is a deep copy of the engine's state.
type Snapshot struct {
	DocumentID  string      `json:"documentId"`
	Deck        *model.Deck `json:"deck"`
	ActiveSlide int         `json:"activeSlide"`
	Revision    uint64      `json:"revision"`
	UndoCount   int         `json:"undoCount"`
	RedoCount   int         `json:"redoCount"`
	CanUndo     bool        `json:"canUndo"`
	CanRedo     bool        `json:"canRedo"`
}

// =============================================================================
// Engine
// =============================================================================

// Engine owns one document session.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Mutations on one engine are
// serialized; Load releases the lock while it reads the gateway so other
// calls observe StateLoading and fail with ErrNotReady.
type Engine struct {
	id   string
	gw   storage.Gateway
	hub  *livesync.Hub
	opts Options

	mu       sync.Mutex
	state    State
	deck     *model.Deck
	history  *history.Stack
	active   int
	revision uint64
	saver    *debounce.Debouncer

	logger *slog.Logger
}

// New creates an unloaded engine for docID.
func New(docID string, gw storage.Gateway, hub *livesync.Hub, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		id:     docID,
		gw:     gw,
		hub:    hub,
		opts:   opts,
		logger: opts.Logger.With("document_id", docID),
	}
}

// ID returns the document id.
func (e *Engine) ID() string { return e.id }

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Load reads the deck and history from the gateway and makes the engine
// Ready.
//
// # Description
//
// A missing deck starts a default one; a missing history starts empty. The
// history bound is applied on load. Loading a Ready engine is a no-op.
//
// # Outputs
//
//   - error: ErrNotReady if another Load is in progress, ErrLoadFailed for
//     gateway read errors other than not-found or for a stored deck that
//     fails its invariants. The engine is Unloaded after a failure.
func (e *Engine) Load(ctx context.Context) error {
	e.mu.Lock()
	switch e.state {
	case StateReady:
		e.mu.Unlock()
		return nil
	case StateLoading, StateMutating:
		e.mu.Unlock()
		return ErrNotReady
	}
	e.state = StateLoading
	e.mu.Unlock()

	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerEngine, "Engine.Load",
		trace.WithAttributes(attribute.String("document_id", e.id)))
	defer span.End()

	deck, snap, err := e.read(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		telemetry.LoggerWithTrace(ctx, e.logger).Error("document load failed", "error", err)
		e.mu.Lock()
		e.state = StateUnloaded
		e.mu.Unlock()
		return err
	}

	stack := history.NewStack(e.opts.MaxHistory)
	stack.SetHistory(snap.UndoStack, snap.RedoStack)

	e.mu.Lock()
	e.deck = deck
	e.history = stack
	e.active = 0
	e.saver = debounce.New(e.opts.Persistence, e.persist, e.logger)
	e.state = StateReady
	e.mu.Unlock()

	e.opts.Metrics.SessionOpened()
	e.logger.Info("document loaded",
		"slides", len(deck.Slides),
		"undo_count", stack.UndoCount(),
		"redo_count", stack.RedoCount(),
	)
	telemetry.SetSpanOK(span)
	return nil
}

func (e *Engine) read(ctx context.Context) (*model.Deck, history.Snapshot, error) {
	deck, err := e.gw.LoadDeck(ctx, e.id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		deck = model.NewDeck(DefaultTitle)
	case err != nil:
		return nil, history.Snapshot{}, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	default:
		deck.Renumber()
		if err := deck.CheckInvariants(); err != nil {
			return nil, history.Snapshot{}, fmt.Errorf("%w: stored deck: %v", ErrLoadFailed, err)
		}
	}

	snap, err := e.gw.LoadHistory(ctx, e.id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		snap = history.Snapshot{}
	case err != nil:
		return nil, history.Snapshot{}, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}
	return deck, snap, nil
}

// Apply validates cmd against the current deck, applies it and records it.
//
// # Description
//
// Validation failures (command.IsValidation) leave the deck and history
// untouched. If the applied deck breaks an invariant the pre-apply deck is
// restored, the fault is logged with the full command and
// ErrInvariantViolation is returned. On success the redo stack is cleared,
// a save is scheduled and a delta is published.
//
// # Inputs
//
//   - ctx: Used for tracing only; apply is not cancellable.
//   - cmd: Unprepared command, typically from command.Decode.
//
// # Outputs
//
//   - Result: Applied is always true on success.
//   - error: ErrNotReady, a validation error or ErrInvariantViolation.
func (e *Engine) Apply(ctx context.Context, cmd command.Command) (Result, error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerEngine, "Engine.Apply",
		trace.WithAttributes(
			attribute.String("document_id", e.id),
			attribute.String("command_type", string(cmd.Type)),
		))
	defer span.End()

	res, outcome, err := e.apply(ctx, cmd)
	e.opts.Metrics.RecordCommand(string(cmd.Type), outcome)
	e.opts.Instruments.RecordCommand(ctx, string(cmd.Type), outcome, time.Since(start))
	if err != nil {
		telemetry.RecordError(span, err)
		return Result{}, err
	}
	telemetry.SetSpanOK(span)
	return res, nil
}

func (e *Engine) apply(ctx context.Context, cmd command.Command) (Result, string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateReady {
		return Result{}, observability.OutcomeRejected, fmt.Errorf("%w: %s", ErrNotReady, e.state)
	}

	prepared, err := cmd.Prepare(e.deck)
	if err != nil {
		return Result{}, observability.OutcomeRejected, err
	}

	e.state = StateMutating
	defer func() { e.state = StateReady }()

	if err := e.mutate(ctx, prepared, prepared.Apply); err != nil {
		return Result{}, observability.OutcomeInvariant, err
	}
	e.history.Push(prepared)
	return e.commit(livesync.ActionApply, &prepared), observability.OutcomeOK, nil
}

// Undo reverts the most recent command. With nothing to undo it returns
// Result{Applied: false} and changes nothing.
func (e *Engine) Undo(ctx context.Context) (Result, error) {
	return e.step(ctx, livesync.ActionUndo)
}

// Redo re-applies the most recently undone command. With nothing to redo
// it returns Result{Applied: false} and changes nothing.
func (e *Engine) Redo(ctx context.Context) (Result, error) {
	return e.step(ctx, livesync.ActionRedo)
}

func (e *Engine) step(ctx context.Context, action livesync.Action) (Result, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerEngine, "Engine."+string(action),
		trace.WithAttributes(attribute.String("document_id", e.id)))
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateReady {
		err := fmt.Errorf("%w: %s", ErrNotReady, e.state)
		telemetry.RecordError(span, err)
		return Result{}, err
	}

	var (
		cmd command.Command
		ok  bool
	)
	if action == livesync.ActionUndo {
		cmd, ok = e.history.Undo()
	} else {
		cmd, ok = e.history.Redo()
	}
	e.opts.Metrics.RecordUndoRedo(string(action), ok)
	if !ok {
		return e.result(false, nil), nil
	}

	e.state = StateMutating
	defer func() { e.state = StateReady }()

	fn := cmd.Revert
	if action == livesync.ActionRedo {
		fn = cmd.Apply
	}
	if err := e.mutate(ctx, cmd, fn); err != nil {
		// put the command back where it came from
		if action == livesync.ActionUndo {
			e.history.Redo()
		} else {
			e.history.Undo()
		}
		telemetry.RecordError(span, err)
		return Result{}, err
	}
	return e.commit(action, &cmd), nil
}

// mutate runs fn on the deck and checks invariants, restoring the
// pre-mutation deck on any failure. Called with e.mu held.
func (e *Engine) mutate(ctx context.Context, cmd command.Command, fn func(*model.Deck) error) error {
	before := e.deck.Clone()
	err := fn(e.deck)
	if err == nil {
		err = e.deck.CheckInvariants()
	}
	if err == nil {
		return nil
	}
	e.deck = before
	params, _ := json.Marshal(cmd)
	telemetry.LoggerWithTrace(ctx, e.logger).Error("command broke deck invariants; state restored",
		"command_type", string(cmd.Type),
		"command", string(params),
		"error", err,
	)
	return fmt.Errorf("%w: %s: %v", ErrInvariantViolation, cmd.Type, err)
}

// commit finishes a successful mutation: clamp the active slide, bump the
// revision, schedule a save and publish. Called with e.mu held.
func (e *Engine) commit(action livesync.Action, cmd *command.Command) Result {
	if e.active >= len(e.deck.Slides) {
		e.active = len(e.deck.Slides) - 1
	}
	e.revision++
	e.saver.Trigger()
	e.publish(livesync.DeltaPayload{Action: action, Command: cmd})
	return e.result(true, cmd)
}

func (e *Engine) result(applied bool, cmd *command.Command) Result {
	return Result{
		Applied:     applied,
		Command:     cmd,
		Revision:    e.revision,
		ActiveSlide: e.active,
		SlideCount:  len(e.deck.Slides),
		CanUndo:     e.history.CanUndo(),
		CanRedo:     e.history.CanRedo(),
	}
}

// publish fills the common delta fields and sends it. Called with e.mu
// held; Hub.Publish never blocks.
func (e *Engine) publish(p livesync.DeltaPayload) {
	if e.hub == nil {
		return
	}
	p.ActiveSlide = e.active
	p.SlideCount = len(e.deck.Slides)
	p.CanUndo = e.history.CanUndo()
	p.CanRedo = e.history.CanRedo()
	n := e.hub.Publish(e.id, livesync.Event{
		Kind:            livesync.KindDelta,
		Revision:        e.revision,
		Payload:         p,
		OriginTimestamp: time.Now().UTC(),
	})
	e.opts.Instruments.RecordFanout(context.Background(), n)
}

// SetActiveSlide moves the presenter to slide index. It is session state:
// not recorded in history and not persisted.
func (e *Engine) SetActiveSlide(ctx context.Context, index int) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateReady {
		return Result{}, fmt.Errorf("%w: %s", ErrNotReady, e.state)
	}
	if index < 0 || index >= len(e.deck.Slides) {
		return Result{}, fmt.Errorf("%w: slide %d not in [0,%d)", command.ErrIndexOutOfRange, index, len(e.deck.Slides))
	}
	e.active = index
	e.revision++
	e.publish(livesync.DeltaPayload{Action: livesync.ActionNavigate})
	return e.result(true, nil), nil
}

// Reset replaces the deck with a default one and clears history.
func (e *Engine) Reset(ctx context.Context) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateReady {
		return Result{}, fmt.Errorf("%w: %s", ErrNotReady, e.state)
	}
	title := e.deck.Meta.Title
	e.deck = model.NewDeck(title)
	e.history.Clear()
	e.active = 0
	e.revision++
	e.saver.Trigger()
	e.publish(livesync.DeltaPayload{Action: livesync.ActionReset, Deck: e.deck.Clone()})
	e.logger.Info("document reset")
	return e.result(true, nil), nil
}

// Snapshot returns a deep copy of the current state.
func (e *Engine) Snapshot() (Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateReady {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotReady, e.state)
	}
	return Snapshot{
		DocumentID:  e.id,
		Deck:        e.deck.Clone(),
		ActiveSlide: e.active,
		Revision:    e.revision,
		UndoCount:   e.history.UndoCount(),
		RedoCount:   e.history.RedoCount(),
		CanUndo:     e.history.CanUndo(),
		CanRedo:     e.history.CanRedo(),
	}, nil
}

// History returns a serializable copy of the undo and redo stacks.
func (e *Engine) History() (history.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateReady {
		return history.Snapshot{}, fmt.Errorf("%w: %s", ErrNotReady, e.state)
	}
	return e.history.Snapshot(), nil
}

// Subscribe registers a viewer. The init event is built under the engine
// lock, so the subscriber receives exactly the deltas committed after it.
func (e *Engine) Subscribe() (*livesync.Subscription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateReady {
		return nil, fmt.Errorf("%w: %s", ErrNotReady, e.state)
	}
	if e.hub == nil {
		return nil, errors.New("engine has no live-sync hub")
	}
	return e.hub.Subscribe(e.id, livesync.Event{
		Revision: e.revision,
		Payload: livesync.InitPayload{
			Deck:        e.deck.Clone(),
			ActiveSlide: e.active,
			CanUndo:     e.history.CanUndo(),
			CanRedo:     e.history.CanRedo(),
		},
		OriginTimestamp: time.Now().UTC(),
	}), nil
}

// Flush writes pending changes now.
func (e *Engine) Flush(ctx context.Context) error {
	e.mu.Lock()
	saver := e.saver
	e.mu.Unlock()
	if saver == nil {
		return nil
	}
	return saver.Flush(ctx)
}

// Close flushes pending changes, closes the topic and returns the engine
// to Unloaded.
//
// # Outputs
//
//   - error: The final save error, if any. The engine is Unloaded either
//     way.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	switch e.state {
	case StateUnloaded:
		e.mu.Unlock()
		return nil
	case StateLoading:
		e.mu.Unlock()
		return ErrNotReady
	}
	saver := e.saver
	e.mu.Unlock()

	// Flush before marking Unloaded so no edit is accepted after the last
	// write; persist takes the lock itself.
	var err error
	if saver != nil {
		err = saver.Flush(ctx)
	}

	e.mu.Lock()
	e.state = StateUnloaded
	e.saver = nil
	e.mu.Unlock()

	if saver != nil {
		saver.Stop()
	}
	if e.hub != nil {
		e.hub.CloseTopic(e.id)
	}
	e.opts.Metrics.SessionClosed()
	if err != nil {
		e.logger.Error("final save failed on close", "error", err)
	} else {
		e.logger.Info("document closed")
	}
	return err
}

// persist writes the deck and history. It runs on the debouncer goroutine
// and copies state under the lock, so edits continue during the write.
func (e *Engine) persist(ctx context.Context) error {
	e.mu.Lock()
	if e.deck == nil {
		e.mu.Unlock()
		return nil
	}
	deck := e.deck.Clone()
	snap := e.history.Snapshot()
	e.mu.Unlock()

	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerEngine, "Engine.persist",
		trace.WithAttributes(attribute.String("document_id", e.id)))
	defer span.End()

	start := time.Now()
	err := e.gw.SaveDeck(ctx, e.id, deck)
	if err == nil {
		err = e.gw.SaveHistory(ctx, e.id, snap)
	}
	e.opts.Metrics.RecordPersist(time.Since(start).Seconds(), err)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("persist %s: %w", e.id, err)
	}
	if e.opts.Instruments != nil {
		if raw, encErr := storage.EncodeDeck(deck); encErr == nil {
			e.opts.Instruments.RecordSnapshotSize(ctx, "gateway", len(raw))
		}
	}
	e.logger.Debug("document persisted",
		"undo_count", len(snap.UndoStack),
		"redo_count", len(snap.RedoStack),
	)
	return nil
}
