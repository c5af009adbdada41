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
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/AleutianDeck/pkg/validation"
	"github.com/AleutianAI/AleutianDeck/services/deck/livesync"
	"github.com/AleutianAI/AleutianDeck/services/deck/storage"
)

// Registry maps document ids to their engines.
//
// # Description
//
// Load creates and loads an engine on first use; concurrent loads of the
// same id share one gateway read. Dispose flushes and closes an engine and
// forgets it. A Load that arrives while the same id is being disposed
// waits for the final flush, so one document never has two live engines.
// There is no process-wide registry; callers own one.
//
// # Thread Safety
//
// Safe for concurrent use.
type Registry struct {
	gw   storage.Gateway
	hub  *livesync.Hub
	opts Options

	mu      sync.RWMutex
	engines map[string]*Engine
	// disposing holds a channel per id whose engine is closing; it is
	// closed once the close returns.
	disposing map[string]chan struct{}
	loads     singleflight.Group
}

// NewRegistry creates an empty registry. All engines share gw, hub and
// opts.
func NewRegistry(gw storage.Gateway, hub *livesync.Hub, opts Options) *Registry {
	return &Registry{
		gw:      gw,
		hub:     hub,
		opts:    opts,
		engines:   make(map[string]*Engine),
		disposing: make(map[string]chan struct{}),
	}
}

// Load returns the Ready engine for docID, loading it if needed.
//
// # Outputs
//
//   - *Engine: Ready engine.
//   - error: validation.ErrInvalidDocumentID for a malformed id, ctx's
//     error if it ends while waiting for a dispose of the same id, or
//     ErrLoadFailed (wrapped) if the gateway read failed. Nothing is
//     registered in that case, so a later Load retries.
//
// The shared gateway read is detached from ctx cancellation, so one
// caller going away does not fail the others waiting on the same load.
func (r *Registry) Load(ctx context.Context, docID string) (*Engine, error) {
	if err := validation.ValidateDocumentID(docID); err != nil {
		return nil, err
	}
	if e, err := r.Get(docID); err == nil {
		return e, nil
	}
	if err := r.awaitDispose(ctx, docID); err != nil {
		return nil, err
	}

	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := r.loads.Do(docID, func() (any, error) {
		if err := r.awaitDispose(loadCtx, docID); err != nil {
			return nil, err
		}
		if e, err := r.Get(docID); err == nil {
			return e, nil
		}
		e := New(docID, r.gw, r.hub, r.opts)
		if err := e.Load(loadCtx); err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.engines[docID] = e
		r.mu.Unlock()
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Engine), nil
}

// Get returns the engine for docID or ErrNotLoaded.
func (r *Registry) Get(docID string) (*Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[docID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotLoaded, docID)
	}
	return e, nil
}

// Dispose flushes and closes the engine for docID and removes it. Loads
// of docID block until the close returns.
func (r *Registry) Dispose(ctx context.Context, docID string) error {
	r.mu.Lock()
	e, ok := r.engines[docID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotLoaded, docID)
	}
	delete(r.engines, docID)
	done := make(chan struct{})
	r.disposing[docID] = done
	r.mu.Unlock()

	defer r.finishDispose(docID, done)
	return e.Close(ctx)
}

// DisposeAll closes every engine. Errors are joined.
func (r *Registry) DisposeAll(ctx context.Context) error {
	r.mu.Lock()
	engines := r.engines
	r.engines = make(map[string]*Engine)
	pending := make(map[string]chan struct{}, len(engines))
	for id := range engines {
		done := make(chan struct{})
		r.disposing[id] = done
		pending[id] = done
	}
	r.mu.Unlock()

	var errs []error
	for id, e := range engines {
		errs = append(errs, e.Close(ctx))
		r.finishDispose(id, pending[id])
	}
	return errors.Join(errs...)
}

func (r *Registry) finishDispose(docID string, done chan struct{}) {
	r.mu.Lock()
	if r.disposing[docID] == done {
		delete(r.disposing, docID)
	}
	r.mu.Unlock()
	close(done)
}

// awaitDispose blocks while an engine for docID is closing.
func (r *Registry) awaitDispose(ctx context.Context, docID string) error {
	r.mu.RLock()
	done := r.disposing[docID]
	r.mu.RUnlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IDs returns the loaded document ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.engines))
	for id := range r.engines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Gateway returns the storage gateway engines persist to.
func (r *Registry) Gateway() storage.Gateway { return r.gw }

// Hub returns the live-sync hub engines publish on.
func (r *Registry) Hub() *livesync.Hub { return r.hub }
