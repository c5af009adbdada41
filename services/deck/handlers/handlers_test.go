// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianDeck/pkg/extensions"
	"github.com/AleutianAI/AleutianDeck/pkg/validation"
	"github.com/AleutianAI/AleutianDeck/services/deck/command"
	"github.com/AleutianAI/AleutianDeck/services/deck/debounce"
	"github.com/AleutianAI/AleutianDeck/services/deck/engine"
	"github.com/AleutianAI/AleutianDeck/services/deck/history"
	"github.com/AleutianAI/AleutianDeck/services/deck/livesync"
	"github.com/AleutianAI/AleutianDeck/services/deck/observability"
	"github.com/AleutianAI/AleutianDeck/services/deck/storage"
)

// =============================================================================
// Test Setup
// =============================================================================

func init() {
	gin.SetMode(gin.TestMode)
}

type recordingAudit struct {
	mu     sync.Mutex
	events []extensions.AuditEvent
}

func (r *recordingAudit) Log(_ context.Context, ev extensions.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingAudit) Flush(context.Context) error { return nil }

func (r *recordingAudit) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.EventType
	}
	return out
}

type fixture struct {
	mem     *storage.Memory
	reg     *engine.Registry
	metrics *observability.DeckMetrics
	audit   *recordingAudit
	router  *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithBuffer(t, 32)
}

// newFixtureWithBuffer builds a fixture whose hub queues at most buffer
// events per subscriber.
func newFixtureWithBuffer(t *testing.T, buffer int) *fixture {
	t.Helper()
	mem := storage.NewMemory()
	metrics := observability.NewDeckMetrics(prometheus.NewRegistry())
	hub := livesync.NewHub(livesync.Options{Buffer: buffer, Metrics: metrics})
	reg := engine.NewRegistry(mem, hub, engine.Options{
		Persistence: debounce.Config{Wait: 10 * time.Millisecond, MaxWait: 50 * time.Millisecond, RunTimeout: time.Second},
		Metrics:     metrics,
	})
	t.Cleanup(func() { _ = reg.DisposeAll(context.Background()) })

	audit := &recordingAudit{}
	h := NewDeckHandler(reg, Options{
		KeepAlive: 25 * time.Millisecond,
		Metrics:   metrics,
		Audit:     audit,
	})

	r := gin.New()
	r.GET("/health", h.Health)
	docs := r.Group("/v1/documents/:id")
	docs.POST("/load", h.Load)
	docs.GET("", h.Get)
	docs.DELETE("", h.Dispose)
	docs.GET("/history", h.History)
	docs.POST("/commands", h.Command)
	docs.POST("/undo", h.Undo)
	docs.POST("/redo", h.Redo)
	docs.POST("/navigate", h.Navigate)
	docs.POST("/reset", h.Reset)
	docs.GET("/events", h.Events)
	docs.GET("/ws", h.WebSocket)

	return &fixture{mem: mem, reg: reg, metrics: metrics, audit: audit, router: r}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) load(t *testing.T, id string) {
	t.Helper()
	w := f.do(http.MethodPost, "/v1/documents/"+id+"/load", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[errorBody](t, w).Error.Code
}

// =============================================================================
// Lifecycle
// =============================================================================

func TestLoadAndGet(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/v1/documents/d1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CodeNotLoaded, errorCode(t, w))

	w = f.do(http.MethodPost, "/v1/documents/d1/load", "")
	require.Equal(t, http.StatusOK, w.Code)
	snap := decode[engine.Snapshot](t, w)
	assert.Equal(t, "d1", snap.DocumentID)
	assert.Equal(t, engine.DefaultTitle, snap.Deck.Meta.Title)
	assert.Len(t, snap.Deck.Slides, 1)

	// loading again is idempotent
	w = f.do(http.MethodPost, "/v1/documents/d1/load", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/v1/documents/d1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, snap.Deck.Slides[0].ID, decode[engine.Snapshot](t, w).Deck.Slides[0].ID)

	w = f.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"d1"}, decode[HealthResponse](t, w).Documents)
}

func TestLoad_GatewayFailure(t *testing.T) {
	f := newFixture(t)
	f.mem.FailLoads = errors.New("connection reset")

	w := f.do(http.MethodPost, "/v1/documents/d1/load", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	body := decode[errorBody](t, w)
	assert.Equal(t, CodeLoadFailed, body.Error.Code)
	assert.NotContains(t, body.Error.Message, "connection reset")
}

func TestLoad_InvalidDocumentID(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodPost, "/v1/documents/bad%3Aid/load", "")
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Equal(t, CodeInvalidRequest, errorCode(t, w))
}

func TestDispose(t *testing.T) {
	f := newFixture(t)
	f.load(t, "d1")
	w := f.do(http.MethodPost, "/v1/documents/d1/commands", `{"type":"addSlide","params":{}}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodDelete, "/v1/documents/d1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[DisposeResponse](t, w).Disposed)
	assert.True(t, f.mem.Has("d1"), "dispose flushes")

	w = f.do(http.MethodDelete, "/v1/documents/d1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = f.do(http.MethodPost, "/v1/documents/d1/undo", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// =============================================================================
// Editing
// =============================================================================

func TestCommandUndoRedo(t *testing.T) {
	f := newFixture(t)
	f.load(t, "d1")

	w := f.do(http.MethodPost, "/v1/documents/d1/commands", `{"type":"addSlide","params":{}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[engine.Result](t, w)
	assert.True(t, res.Applied)
	assert.Equal(t, 2, res.SlideCount)
	assert.True(t, res.CanUndo)
	require.NotNil(t, res.Command)
	assert.Equal(t, command.TypeAddSlide, res.Command.Type)

	w = f.do(http.MethodPost, "/v1/documents/d1/undo", "")
	require.Equal(t, http.StatusOK, w.Code)
	res = decode[engine.Result](t, w)
	assert.True(t, res.Applied)
	assert.Equal(t, 1, res.SlideCount)

	w = f.do(http.MethodPost, "/v1/documents/d1/undo", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[engine.Result](t, w).Applied)

	w = f.do(http.MethodPost, "/v1/documents/d1/redo", "")
	require.Equal(t, http.StatusOK, w.Code)
	res = decode[engine.Result](t, w)
	assert.True(t, res.Applied)
	assert.Equal(t, 2, res.SlideCount)

	w = f.do(http.MethodGet, "/v1/documents/d1/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	h := decode[history.Snapshot](t, w)
	assert.Len(t, h.UndoStack, 1)
	assert.Empty(t, h.RedoStack)

	assert.Equal(t, []string{
		extensions.EventDeckCommand, extensions.EventDeckUndo, extensions.EventDeckUndo, extensions.EventDeckRedo,
	}, f.audit.types())
}

func TestCommand_Errors(t *testing.T) {
	f := newFixture(t)
	f.load(t, "d1")

	tests := []struct {
		name string
		body string
		code string
	}{
		{"unknown type", `{"type":"explode","params":{}}`, CodeInvalidCommand},
		{"malformed json", `{"type":`, CodeInvalidCommand},
		{"unknown field", `{"type":"deleteSlide","params":{"index":0,"bogus":1}}`, CodeInvalidCommand},
		{"missing element", `{"type":"deleteElement","params":{"elementId":"nope"}}`, CodeTargetNotFound},
		{"slide out of range", `{"type":"deleteSlide","params":{"index":7}}`, CodeIndexOutOfRange},
		{"last slide", `{"type":"deleteSlide","params":{"index":0}}`, CodeInvalidCommand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodPost, "/v1/documents/d1/commands", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.code, errorCode(t, w))
		})
	}

	w := f.do(http.MethodGet, "/v1/documents/d1", "")
	snap := decode[engine.Snapshot](t, w)
	assert.Equal(t, 0, snap.UndoCount)
	assert.Equal(t, uint64(0), snap.Revision)
}

func TestCommand_BodyTooLarge(t *testing.T) {
	f := newFixture(t)
	f.load(t, "d1")
	big := fmt.Sprintf(`{"type":"addSlide","params":{"pad":"%s"}}`, strings.Repeat("x", DefaultMaxBodyBytes+1))
	w := f.do(http.MethodPost, "/v1/documents/d1/commands", big)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeInvalidRequest, errorCode(t, w))
}

func TestNavigate(t *testing.T) {
	f := newFixture(t)
	f.load(t, "d1")
	f.do(http.MethodPost, "/v1/documents/d1/commands", `{"type":"addSlide","params":{}}`)

	w := f.do(http.MethodPost, "/v1/documents/d1/navigate", `{"slideIndex":1}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, decode[engine.Result](t, w).ActiveSlide)

	w = f.do(http.MethodPost, "/v1/documents/d1/navigate", `{"slideIndex":0}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 0, decode[engine.Result](t, w).ActiveSlide)

	w = f.do(http.MethodPost, "/v1/documents/d1/navigate", `{"slideIndex":9}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeIndexOutOfRange, errorCode(t, w))

	for _, body := range []string{`{}`, `{"slideIndex":-1}`, `not json`} {
		w = f.do(http.MethodPost, "/v1/documents/d1/navigate", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, CodeInvalidRequest, errorCode(t, w), body)
	}
}

func TestReset(t *testing.T) {
	f := newFixture(t)
	f.load(t, "d1")
	f.do(http.MethodPost, "/v1/documents/d1/commands", `{"type":"addSlide","params":{}}`)

	w := f.do(http.MethodPost, "/v1/documents/d1/reset", "")
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[engine.Result](t, w)
	assert.Equal(t, 1, res.SlideCount)
	assert.False(t, res.CanUndo)
}

// =============================================================================
// Error mapping
// =============================================================================

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("x: %w", command.ErrTargetNotFound), http.StatusBadRequest, CodeTargetNotFound},
		{command.ErrIndexOutOfRange, http.StatusBadRequest, CodeIndexOutOfRange},
		{command.ErrInvalidParams, http.StatusBadRequest, CodeInvalidCommand},
		{command.ErrUnknownType, http.StatusBadRequest, CodeInvalidCommand},
		{command.ErrMalformed, http.StatusBadRequest, CodeInvalidCommand},
		{engine.ErrNotLoaded, http.StatusNotFound, CodeNotLoaded},
		{engine.ErrNotReady, http.StatusConflict, CodeNotReady},
		{engine.ErrInvariantViolation, http.StatusInternalServerError, CodeInvariantViolation},
		{engine.ErrLoadFailed, http.StatusBadGateway, CodeLoadFailed},
		{fmt.Errorf("%w: empty", validation.ErrInvalidDocumentID), http.StatusBadRequest, CodeInvalidRequest},
		{errors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tt := range tests {
		status, code := classify(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.code, code, tt.err.Error())
	}
}
