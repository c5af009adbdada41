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
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianDeck/pkg/extensions"
	"github.com/AleutianAI/AleutianDeck/services/deck/command"
	"github.com/AleutianAI/AleutianDeck/services/deck/engine"
	"github.com/AleutianAI/AleutianDeck/services/deck/middleware"
	"github.com/AleutianAI/AleutianDeck/services/deck/observability"
)

// DefaultMaxBodyBytes bounds a command request body.
const DefaultMaxBodyBytes = 4 << 20

// DefaultKeepAlive is the live-sync keep-alive interval.
const DefaultKeepAlive = 15 * time.Second

// Options configures a DeckHandler.
type Options struct {
	// KeepAlive is the interval between ping frames on idle streams.
	KeepAlive time.Duration

	// MaxBodyBytes bounds command bodies. 0 uses DefaultMaxBodyBytes.
	MaxBodyBytes int64

	// AllowedOrigins restricts websocket upgrades. Empty allows any origin.
	AllowedOrigins []string

	Metrics *observability.DeckMetrics
	Audit   extensions.AuditLogger
	Logger  *slog.Logger
}

// DeckHandler serves the document endpoints.
//
// # Thread Safety
//
// Safe for concurrent use; all state lives in the registry.
type DeckHandler struct {
	reg  *engine.Registry
	opts Options
}

// NewDeckHandler creates handlers over reg.
func NewDeckHandler(reg *engine.Registry, opts Options) *DeckHandler {
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = DefaultKeepAlive
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.Audit == nil {
		opts.Audit = &extensions.NopAuditLogger{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &DeckHandler{reg: reg, opts: opts}
}

// NavigateRequest is the body of POST /documents/:id/navigate.
type NavigateRequest struct {
	SlideIndex *int `json:"slideIndex" binding:"required,min=0"`
}

// DisposeResponse is returned by DELETE /documents/:id.
type DisposeResponse struct {
	DocumentID string `json:"documentId"`
	Disposed   bool   `json:"disposed"`
}

// =============================================================================
// Session lifecycle
// =============================================================================

// Load handles POST /documents/:id/load. Loading a loaded document returns
// its current snapshot.
func (h *DeckHandler) Load(c *gin.Context) {
	id := c.Param("id")
	e, err := h.reg.Load(c.Request.Context(), id)
	if err != nil {
		h.opts.Logger.Error("document load failed", "document_id", id, "error", err)
		writeError(c, err)
		return
	}
	h.writeSnapshot(c, e)
}

// Get handles GET /documents/:id.
func (h *DeckHandler) Get(c *gin.Context) {
	e, ok := h.engine(c)
	if !ok {
		return
	}
	h.writeSnapshot(c, e)
}

// History handles GET /documents/:id/history.
func (h *DeckHandler) History(c *gin.Context) {
	e, ok := h.engine(c)
	if !ok {
		return
	}
	snap, err := e.History()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Dispose handles DELETE /documents/:id: flush, close viewers and forget
// the session. A failed final save is logged; the session is gone either
// way.
func (h *DeckHandler) Dispose(c *gin.Context) {
	id := c.Param("id")
	err := h.reg.Dispose(c.Request.Context(), id)
	if errors.Is(err, engine.ErrNotLoaded) {
		writeError(c, err)
		return
	}
	h.audit(c, extensions.EventDeckDispose, extensions.ActionAdmin, err, nil)
	if err != nil {
		h.opts.Logger.Error("final save failed on dispose", "document_id", id, "error", err)
	}
	c.JSON(http.StatusOK, DisposeResponse{DocumentID: id, Disposed: true})
}

// =============================================================================
// Editing
// =============================================================================

// Command handles POST /documents/:id/commands with a {type, params} body.
func (h *DeckHandler) Command(c *gin.Context) {
	e, ok := h.engine(c)
	if !ok {
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxBodyBytes))
	if err != nil {
		writeBadRequest(c, "request body too large or unreadable")
		return
	}
	cmd, err := command.Decode(body)
	if err != nil {
		writeError(c, err)
		return
	}

	res, err := e.Apply(c.Request.Context(), cmd)
	h.audit(c, extensions.EventDeckCommand, extensions.ActionCommand, err, map[string]any{
		"command_type": string(cmd.Type),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Undo handles POST /documents/:id/undo. An empty stack returns 200 with
// applied=false.
func (h *DeckHandler) Undo(c *gin.Context) {
	h.step(c, extensions.EventDeckUndo, (*engine.Engine).Undo)
}

// Redo handles POST /documents/:id/redo.
func (h *DeckHandler) Redo(c *gin.Context) {
	h.step(c, extensions.EventDeckRedo, (*engine.Engine).Redo)
}

func (h *DeckHandler) step(c *gin.Context, event string, fn func(*engine.Engine, context.Context) (engine.Result, error)) {
	e, ok := h.engine(c)
	if !ok {
		return
	}
	res, err := fn(e, c.Request.Context())
	h.audit(c, event, extensions.ActionCommand, err, map[string]any{"applied": res.Applied})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Navigate handles POST /documents/:id/navigate.
func (h *DeckHandler) Navigate(c *gin.Context) {
	e, ok := h.engine(c)
	if !ok {
		return
	}
	var req NavigateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "slideIndex must be a non-negative integer")
		return
	}
	res, err := e.SetActiveSlide(c.Request.Context(), *req.SlideIndex)
	h.audit(c, extensions.EventDeckNavigate, extensions.ActionCommand, err, map[string]any{
		"slide_index": *req.SlideIndex,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Reset handles POST /documents/:id/reset.
func (h *DeckHandler) Reset(c *gin.Context) {
	e, ok := h.engine(c)
	if !ok {
		return
	}
	res, err := e.Reset(c.Request.Context())
	h.audit(c, extensions.EventDeckReset, extensions.ActionAdmin, err, nil)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// =============================================================================
// Helpers
// =============================================================================

// engine resolves :id or writes the error response.
func (h *DeckHandler) engine(c *gin.Context) (*engine.Engine, bool) {
	e, err := h.reg.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return e, true
}

func (h *DeckHandler) writeSnapshot(c *gin.Context, e *engine.Engine) {
	snap, err := e.Snapshot()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *DeckHandler) audit(c *gin.Context, eventType, action string, err error, meta map[string]any) {
	outcome := extensions.OutcomeSuccess
	if err != nil {
		outcome = extensions.OutcomeFailure
		if meta == nil {
			meta = map[string]any{}
		}
		_, meta["error_code"] = classify(err)
	}
	if logErr := h.opts.Audit.Log(c.Request.Context(), extensions.AuditEvent{
		EventType:    eventType,
		UserID:       middleware.UserID(c),
		Action:       action,
		ResourceType: extensions.ResourceDeck,
		ResourceID:   c.Param("id"),
		Outcome:      outcome,
		Metadata:     meta,
	}); logErr != nil {
		h.opts.Logger.Warn("audit log failed", "event_type", eventType, "error", logErr)
	}
}
