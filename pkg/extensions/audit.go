// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extensions

import (
	"context"
	"log/slog"
	"time"
)

// Audit event types emitted by the HTTP layer.
const (
	EventAuthFailed   = "auth.failed"
	EventAuthzDenied  = "authz.denied"
	EventDeckCommand  = "deck.command"
	EventDeckUndo     = "deck.undo"
	EventDeckRedo     = "deck.redo"
	EventDeckReset    = "deck.reset"
	EventDeckDispose  = "deck.dispose"
	EventDeckNavigate = "deck.navigate"
)

// Outcome values for AuditEvent.Outcome.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeDenied  = "denied"
)

// AuditEvent is one security-relevant event.
type AuditEvent struct {
	// EventType is "category.action", e.g. "deck.command".
	EventType string
	// Timestamp is UTC; loggers set it when zero.
	Timestamp    time.Time
	UserID       string
	Action       string
	ResourceType string
	ResourceID   string
	Outcome      string
	Metadata     map[string]any
}

// AuditLogger records audit events. Log should return quickly.
type AuditLogger interface {
	Log(ctx context.Context, event AuditEvent) error
	// Flush persists buffered events before shutdown.
	Flush(ctx context.Context) error
}

// NopAuditLogger discards every event.
type NopAuditLogger struct{}

func (l *NopAuditLogger) Log(context.Context, AuditEvent) error { return nil }
func (l *NopAuditLogger) Flush(context.Context) error           { return nil }

// SlogAuditLogger writes each event as one structured log record at Info,
// or Warn for failures and denials.
type SlogAuditLogger struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewSlogAuditLogger tags records with component=audit.
func NewSlogAuditLogger(logger *slog.Logger) *SlogAuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAuditLogger{
		logger: logger.With("component", "audit"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (l *SlogAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now()
	}
	level := slog.LevelInfo
	if event.Outcome == OutcomeFailure || event.Outcome == OutcomeDenied {
		level = slog.LevelWarn
	}
	attrs := []slog.Attr{
		slog.String("event_type", event.EventType),
		slog.Time("event_time", event.Timestamp),
		slog.String("user_id", event.UserID),
		slog.String("action", event.Action),
		slog.String("resource_type", event.ResourceType),
		slog.String("resource_id", event.ResourceID),
		slog.String("outcome", event.Outcome),
	}
	if len(event.Metadata) > 0 {
		meta := make([]any, 0, len(event.Metadata)*2)
		for k, v := range event.Metadata {
			meta = append(meta, k, v)
		}
		attrs = append(attrs, slog.Group("metadata", meta...))
	}
	l.logger.LogAttrs(ctx, level, "audit", attrs...)
	return nil
}

// Flush is a no-op; records are written synchronously.
func (l *SlogAuditLogger) Flush(context.Context) error { return nil }

var (
	_ AuditLogger = (*NopAuditLogger)(nil)
	_ AuditLogger = (*SlogAuditLogger)(nil)
)
