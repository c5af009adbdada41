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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianDeck/services/deck/livesync"
)

// =============================================================================
// Frames
// =============================================================================

// FrameKindError is the kind of the frame sent before a server-side close.
const FrameKindError = "error"

// Frame is the wire form of a live-sync event on both transports.
//
// Each frame is assigned:
//   - ID: UUID v4
//   - CreatedAt: Unix milliseconds
//   - Hash: SHA-256 over the frame content and PrevHash
//   - PrevHash: Hash of the previous frame on the same connection
//
// A viewer can verify the chain to detect frames altered or dropped by an
// intermediary; Revision gaps reveal deltas the hub dropped.
type Frame struct {
	ID              string          `json:"id"`
	Kind            string          `json:"kind"`
	Topic           string          `json:"topic"`
	Revision        uint64          `json:"revision"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	OriginTimestamp time.Time       `json:"originTimestamp"`
	CreatedAt       int64           `json:"createdAt"`
	Hash            string          `json:"hash"`
	PrevHash        string          `json:"prevHash"`
}

// frameChain builds hash-chained frames for one connection. Not safe for
// concurrent use; callers serialize.
type frameChain struct {
	prevHash string
}

func (fc *frameChain) next(kind, topic string, revision uint64, payload any, origin time.Time) (Frame, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Frame{}, fmt.Errorf("marshal payload: %w", err)
		}
		raw = b
	}
	f := Frame{
		ID:              uuid.NewString(),
		Kind:            kind,
		Topic:           topic,
		Revision:        revision,
		Payload:         raw,
		OriginTimestamp: origin,
		CreatedAt:       time.Now().UnixMilli(),
		PrevHash:        fc.prevHash,
	}
	f.Hash = frameHash(f)
	fc.prevHash = f.Hash
	return f, nil
}

func (fc *frameChain) event(ev livesync.Event) (Frame, error) {
	return fc.next(string(ev.Kind), ev.Topic, ev.Revision, ev.Payload, ev.OriginTimestamp)
}

// VerifyFrame recomputes f's hash and checks it links to prevHash. The
// payload is hashed as received, so a decoded Frame verifies as-is.
func VerifyFrame(f Frame, prevHash string) bool {
	return f.PrevHash == prevHash && frameHash(f) == f.Hash
}

func frameHash(f Frame) string {
	input := fmt.Sprintf("%s|%s|%s|%d|%d|%s|%s",
		f.ID, f.Kind, f.Topic, f.Revision, f.CreatedAt, f.PrevHash, f.Payload)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// =============================================================================
// SSE writer
// =============================================================================

// SSEWriter writes live-sync frames as Server-Sent Events.
//
// # Description
//
// Each event is written as:
//
//	id: <frame id>
//	event: init|delta|ping|error
//	data: <frame json>
//
// and flushed immediately.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
//
// # Assumptions
//
//   - SetSSEHeaders was called before the first write.
type SSEWriter interface {
	// WriteEvent writes one live-sync event.
	WriteEvent(ev livesync.Event) error

	// WriteError writes an error frame. The stream should be closed after.
	WriteError(code, message string) error
}

type sseWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	chain   frameChain
	mu      sync.Mutex
}

// NewSSEWriter wraps w, which must implement http.Flusher.
func NewSSEWriter(w http.ResponseWriter) (SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &sseWriter{writer: w, flusher: flusher}, nil
}

func (w *sseWriter) WriteEvent(ev livesync.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	f, err := w.chain.event(ev)
	if err != nil {
		return err
	}
	return w.write(f)
}

func (w *sseWriter) WriteError(code, message string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	f, err := w.chain.next(FrameKindError, "", 0, APIError{Code: code, Message: message}, time.Now().UTC())
	if err != nil {
		return err
	}
	return w.write(f)
}

func (w *sseWriter) write(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if _, err := fmt.Fprintf(w.writer, "id: %s\nevent: %s\ndata: %s\n\n", f.ID, f.Kind, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// SetSSEHeaders sets the streaming headers. X-Accel-Buffering stops nginx
// from buffering the stream.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

var _ SSEWriter = (*sseWriter)(nil)
