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
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianDeck/services/deck/livesync"
	"github.com/AleutianAI/AleutianDeck/services/deck/observability"
)

// CodeSlowConsumer is sent in the error frame when the hub dropped a
// subscriber whose queue filled up.
const CodeSlowConsumer = "SLOW_CONSUMER"

// Events handles GET /documents/:id/events as a Server-Sent Events stream.
//
// # Description
//
// The first event is init with the full deck; deltas follow in commit
// order; ping events are sent every KeepAlive while idle. The stream ends
// when the client goes away, the document is disposed or the subscriber
// is dropped for falling behind (an error frame is sent first). The
// subscription is always released, whatever ended the stream.
//
// # Outputs
//
//   - 404 NOT_LOADED before streaming if the document has no session.
func (h *DeckHandler) Events(c *gin.Context) {
	e, ok := h.engine(c)
	if !ok {
		return
	}
	sub, err := e.Subscribe()
	if err != nil {
		writeError(c, err)
		return
	}
	defer h.reg.Hub().Unsubscribe(sub)

	w, err := NewSSEWriter(c.Writer)
	if err != nil {
		h.opts.Logger.Error("sse unsupported by response writer", "error", err)
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	SetSSEHeaders(c.Writer)
	c.Status(http.StatusOK)

	h.opts.Metrics.SubscriberConnected(observability.TransportSSE)
	defer h.opts.Metrics.SubscriberDisconnected(observability.TransportSSE)
	logger := h.opts.Logger.With("document_id", sub.Topic, "subscription_id", sub.ID, "transport", "sse")
	logger.Debug("viewer connected")

	ticker := time.NewTicker(h.opts.KeepAlive)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			logger.Debug("viewer disconnected")
			return
		case ev, open := <-sub.Events():
			if !open {
				if sub.Dropped() {
					_ = w.WriteError(CodeSlowConsumer, "viewer fell behind; reconnect for a fresh snapshot")
				}
				logger.Debug("subscription closed", "dropped", sub.Dropped())
				return
			}
			if err := w.WriteEvent(ev); err != nil {
				logger.Debug("write failed, closing stream", "error", err)
				return
			}
		case <-ticker.C:
			if err := w.WriteEvent(livesync.Ping(sub.Topic)); err != nil {
				return
			}
			h.opts.Metrics.RecordKeepAlive(observability.TransportSSE)
		}
	}
}
