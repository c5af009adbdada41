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
	"net/url"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianDeck/services/deck/livesync"
	"github.com/AleutianAI/AleutianDeck/services/deck/observability"
)

const (
	wsWriteWait = 10 * time.Second

	// Viewers only receive; anything they send beyond control frames is
	// read and discarded.
	wsMaxMessageSize = 4096

	// Lower bound on how long a viewer may go without answering a ping.
	wsMinPongWait = 5 * time.Second
)

func (h *DeckHandler) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 64 * 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(h.opts.AllowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			return slices.Contains(h.opts.AllowedOrigins, u.Scheme+"://"+u.Host)
		},
	}
}

// WebSocket handles GET /documents/:id/ws, the websocket viewer transport.
//
// # Description
//
// Sends the same frames as the SSE stream, one JSON text message each.
// Every KeepAlive a ping frame and a websocket ping control frame are
// sent; a viewer that answers no pong for two intervals (at least
// wsMinPongWait) is closed. The
// server closes with CloseGoingAway when the document is disposed and
// CloseTryAgainLater when the viewer is dropped for falling behind.
//
// # Thread Safety
//
// One goroutine writes, one reads; gorilla/websocket permits exactly that.
func (h *DeckHandler) WebSocket(c *gin.Context) {
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

	ws, err := h.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.opts.Logger.Warn("websocket upgrade failed", "document_id", sub.Topic, "error", err)
		return
	}
	defer ws.Close()

	h.opts.Metrics.SubscriberConnected(observability.TransportWebSocket)
	defer h.opts.Metrics.SubscriberDisconnected(observability.TransportWebSocket)
	logger := h.opts.Logger.With("document_id", sub.Topic, "subscription_id", sub.ID, "transport", "websocket")
	logger.Debug("viewer connected")

	deadline := max(2*h.opts.KeepAlive, wsMinPongWait)
	ws.SetReadLimit(wsMaxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(deadline))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(deadline))
	})

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := ws.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.opts.KeepAlive)
	defer ticker.Stop()

	var chain frameChain
	send := func(ev livesync.Event) error {
		f, err := chain.event(ev)
		if err != nil {
			return err
		}
		_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return ws.WriteJSON(f)
	}
	closeWith := func(code int, text string) {
		msg := websocket.FormatCloseMessage(code, text)
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
	}

	for {
		select {
		case <-readDone:
			logger.Debug("viewer disconnected")
			return
		case ev, open := <-sub.Events():
			if !open {
				if sub.Dropped() {
					closeWith(websocket.CloseTryAgainLater, CodeSlowConsumer)
				} else {
					closeWith(websocket.CloseGoingAway, "document closed")
				}
				logger.Debug("subscription closed", "dropped", sub.Dropped())
				return
			}
			if err := send(ev); err != nil {
				logger.Debug("write failed, closing", "error", err)
				return
			}
		case <-ticker.C:
			if err := send(livesync.Ping(sub.Topic)); err != nil {
				return
			}
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
			h.opts.Metrics.RecordKeepAlive(observability.TransportWebSocket)
		}
	}
}
