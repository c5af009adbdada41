// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for deckd.
//
// # Description
//
// Counters and gauges for the edit path, persistence and the live-sync
// transports. Exposed on /metrics next to the OTel histograms from the
// telemetry package.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
// Every method is a no-op on a nil *DeckMetrics, so packages can run
// without metrics in tests.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

const (
	metricsNamespace = "deck"
	syncSubsystem    = "sync"
)

// Outcome labels.
const (
	OutcomeOK        = "ok"
	OutcomeRejected  = "rejected"
	OutcomeInvariant = "invariant"
	OutcomeError     = "error"
)

// Transport labels.
const (
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
)

// DeckMetrics holds the Prometheus collectors for deckd.
//
// # Fields
//
//   - CommandsTotal: commands by type and outcome (ok, rejected, invariant)
//   - UndoRedoTotal: undo/redo calls by action and whether anything happened
//   - PersistTotal: debounced saves by outcome
//   - PersistDurationSeconds: time to write snapshot + history
//   - ActiveSessions: loaded documents
//   - ActiveSubscribers: live-sync subscribers by transport
//   - KeepAlivesTotal: keep-alive frames by transport
//   - DroppedSubscribersTotal: subscribers dropped for a full queue
//   - ClientDisconnectsTotal: viewer disconnects by transport
type DeckMetrics struct {
	CommandsTotal           *prometheus.CounterVec
	UndoRedoTotal           *prometheus.CounterVec
	PersistTotal            *prometheus.CounterVec
	PersistDurationSeconds  prometheus.Histogram
	ActiveSessions          prometheus.Gauge
	ActiveSubscribers       *prometheus.GaugeVec
	KeepAlivesTotal         *prometheus.CounterVec
	DroppedSubscribersTotal prometheus.Counter
	ClientDisconnectsTotal  *prometheus.CounterVec
}

// NewDeckMetrics creates and registers the collectors on reg.
//
// # Inputs
//
//   - reg: Registry to register on. nil means prometheus.DefaultRegisterer.
//
// # Limitations
//
//   - Panics on duplicate registration, like promauto. Tests pass a fresh
//     prometheus.NewRegistry().
func NewDeckMetrics(reg prometheus.Registerer) *DeckMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &DeckMetrics{
		CommandsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "commands_total",
				Help:      "Commands submitted by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		UndoRedoTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "undo_redo_total",
				Help:      "Undo and redo requests by action and whether a command was applied",
			},
			[]string{"action", "applied"},
		),
		PersistTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "persist_total",
				Help:      "Debounced document saves by outcome",
			},
			[]string{"outcome"},
		),
		PersistDurationSeconds: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "persist_duration_seconds",
				Help:      "Time to write a document snapshot and history",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		),
		ActiveSessions: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "active_sessions",
				Help:      "Documents currently loaded",
			},
		),
		ActiveSubscribers: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: syncSubsystem,
				Name:      "active_subscribers",
				Help:      "Connected live-sync viewers by transport",
			},
			[]string{"transport"},
		),
		KeepAlivesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: syncSubsystem,
				Name:      "keepalives_total",
				Help:      "Keep-alive frames sent by transport",
			},
			[]string{"transport"},
		),
		DroppedSubscribersTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: syncSubsystem,
				Name:      "dropped_subscribers_total",
				Help:      "Subscribers dropped because their event queue was full",
			},
		),
		ClientDisconnectsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: syncSubsystem,
				Name:      "client_disconnects_total",
				Help:      "Viewer disconnects by transport",
			},
			[]string{"transport"},
		),
	}
}

// =============================================================================
// Helper Methods
// =============================================================================

// RecordCommand counts one submitted command.
func (m *DeckMetrics) RecordCommand(commandType, outcome string) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(commandType, outcome).Inc()
}

// RecordUndoRedo counts one undo or redo call.
func (m *DeckMetrics) RecordUndoRedo(action string, applied bool) {
	if m == nil {
		return
	}
	a := "false"
	if applied {
		a = "true"
	}
	m.UndoRedoTotal.WithLabelValues(action, a).Inc()
}

// RecordPersist counts one save and observes its duration.
func (m *DeckMetrics) RecordPersist(seconds float64, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.PersistTotal.WithLabelValues(outcome).Inc()
	m.PersistDurationSeconds.Observe(seconds)
}

// SessionOpened increments the active sessions gauge.
func (m *DeckMetrics) SessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

// SessionClosed decrements the active sessions gauge.
func (m *DeckMetrics) SessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

// SubscriberConnected increments the active subscribers gauge.
func (m *DeckMetrics) SubscriberConnected(transport string) {
	if m == nil {
		return
	}
	m.ActiveSubscribers.WithLabelValues(transport).Inc()
}

// SubscriberDisconnected decrements the gauge and counts the disconnect.
func (m *DeckMetrics) SubscriberDisconnected(transport string) {
	if m == nil {
		return
	}
	m.ActiveSubscribers.WithLabelValues(transport).Dec()
	m.ClientDisconnectsTotal.WithLabelValues(transport).Inc()
}

// RecordKeepAlive counts one keep-alive frame.
func (m *DeckMetrics) RecordKeepAlive(transport string) {
	if m == nil {
		return
	}
	m.KeepAlivesTotal.WithLabelValues(transport).Inc()
}

// RecordDroppedSubscriber counts one subscriber dropped for backpressure.
func (m *DeckMetrics) RecordDroppedSubscriber() {
	if m == nil {
		return
	}
	m.DroppedSubscribersTotal.Inc()
}
