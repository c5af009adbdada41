// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instruments are the OTel histograms recorded on the edit path. Counters
// and gauges live in the observability package (client_golang).
//
// Thread Safety: Safe for concurrent use after creation.
type Instruments struct {
	// CommandDuration is the time to prepare+apply+commit one command.
	CommandDuration metric.Float64Histogram

	// PublishFanout is the number of subscribers reached by one publish.
	PublishFanout metric.Int64Histogram

	// SnapshotBytes is the encoded size of a persisted deck snapshot.
	SnapshotBytes metric.Int64Histogram
}

// NewInstruments creates the instruments on meter.
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	in := &Instruments{}
	var err error

	in.CommandDuration, err = meter.Float64Histogram(
		"deck_command_duration_seconds",
		metric.WithDescription("Time to validate, apply and commit one command"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5),
	)
	if err != nil {
		return nil, fmt.Errorf("create deck_command_duration_seconds: %w", err)
	}

	in.PublishFanout, err = meter.Int64Histogram(
		"deck_publish_fanout",
		metric.WithDescription("Subscribers reached by one live-sync publish"),
		metric.WithUnit("{subscriber}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create deck_publish_fanout: %w", err)
	}

	in.SnapshotBytes, err = meter.Int64Histogram(
		"deck_snapshot_bytes",
		metric.WithDescription("Encoded size of persisted deck snapshots"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("create deck_snapshot_bytes: %w", err)
	}

	return in, nil
}

// DefaultInstruments creates instruments on the global meter provider. It
// returns nil, which records nothing, if registration fails.
func DefaultInstruments() *Instruments {
	in, err := NewInstruments(otel.Meter("deck"))
	if err != nil {
		return nil
	}
	return in
}

// RecordCommand records one command duration. Safe on a nil receiver.
func (in *Instruments) RecordCommand(ctx context.Context, commandType, outcome string, d time.Duration) {
	if in == nil {
		return
	}
	in.CommandDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("command_type", commandType),
		attribute.String("outcome", outcome),
	))
}

// RecordFanout records how many subscribers one publish reached.
func (in *Instruments) RecordFanout(ctx context.Context, n int) {
	if in == nil {
		return
	}
	in.PublishFanout.Record(ctx, int64(n))
}

// RecordSnapshotSize records the encoded size of a saved snapshot.
func (in *Instruments) RecordSnapshotSize(ctx context.Context, backend string, size int) {
	if in == nil {
		return
	}
	in.SnapshotBytes.Record(ctx, int64(size), metric.WithAttributes(attribute.String("backend", backend)))
}
