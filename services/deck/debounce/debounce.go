// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package debounce provides a debounce-with-max-wait scheduler.
package debounce

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Func is the debounced action.
type Func func(ctx context.Context) error

// Config configures a Debouncer.
//
// # Fields
//
//   - Wait: Quiet period after the last trigger before Func runs.
//   - MaxWait: Upper bound between the first pending trigger and the run,
//     so a steady stream of triggers still fires periodically. Zero means
//     no bound.
//   - RunTimeout: Deadline for timer-driven runs. Flush uses the caller's
//     context instead.
type Config struct {
	Wait       time.Duration
	MaxWait    time.Duration
	RunTimeout time.Duration
}

// DefaultConfig returns the defaults used for history persistence.
func DefaultConfig() Config {
	return Config{
		Wait:       1 * time.Second,
		MaxWait:    10 * time.Second,
		RunTimeout: 10 * time.Second,
	}
}

type flushRequest struct {
	ctx   context.Context
	reply chan error
}

// Debouncer coalesces bursts of Trigger calls into single runs of Func.
//
// # Description
//
// A background goroutine owns the timer. Trigger never blocks. Func runs
// on that goroutine, so runs never overlap. A failed run is logged and
// re-armed so it is retried on the next cycle.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type Debouncer struct {
	cfg    Config
	fn     Func
	logger *slog.Logger

	triggers chan struct{}
	flushes  chan flushRequest
	done     chan struct{}
	exited   chan struct{}
	stopOnce sync.Once

	pending  atomic.Bool
	runs     atomic.Int64
	failures atomic.Int64

	warnSometimes rate.Sometimes
}

// New creates a Debouncer and starts its loop. Call Stop to release it.
//
// # Inputs
//
//   - cfg: Timing configuration. Wait must be positive.
//   - fn: Action to run.
//   - logger: Logger for run failures. nil uses slog.Default().
func New(cfg Config, fn Func, logger *slog.Logger) *Debouncer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Wait <= 0 {
		cfg.Wait = DefaultConfig().Wait
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultConfig().RunTimeout
	}
	d := &Debouncer{
		cfg:           cfg,
		fn:            fn,
		logger:        logger,
		triggers:      make(chan struct{}, 1),
		flushes:       make(chan flushRequest),
		done:          make(chan struct{}),
		exited:        make(chan struct{}),
		warnSometimes: rate.Sometimes{First: 3, Interval: 30 * time.Second},
	}
	go d.loop()
	return d
}

// Trigger marks work as pending and (re)starts the quiet-period timer.
// It never blocks. Triggers after Stop are ignored.
func (d *Debouncer) Trigger() {
	select {
	case <-d.exited:
		return
	default:
	}
	d.pending.Store(true)
	select {
	case d.triggers <- struct{}{}:
	default:
	}
}

// Pending reports whether a run is scheduled but has not completed.
func (d *Debouncer) Pending() bool {
	return d.pending.Load()
}

// Runs returns the number of completed Func invocations.
func (d *Debouncer) Runs() int64 {
	return d.runs.Load()
}

// Failures returns the number of failed Func invocations.
func (d *Debouncer) Failures() int64 {
	return d.failures.Load()
}

// Flush runs a pending action now and returns its error. With nothing
// pending it returns nil without calling Func.
func (d *Debouncer) Flush(ctx context.Context) error {
	req := flushRequest{ctx: ctx, reply: make(chan error, 1)}
	select {
	case d.flushes <- req:
	case <-d.exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop runs a final pending action and terminates the loop. Idempotent.
func (d *Debouncer) Stop() {
	d.stopOnce.Do(func() { close(d.done) })
	<-d.exited
}

func (d *Debouncer) loop() {
	defer close(d.exited)

	var timer *time.Timer
	var timerC <-chan time.Time
	var first time.Time
	armed := false

	arm := func(now time.Time) {
		if !armed {
			armed = true
			first = now
		}
		deadline := now.Add(d.cfg.Wait)
		if d.cfg.MaxWait > 0 {
			if limit := first.Add(d.cfg.MaxWait); limit.Before(deadline) {
				deadline = limit
			}
		}
		delay := max(time.Until(deadline), 0)
		if timer == nil {
			timer = time.NewTimer(delay)
		} else {
			timer.Stop()
			timer.Reset(delay)
		}
		timerC = timer.C
	}

	disarm := func() {
		armed = false
		if timer != nil {
			timer.Stop()
		}
		timerC = nil
	}

	run := func(ctx context.Context) error {
		disarm()
		if !d.pending.Swap(false) {
			return nil
		}
		err := d.fn(ctx)
		d.runs.Add(1)
		if err != nil {
			d.failures.Add(1)
			d.pending.Store(true)
			arm(time.Now())
			d.warnSometimes.Do(func() {
				d.logger.Warn("debounced run failed, will retry",
					"error", err,
					"failures", d.failures.Load(),
				)
			})
		}
		return err
	}

	timed := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.RunTimeout)
		defer cancel()
		return run(ctx)
	}

	for {
		select {
		case <-d.triggers:
			arm(time.Now())
		case <-timerC:
			_ = timed()
		case req := <-d.flushes:
			req.reply <- run(req.ctx)
		case <-d.done:
			if err := timed(); err != nil {
				d.logger.Error("final debounced run failed", "error", err)
			}
			disarm()
			return
		}
	}
}
