// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package livesync fans document change events out to passive viewers.
//
// # Description
//
// A Hub maps a topic (one per document) to its current subscriptions. Each
// subscription owns a bounded queue. Publish never blocks: a subscriber
// whose queue is full is dropped and must re-subscribe to get a fresh init
// event. Delivery is at-most-once and ordered per topic.
//
// # Thread Safety
//
// Hub has its own lock, independent of any engine lock, and is safe for
// concurrent use.
package livesync

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianDeck/services/deck/observability"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 64

// Options configures a Hub.
type Options struct {
	// Buffer is the per-subscriber queue length. Values below 1 use
	// DefaultBuffer.
	Buffer int

	Logger  *slog.Logger
	Metrics *observability.DeckMetrics
}

// Subscription is one viewer's registration on a topic.
type Subscription struct {
	ID    string
	Topic string

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	dropped   bool
}

// Events yields the init event followed by deltas. It is closed when the
// subscription ends for any reason.
func (s *Subscription) Events() <-chan Event { return s.events }

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Dropped reports whether the hub ended the subscription because its
// queue was full. Valid after Done is closed.
func (s *Subscription) Dropped() bool {
	select {
	case <-s.done:
		return s.dropped
	default:
		return false
	}
}

// close must be called with the hub lock held; every send happens under
// the same lock, so no send can race the channel close.
func (s *Subscription) close(dropped bool) {
	s.closeOnce.Do(func() {
		s.dropped = dropped
		close(s.done)
		close(s.events)
	})
}

// Hub is the topic registry.
type Hub struct {
	mu     sync.Mutex
	topics map[string]map[string]*Subscription

	buffer        int
	logger        *slog.Logger
	metrics       *observability.DeckMetrics
	dropSometimes rate.Sometimes
}

// NewHub creates an empty hub.
func NewHub(opts Options) *Hub {
	if opts.Buffer < 1 {
		opts.Buffer = DefaultBuffer
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Hub{
		topics:        make(map[string]map[string]*Subscription),
		buffer:        opts.Buffer,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		dropSometimes: rate.Sometimes{First: 5, Interval: 10 * time.Second},
	}
}

// Subscribe registers a subscriber on topic and queues init as its first
// event.
//
// # Description
//
// The caller builds init from authoritative state while holding whatever
// lock serializes publishes on the topic, so the subscriber sees neither a
// duplicate nor a missing delta.
func (h *Hub) Subscribe(topic string, init Event) *Subscription {
	sub := &Subscription{
		ID:     uuid.NewString(),
		Topic:  topic,
		events: make(chan Event, h.buffer),
		done:   make(chan struct{}),
	}
	init.Kind = KindInit
	init.Topic = topic
	sub.events <- init

	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[string]*Subscription)
		h.topics[topic] = subs
	}
	subs[sub.ID] = sub
	return sub
}

// Publish delivers ev to every subscriber of topic without blocking and
// returns how many received it. Subscribers with a full queue are dropped.
func (h *Hub) Publish(topic string, ev Event) int {
	ev.Topic = topic
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.topics[topic]
	delivered := 0
	for id, sub := range subs {
		select {
		case sub.events <- ev:
			delivered++
		default:
			delete(subs, id)
			sub.close(true)
			h.metrics.RecordDroppedSubscriber()
			h.dropSometimes.Do(func() {
				h.logger.Warn("dropped slow live-sync subscriber",
					"topic", topic,
					"subscription_id", id,
					"buffer", h.buffer,
				)
			})
		}
	}
	if len(subs) == 0 {
		delete(h.topics, topic)
	}
	return delivered
}

// Unsubscribe ends sub. Safe to call more than once and after the hub has
// dropped the subscription.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.topics[sub.Topic]; ok {
		delete(subs, sub.ID)
		if len(subs) == 0 {
			delete(h.topics, sub.Topic)
		}
	}
	sub.close(false)
}

// CloseTopic ends every subscription on topic. Used when a document is
// disposed.
func (h *Hub) CloseTopic(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.topics[topic]
	for _, sub := range subs {
		sub.close(false)
	}
	delete(h.topics, topic)
	return len(subs)
}

// Close ends every subscription on every topic.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for topic, subs := range h.topics {
		for _, sub := range subs {
			sub.close(false)
		}
		delete(h.topics, topic)
	}
}

// SubscriberCount returns the number of live subscriptions on topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[topic])
}

// TopicCount returns the number of topics with at least one subscriber.
func (h *Hub) TopicCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics)
}

// Topics returns the topics with subscribers, sorted.
func (h *Hub) Topics() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.topics))
	for t := range h.topics {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
