// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package livesync

import (
	"time"

	"github.com/AleutianAI/AleutianDeck/services/deck/command"
	"github.com/AleutianAI/AleutianDeck/services/deck/model"
)

// Kind is the event-kind field of the stream.
type Kind string

const (
	KindInit  Kind = "init"
	KindDelta Kind = "delta"
	KindPing  Kind = "ping"
)

// Action says what produced a delta.
type Action string

const (
	ActionApply    Action = "apply"
	ActionUndo     Action = "undo"
	ActionRedo     Action = "redo"
	ActionNavigate Action = "navigate"
	ActionReset    Action = "reset"
)

// Event is one message on a document topic. Events are ephemeral and never
// persisted.
//
// Revision increases by one for every delta the engine publishes on the
// topic; an init event carries the revision it reflects. A viewer that sees
// a gap has missed deltas and should re-subscribe for a fresh init.
type Event struct {
	Kind            Kind      `json:"kind"`
	Topic           string    `json:"topic"`
	Revision        uint64    `json:"revision"`
	Payload         any       `json:"payload,omitempty"`
	OriginTimestamp time.Time `json:"originTimestamp"`
}

// InitPayload is the full state projection sent first to every subscriber.
type InitPayload struct {
	Deck        *model.Deck `json:"deck"`
	ActiveSlide int         `json:"activeSlide"`
	CanUndo     bool        `json:"canUndo"`
	CanRedo     bool        `json:"canRedo"`
}

// DeltaPayload describes one committed change. Command is set for apply,
// undo and redo; Deck only for reset.
type DeltaPayload struct {
	Action      Action           `json:"action"`
	Command     *command.Command `json:"command,omitempty"`
	Deck        *model.Deck      `json:"deck,omitempty"`
	ActiveSlide int              `json:"activeSlide"`
	SlideCount  int              `json:"slideCount"`
	CanUndo     bool             `json:"canUndo"`
	CanRedo     bool             `json:"canRedo"`
}

// Ping returns a keep-alive event. It carries no state.
func Ping(topic string) Event {
	return Event{Kind: KindPing, Topic: topic, OriginTimestamp: time.Now().UTC()}
}
