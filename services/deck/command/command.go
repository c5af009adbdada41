// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package command defines the closed catalogue of reversible deck edits.
//
// # Description
//
// A Command is a named, serializable description of one state change. Each
// Type has exactly one Params struct. The lifecycle of a command is:
//
//  1. Decode (or New) builds it from caller input.
//  2. Prepare validates it against the current deck and returns a copy that
//     carries every pre-image needed to invert it.
//  3. Apply performs the change; Revert undoes it exactly.
//
// Prepared commands are self-sufficient: once persisted and reloaded they
// can still be undone and redone against the deck they were recorded on.
//
// # Thread Safety
//
// Commands are values and safe to share once prepared. Apply and Revert
// mutate the deck passed in; callers serialize access to it.
package command

import (
	"fmt"
	"time"

	"github.com/AleutianAI/AleutianDeck/services/deck/model"
)

// Type is the command discriminant.
type Type string

const (
	TypeAddSlide        Type = "addSlide"
	TypeDeleteSlide     Type = "deleteSlide"
	TypeReorderSlides   Type = "reorderSlides"
	TypeUpdateSlide     Type = "updateSlide"
	TypeAddElement      Type = "addElement"
	TypeDeleteElement   Type = "deleteElement"
	TypeUpdateElement   Type = "updateElement"
	TypeGroupElements   Type = "groupElements"
	TypeUngroupElements Type = "ungroupElements"
	TypeBringToFront    Type = "bringToFront"
	TypeBringForward    Type = "bringForward"
	TypeSendBackward    Type = "sendBackward"
	TypeSendToBack      Type = "sendToBack"
	TypeUpdateSettings  Type = "updateSettings"
)

// Params is the sealed set of per-type payloads. Only this package can add
// implementations.
type Params interface {
	// CommandType returns the discriminant this payload belongs to.
	CommandType() Type

	prepare(d *model.Deck) (Params, error)
	apply(d *model.Deck) error
	revert(d *model.Deck) error
}

// Command is one invertible edit.
type Command struct {
	Type      Type
	Params    Params
	Timestamp time.Time
}

// New builds a command from params and stamps the current time.
func New(p Params) Command {
	return Command{
		Type:      p.CommandType(),
		Params:    p,
		Timestamp: time.Now().UTC(),
	}
}

// Prepare validates the command against d and captures its pre-images.
//
// # Description
//
// Prepare never mutates d. The returned command holds resolved indices,
// generated ids and copies of everything Apply will overwrite, so Revert
// can restore the exact prior state.
//
// # Inputs
//
//   - d: The current deck. Read only.
//
// # Outputs
//
//   - Command: Self-sufficient copy of c.
//   - error: ErrTargetNotFound, ErrIndexOutOfRange, ErrInvalidParams or
//     ErrMalformed (wrapped). d is untouched in every case.
func (c Command) Prepare(d *model.Deck) (Command, error) {
	if c.Params == nil {
		return Command{}, fmt.Errorf("%w: %s has no params", ErrMalformed, c.Type)
	}
	if c.Params.CommandType() != c.Type {
		return Command{}, fmt.Errorf("%w: type %s carries %s params", ErrMalformed, c.Type, c.Params.CommandType())
	}
	p, err := c.Params.prepare(d)
	if err != nil {
		return Command{}, err
	}
	out := c
	out.Params = p
	if out.Timestamp.IsZero() {
		out.Timestamp = time.Now().UTC()
	}
	return out, nil
}

// Apply performs the forward change on d.
//
// # Limitations
//
//   - On error d may be partially modified; the engine restores its own
//     pre-apply copy in that case.
func (c Command) Apply(d *model.Deck) error {
	if c.Params == nil {
		return fmt.Errorf("%w: %s has no params", ErrNotPrepared, c.Type)
	}
	return c.Params.apply(d)
}

// Revert performs the inverse change on d.
func (c Command) Revert(d *model.Deck) error {
	if c.Params == nil {
		return fmt.Errorf("%w: %s has no params", ErrNotPrepared, c.Type)
	}
	return c.Params.revert(d)
}

// String returns the command type, for logs.
func (c Command) String() string {
	return string(c.Type)
}
