// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package command

import (
	"fmt"

	"github.com/AleutianAI/AleutianDeck/services/deck/model"
)

// layerMove is the shared payload of the four z-order commands. Index 0 is
// the back of the slide, len-1 the front. A move that does not change the
// position (already at the front, say) is still a valid command.
type layerMove struct {
	ElementID string `json:"elementId" validate:"required"`
	SlideID   string `json:"slideId,omitempty"`
	From      *int   `json:"from,omitempty"`
	To        *int   `json:"to,omitempty"`
}

func (m layerMove) resolve(d *model.Deck, target func(from, n int) int) (layerMove, error) {
	si, ei, ok := d.LocateElement(m.ElementID)
	if !ok {
		return layerMove{}, fmt.Errorf("%w: element %s", ErrTargetNotFound, m.ElementID)
	}
	to := target(ei, len(d.Slides[si].Elements))
	return layerMove{ElementID: m.ElementID, SlideID: d.Slides[si].ID, From: &ei, To: &to}, nil
}

func (m layerMove) move(d *model.Deck, forward bool) error {
	if m.From == nil || m.To == nil {
		return fmt.Errorf("%w: layer move", ErrNotPrepared)
	}
	s, err := slideByID(d, m.SlideID)
	if err != nil {
		return err
	}
	from, to := *m.From, *m.To
	if !forward {
		from, to = to, from
	}
	n := len(s.Elements)
	if from >= n || to >= n || from < 0 || to < 0 {
		return fmt.Errorf("%w: z-order move %d -> %d with %d elements", ErrIndexOutOfRange, from, to, n)
	}
	if s.Elements[from].ID != m.ElementID {
		return fmt.Errorf("%w: element %s not at index %d", ErrTargetNotFound, m.ElementID, from)
	}
	s.MoveElement(from, to)
	return nil
}

// BringToFront moves an element to the top of its slide's z-order.
type BringToFront struct{ layerMove }

func (BringToFront) CommandType() Type { return TypeBringToFront }

func (p BringToFront) prepare(d *model.Deck) (Params, error) {
	m, err := p.resolve(d, func(_, n int) int { return n - 1 })
	if err != nil {
		return nil, err
	}
	return BringToFront{m}, nil
}

func (p BringToFront) apply(d *model.Deck) error  { return p.move(d, true) }
func (p BringToFront) revert(d *model.Deck) error { return p.move(d, false) }

// BringForward moves an element one step toward the front.
type BringForward struct{ layerMove }

func (BringForward) CommandType() Type { return TypeBringForward }

func (p BringForward) prepare(d *model.Deck) (Params, error) {
	m, err := p.resolve(d, func(from, n int) int { return min(from+1, n-1) })
	if err != nil {
		return nil, err
	}
	return BringForward{m}, nil
}

func (p BringForward) apply(d *model.Deck) error  { return p.move(d, true) }
func (p BringForward) revert(d *model.Deck) error { return p.move(d, false) }

// SendBackward moves an element one step toward the back.
type SendBackward struct{ layerMove }

func (SendBackward) CommandType() Type { return TypeSendBackward }

func (p SendBackward) prepare(d *model.Deck) (Params, error) {
	m, err := p.resolve(d, func(from, _ int) int { return max(from-1, 0) })
	if err != nil {
		return nil, err
	}
	return SendBackward{m}, nil
}

func (p SendBackward) apply(d *model.Deck) error  { return p.move(d, true) }
func (p SendBackward) revert(d *model.Deck) error { return p.move(d, false) }

// SendToBack moves an element to the bottom of its slide's z-order.
type SendToBack struct{ layerMove }

func (SendToBack) CommandType() Type { return TypeSendToBack }

func (p SendToBack) prepare(d *model.Deck) (Params, error) {
	m, err := p.resolve(d, func(_, _ int) int { return 0 })
	if err != nil {
		return nil, err
	}
	return SendToBack{m}, nil
}

func (p SendToBack) apply(d *model.Deck) error  { return p.move(d, true) }
func (p SendToBack) revert(d *model.Deck) error { return p.move(d, false) }

// NewLayerMove builds one of the four z-order commands for elementID.
func NewLayerMove(t Type, elementID string) (Params, error) {
	m := layerMove{ElementID: elementID}
	switch t {
	case TypeBringToFront:
		return BringToFront{m}, nil
	case TypeBringForward:
		return BringForward{m}, nil
	case TypeSendBackward:
		return SendBackward{m}, nil
	case TypeSendToBack:
		return SendToBack{m}, nil
	}
	return nil, fmt.Errorf("%w: %s is not a z-order command", ErrUnknownType, t)
}
