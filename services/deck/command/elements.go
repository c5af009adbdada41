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

// =============================================================================
// addElement
// =============================================================================

// AddElement inserts Element into slide SlideID at z-order Index (nil means
// on top). addElement and deleteElement are mutual inverses keyed by the
// same element snapshot.
type AddElement struct {
	SlideID string        `json:"slideId" validate:"required"`
	Element model.Element `json:"element"`
	Index   *int          `json:"index,omitempty" validate:"omitempty,min=0"`
}

func (AddElement) CommandType() Type { return TypeAddElement }

func (p AddElement) prepare(d *model.Deck) (Params, error) {
	si := d.SlideIndex(p.SlideID)
	if si < 0 {
		return nil, fmt.Errorf("%w: slide %s", ErrTargetNotFound, p.SlideID)
	}
	n := len(d.Slides[si].Elements)
	idx := n
	if p.Index != nil {
		idx = *p.Index
	}
	if idx < 0 || idx > n {
		return nil, fmt.Errorf("%w: element index %d not in [0,%d]", ErrIndexOutOfRange, idx, n)
	}
	e := p.Element.Clone()
	if err := claimIDs(d, &e, make(map[string]struct{})); err != nil {
		return nil, err
	}
	return AddElement{SlideID: p.SlideID, Element: e, Index: &idx}, nil
}

func (p AddElement) apply(d *model.Deck) error {
	if p.Index == nil {
		return fmt.Errorf("%w: addElement", ErrNotPrepared)
	}
	s, err := slideByID(d, p.SlideID)
	if err != nil {
		return err
	}
	if *p.Index > len(s.Elements) {
		return fmt.Errorf("%w: element index %d", ErrIndexOutOfRange, *p.Index)
	}
	s.InsertElement(*p.Index, p.Element.Clone())
	return nil
}

func (p AddElement) revert(d *model.Deck) error {
	s, err := slideByID(d, p.SlideID)
	if err != nil {
		return err
	}
	idx := s.ElementIndex(p.Element.ID)
	if idx < 0 {
		return fmt.Errorf("%w: element %s", ErrTargetNotFound, p.Element.ID)
	}
	s.RemoveElement(idx)
	return nil
}

// =============================================================================
// deleteElement
// =============================================================================

// DeleteElement removes a top-level element. SlideID, Index and Removed are
// captured by Prepare.
type DeleteElement struct {
	ElementID string         `json:"elementId" validate:"required"`
	SlideID   string         `json:"slideId,omitempty"`
	Index     *int           `json:"index,omitempty"`
	Removed   *model.Element `json:"removed,omitempty"`
}

func (DeleteElement) CommandType() Type { return TypeDeleteElement }

func (p DeleteElement) prepare(d *model.Deck) (Params, error) {
	si, ei, ok := d.LocateElement(p.ElementID)
	if !ok {
		return nil, fmt.Errorf("%w: element %s", ErrTargetNotFound, p.ElementID)
	}
	removed := d.Slides[si].Elements[ei].Clone()
	return DeleteElement{
		ElementID: p.ElementID,
		SlideID:   d.Slides[si].ID,
		Index:     &ei,
		Removed:   &removed,
	}, nil
}

func (p DeleteElement) apply(d *model.Deck) error {
	s, err := slideByID(d, p.SlideID)
	if err != nil {
		return err
	}
	idx := s.ElementIndex(p.ElementID)
	if idx < 0 {
		return fmt.Errorf("%w: element %s", ErrTargetNotFound, p.ElementID)
	}
	s.RemoveElement(idx)
	return nil
}

func (p DeleteElement) revert(d *model.Deck) error {
	if p.Index == nil || p.Removed == nil {
		return fmt.Errorf("%w: deleteElement", ErrNotPrepared)
	}
	s, err := slideByID(d, p.SlideID)
	if err != nil {
		return err
	}
	if *p.Index > len(s.Elements) {
		return fmt.Errorf("%w: element index %d", ErrIndexOutOfRange, *p.Index)
	}
	s.InsertElement(*p.Index, p.Removed.Clone())
	return nil
}

// =============================================================================
// updateElement
// =============================================================================

// ElementPatch lists the element fields to change.
//
// Style keys are merged; a key mapped to null is removed. A content payload
// must match the element's kind. Group membership is changed only through
// groupElements and ungroupElements.
type ElementPatch struct {
	Bounds          *model.Bounds       `json:"bounds,omitempty"`
	Style           model.Style         `json:"style,omitempty"`
	Animation       *model.Animation    `json:"animation,omitempty"`
	RemoveAnimation bool                `json:"removeAnimation,omitempty"`
	Text            *model.TextContent  `json:"text,omitempty"`
	Image           *model.ImageContent `json:"image,omitempty"`
	Shape           *model.ShapeContent `json:"shape,omitempty"`
	Chart           *model.ChartContent `json:"chart,omitempty"`
	Table           *model.TableContent `json:"table,omitempty"`
	Code            *model.CodeContent  `json:"code,omitempty"`
}

func (p ElementPatch) empty() bool {
	return p.Bounds == nil && len(p.Style) == 0 && p.Animation == nil && !p.RemoveAnimation &&
		p.Text == nil && p.Image == nil && p.Shape == nil && p.Chart == nil &&
		p.Table == nil && p.Code == nil
}

// patched returns a copy of e with the patch applied.
func (p ElementPatch) patched(e model.Element) (model.Element, error) {
	out := e.Clone()
	if p.Bounds != nil {
		out.Bounds = *p.Bounds
	}
	if len(p.Style) > 0 {
		if out.Style == nil {
			out.Style = model.Style{}
		}
		for k, v := range p.Style.Clone() {
			if v == nil {
				delete(out.Style, k)
				continue
			}
			out.Style[k] = v
		}
	}
	if p.RemoveAnimation {
		out.Animation = nil
	}
	if p.Animation != nil {
		a := *p.Animation
		out.Animation = &a
	}

	content := []struct {
		set  bool
		kind model.Kind
		fn   func()
	}{
		{p.Text != nil, model.KindText, func() { t := *p.Text; out.Text = &t }},
		{p.Image != nil, model.KindImage, func() { im := *p.Image; out.Image = &im }},
		{p.Shape != nil, model.KindShape, func() { sh := *p.Shape; out.Shape = &sh }},
		{p.Chart != nil, model.KindChart, func() {
			c := model.Element{Kind: model.KindChart, Chart: p.Chart}.Clone()
			out.Chart = c.Chart
		}},
		{p.Table != nil, model.KindTable, func() {
			c := model.Element{Kind: model.KindTable, Table: p.Table}.Clone()
			out.Table = c.Table
		}},
		{p.Code != nil, model.KindCode, func() { c := *p.Code; out.Code = &c }},
	}
	for _, c := range content {
		if !c.set {
			continue
		}
		if c.kind != e.Kind {
			return model.Element{}, fmt.Errorf("%w: %s content on %s element %s", ErrInvalidParams, c.kind, e.Kind, e.ID)
		}
		c.fn()
	}
	return out, nil
}

// UpdateElement patches a top-level element. Previous is the whole element
// before the change.
type UpdateElement struct {
	ElementID string         `json:"elementId" validate:"required"`
	Patch     ElementPatch   `json:"patch"`
	Previous  *model.Element `json:"previous,omitempty"`
}

func (UpdateElement) CommandType() Type { return TypeUpdateElement }

func (p UpdateElement) prepare(d *model.Deck) (Params, error) {
	if p.Patch.empty() {
		return nil, fmt.Errorf("%w: empty element patch", ErrInvalidParams)
	}
	si, ei, ok := d.LocateElement(p.ElementID)
	if !ok {
		return nil, fmt.Errorf("%w: element %s", ErrTargetNotFound, p.ElementID)
	}
	current := d.Slides[si].Elements[ei]
	next, err := p.Patch.patched(current)
	if err != nil {
		return nil, err
	}
	if err := next.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	prev := current.Clone()
	return UpdateElement{ElementID: p.ElementID, Patch: p.Patch, Previous: &prev}, nil
}

func (p UpdateElement) apply(d *model.Deck) error {
	si, ei, ok := d.LocateElement(p.ElementID)
	if !ok {
		return fmt.Errorf("%w: element %s", ErrTargetNotFound, p.ElementID)
	}
	next, err := p.Patch.patched(d.Slides[si].Elements[ei])
	if err != nil {
		return err
	}
	d.Slides[si].Elements[ei] = next
	return nil
}

func (p UpdateElement) revert(d *model.Deck) error {
	if p.Previous == nil {
		return fmt.Errorf("%w: updateElement", ErrNotPrepared)
	}
	si, ei, ok := d.LocateElement(p.ElementID)
	if !ok {
		return fmt.Errorf("%w: element %s", ErrTargetNotFound, p.ElementID)
	}
	d.Slides[si].Elements[ei] = p.Previous.Clone()
	return nil
}

func slideByID(d *model.Deck, id string) (*model.Slide, error) {
	idx := d.SlideIndex(id)
	if idx < 0 {
		return nil, fmt.Errorf("%w: slide %s", ErrTargetNotFound, id)
	}
	return &d.Slides[idx], nil
}
