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

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianDeck/services/deck/model"
)

// =============================================================================
// addSlide
// =============================================================================

// AddSlide inserts a slide. A nil Index appends; a nil Slide inserts a
// default empty slide. Missing slide and element ids are generated during
// Prepare so redo reproduces the same ids.
type AddSlide struct {
	Index *int         `json:"index,omitempty" validate:"omitempty,min=0"`
	Slide *model.Slide `json:"slide,omitempty"`
}

func (AddSlide) CommandType() Type { return TypeAddSlide }

func (p AddSlide) prepare(d *model.Deck) (Params, error) {
	idx := len(d.Slides)
	if p.Index != nil {
		idx = *p.Index
	}
	if idx < 0 || idx > len(d.Slides) {
		return nil, fmt.Errorf("%w: slide index %d not in [0,%d]", ErrIndexOutOfRange, idx, len(d.Slides))
	}

	var s model.Slide
	if p.Slide == nil {
		s = model.NewSlide()
	} else {
		s = p.Slide.Clone()
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		if s.Elements == nil {
			s.Elements = []model.Element{}
		}
		if s.Background.Color == "" {
			s.Background.Color = "#ffffff"
		}
	}
	if d.SlideIndex(s.ID) >= 0 {
		return nil, fmt.Errorf("%w: slide id %s already exists", ErrInvalidParams, s.ID)
	}

	seen := make(map[string]struct{})
	for i := range s.Elements {
		if err := claimIDs(d, &s.Elements[i], seen); err != nil {
			return nil, err
		}
	}
	for li := range s.Layers {
		for i := range s.Layers[li].Elements {
			if err := claimIDs(d, &s.Layers[li].Elements[i], seen); err != nil {
				return nil, err
			}
		}
	}
	if s.Background.AssetRef != "" && !s.Background.AssetRef.Valid() {
		return nil, fmt.Errorf("%w: malformed background asset reference", ErrInvalidParams)
	}

	return AddSlide{Index: &idx, Slide: &s}, nil
}

func (p AddSlide) apply(d *model.Deck) error {
	if p.Index == nil || p.Slide == nil {
		return fmt.Errorf("%w: addSlide", ErrNotPrepared)
	}
	if *p.Index > len(d.Slides) {
		return fmt.Errorf("%w: slide index %d", ErrIndexOutOfRange, *p.Index)
	}
	d.InsertSlide(*p.Index, p.Slide.Clone())
	return nil
}

func (p AddSlide) revert(d *model.Deck) error {
	if p.Index == nil || p.Slide == nil {
		return fmt.Errorf("%w: addSlide", ErrNotPrepared)
	}
	if err := expectSlideAt(d, *p.Index, p.Slide.ID); err != nil {
		return err
	}
	d.RemoveSlide(*p.Index)
	return nil
}

// =============================================================================
// deleteSlide
// =============================================================================

// DeleteSlide removes the slide at Index. Removed is captured by Prepare so
// undo reinserts the full slide at the same position.
type DeleteSlide struct {
	Index   int          `json:"index" validate:"min=0"`
	Removed *model.Slide `json:"removed,omitempty"`
}

func (DeleteSlide) CommandType() Type { return TypeDeleteSlide }

func (p DeleteSlide) prepare(d *model.Deck) (Params, error) {
	if p.Index < 0 || p.Index >= len(d.Slides) {
		return nil, fmt.Errorf("%w: slide index %d not in [0,%d)", ErrIndexOutOfRange, p.Index, len(d.Slides))
	}
	if len(d.Slides) == 1 {
		return nil, fmt.Errorf("%w: cannot delete the only slide", ErrInvalidParams)
	}
	removed := d.Slides[p.Index].Clone()
	return DeleteSlide{Index: p.Index, Removed: &removed}, nil
}

func (p DeleteSlide) apply(d *model.Deck) error {
	if p.Removed == nil {
		return fmt.Errorf("%w: deleteSlide", ErrNotPrepared)
	}
	if err := expectSlideAt(d, p.Index, p.Removed.ID); err != nil {
		return err
	}
	d.RemoveSlide(p.Index)
	return nil
}

func (p DeleteSlide) revert(d *model.Deck) error {
	if p.Removed == nil {
		return fmt.Errorf("%w: deleteSlide", ErrNotPrepared)
	}
	if p.Index > len(d.Slides) {
		return fmt.Errorf("%w: slide index %d", ErrIndexOutOfRange, p.Index)
	}
	d.InsertSlide(p.Index, p.Removed.Clone())
	return nil
}

// =============================================================================
// reorderSlides
// =============================================================================

// ReorderSlides moves the slide at From so it ends up at To.
type ReorderSlides struct {
	From int `json:"from" validate:"min=0"`
	To   int `json:"to" validate:"min=0"`
}

func (ReorderSlides) CommandType() Type { return TypeReorderSlides }

func (p ReorderSlides) prepare(d *model.Deck) (Params, error) {
	n := len(d.Slides)
	if p.From < 0 || p.From >= n || p.To < 0 || p.To >= n {
		return nil, fmt.Errorf("%w: move %d -> %d with %d slides", ErrIndexOutOfRange, p.From, p.To, n)
	}
	return p, nil
}

func (p ReorderSlides) apply(d *model.Deck) error {
	return moveSlide(d, p.From, p.To)
}

func (p ReorderSlides) revert(d *model.Deck) error {
	return moveSlide(d, p.To, p.From)
}

func moveSlide(d *model.Deck, from, to int) error {
	n := len(d.Slides)
	if from < 0 || from >= n || to < 0 || to >= n {
		return fmt.Errorf("%w: move %d -> %d with %d slides", ErrIndexOutOfRange, from, to, n)
	}
	d.MoveSlide(from, to)
	return nil
}

// =============================================================================
// updateSlide
// =============================================================================

// SlidePatch lists the slide fields to change. Nil fields are left alone.
type SlidePatch struct {
	Title      *string           `json:"title,omitempty"`
	Background *model.Background `json:"background,omitempty"`
	Hidden     *bool             `json:"hidden,omitempty"`
	Duration   *float64          `json:"duration,omitempty" validate:"omitempty,min=0"`
}

func (p SlidePatch) empty() bool {
	return p.Title == nil && p.Background == nil && p.Hidden == nil && p.Duration == nil
}

// SlideFields is the pre-image of the fields an updateSlide may change.
type SlideFields struct {
	Title      string           `json:"title"`
	Background model.Background `json:"background"`
	Hidden     bool             `json:"hidden"`
	Duration   float64          `json:"duration"`
}

// UpdateSlide changes slide-level fields of SlideID.
type UpdateSlide struct {
	SlideID  string       `json:"slideId" validate:"required"`
	Patch    SlidePatch   `json:"patch"`
	Previous *SlideFields `json:"previous,omitempty"`
}

func (UpdateSlide) CommandType() Type { return TypeUpdateSlide }

func (p UpdateSlide) prepare(d *model.Deck) (Params, error) {
	if p.Patch.empty() {
		return nil, fmt.Errorf("%w: empty slide patch", ErrInvalidParams)
	}
	idx := d.SlideIndex(p.SlideID)
	if idx < 0 {
		return nil, fmt.Errorf("%w: slide %s", ErrTargetNotFound, p.SlideID)
	}
	if bg := p.Patch.Background; bg != nil && bg.AssetRef != "" && !bg.AssetRef.Valid() {
		return nil, fmt.Errorf("%w: malformed background asset reference", ErrInvalidParams)
	}
	s := d.Slides[idx]
	prev := SlideFields{Title: s.Title, Background: s.Background, Hidden: s.Hidden, Duration: s.Duration}
	return UpdateSlide{SlideID: p.SlideID, Patch: p.Patch, Previous: &prev}, nil
}

func (p UpdateSlide) apply(d *model.Deck) error {
	idx := d.SlideIndex(p.SlideID)
	if idx < 0 {
		return fmt.Errorf("%w: slide %s", ErrTargetNotFound, p.SlideID)
	}
	s := &d.Slides[idx]
	if p.Patch.Title != nil {
		s.Title = *p.Patch.Title
	}
	if p.Patch.Background != nil {
		s.Background = *p.Patch.Background
	}
	if p.Patch.Hidden != nil {
		s.Hidden = *p.Patch.Hidden
	}
	if p.Patch.Duration != nil {
		s.Duration = *p.Patch.Duration
	}
	return nil
}

func (p UpdateSlide) revert(d *model.Deck) error {
	if p.Previous == nil {
		return fmt.Errorf("%w: updateSlide", ErrNotPrepared)
	}
	idx := d.SlideIndex(p.SlideID)
	if idx < 0 {
		return fmt.Errorf("%w: slide %s", ErrTargetNotFound, p.SlideID)
	}
	s := &d.Slides[idx]
	s.Title = p.Previous.Title
	s.Background = p.Previous.Background
	s.Hidden = p.Previous.Hidden
	s.Duration = p.Previous.Duration
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

func expectSlideAt(d *model.Deck, idx int, id string) error {
	if idx < 0 || idx >= len(d.Slides) {
		return fmt.Errorf("%w: slide index %d", ErrIndexOutOfRange, idx)
	}
	if d.Slides[idx].ID != id {
		return fmt.Errorf("%w: slide %s not at index %d", ErrTargetNotFound, id, idx)
	}
	return nil
}

// claimIDs assigns missing ids under e (recursively) and checks that none of
// them is used by d or already claimed in seen.
func claimIDs(d *model.Deck, e *model.Element, seen map[string]struct{}) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if d.HasID(e.ID) {
		return fmt.Errorf("%w: id %s already exists", ErrInvalidParams, e.ID)
	}
	if _, dup := seen[e.ID]; dup {
		return fmt.Errorf("%w: id %s used twice", ErrInvalidParams, e.ID)
	}
	seen[e.ID] = struct{}{}
	if e.Group != nil {
		for i := range e.Group.Children {
			if err := claimIDs(d, &e.Group.Children[i], seen); err != nil {
				return err
			}
		}
	}
	if err := e.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}
