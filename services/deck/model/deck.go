// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package model defines the deck document: slides, positioned elements and
// deck-wide settings.
//
// # Description
//
// The types in this package are pure data. They carry no locking and no
// behaviour beyond structural helpers (insert/remove/move, lookups, deep
// copies) and invariant checks. The only legal mutation path for a live deck
// is the command package, driven by the edit engine.
//
// # Invariants
//
//   - Slide ids are unique within a Deck.
//   - Element ids are unique across the whole Deck (all slides, group
//     children and layer elements), because commands address elements by
//     id alone.
//   - Slide.Number is 1-based, ascending and gap free in slide order.
//
// # Thread Safety
//
// Not safe for concurrent mutation. Callers share decks across goroutines
// only through Clone().
package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Deck
// =============================================================================

// Deck is the full document being edited.
type Deck struct {
	Meta     Meta     `json:"meta"`
	Settings Settings `json:"settings"`
	Slides   []Slide  `json:"slides"`
}

// Meta holds descriptive deck metadata.
type Meta struct {
	Title     string    `json:"title"`
	Author    string    `json:"author,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Settings holds deck-wide presentation settings.
type Settings struct {
	Theme       string `json:"theme"`
	AspectRatio string `json:"aspectRatio"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Loop        bool   `json:"loop"`
	AutoAdvance bool   `json:"autoAdvance"`
}

// DefaultSettings returns the settings of a freshly created deck.
func DefaultSettings() Settings {
	return Settings{
		Theme:       "default",
		AspectRatio: "16:9",
		Width:       1920,
		Height:      1080,
	}
}

// NewDeck creates the default deck: one empty slide and default settings.
//
// # Inputs
//
//   - title: Deck title. May be empty.
//
// # Outputs
//
//   - *Deck: A deck that satisfies CheckInvariants.
func NewDeck(title string) *Deck {
	d := &Deck{
		Meta: Meta{
			Title:     title,
			CreatedAt: time.Now().UTC().Truncate(time.Second),
		},
		Settings: DefaultSettings(),
		Slides:   []Slide{NewSlide()},
	}
	d.Renumber()
	return d
}

// SlideIndex returns the index of the slide with the given id, or -1.
func (d *Deck) SlideIndex(id string) int {
	for i := range d.Slides {
		if d.Slides[i].ID == id {
			return i
		}
	}
	return -1
}

// LocateElement finds a top-level element by id.
//
// # Outputs
//
//   - slideIdx, elemIdx: Position of the element.
//   - ok: False when no slide holds an element with that id at top level.
//
// # Limitations
//
//   - Group children and layer elements are not addressable; commands only
//     operate on Slide.Elements.
func (d *Deck) LocateElement(id string) (slideIdx, elemIdx int, ok bool) {
	for si := range d.Slides {
		if ei := d.Slides[si].ElementIndex(id); ei >= 0 {
			return si, ei, true
		}
	}
	return -1, -1, false
}

// HasID reports whether any element (at any depth) or slide uses id.
func (d *Deck) HasID(id string) bool {
	if d.SlideIndex(id) >= 0 {
		return true
	}
	found := false
	d.walkElements(func(e *Element) {
		if e.ID == id {
			found = true
		}
	})
	return found
}

// Renumber recomputes Slide.Number as 1..n in slide order.
func (d *Deck) Renumber() {
	for i := range d.Slides {
		d.Slides[i].Number = i + 1
	}
}

// InsertSlide inserts s at index and renumbers.
//
// Index must be in [0, len(Slides)]; callers validate first.
func (d *Deck) InsertSlide(index int, s Slide) {
	d.Slides = insertAt(d.Slides, index, s)
	d.Renumber()
}

// RemoveSlide removes and returns the slide at index and renumbers.
func (d *Deck) RemoveSlide(index int) Slide {
	var removed Slide
	d.Slides, removed = removeAt(d.Slides, index)
	d.Renumber()
	return removed
}

// MoveSlide moves the slide at from to position to and renumbers.
func (d *Deck) MoveSlide(from, to int) {
	d.Slides = moveItem(d.Slides, from, to)
	d.Renumber()
}

func (d *Deck) walkElements(fn func(e *Element)) {
	for si := range d.Slides {
		s := &d.Slides[si]
		for ei := range s.Elements {
			walkElement(&s.Elements[ei], fn)
		}
		for li := range s.Layers {
			for ei := range s.Layers[li].Elements {
				walkElement(&s.Layers[li].Elements[ei], fn)
			}
		}
	}
}

func walkElement(e *Element, fn func(e *Element)) {
	fn(e)
	if e.Group != nil {
		for i := range e.Group.Children {
			walkElement(&e.Group.Children[i], fn)
		}
	}
}

// =============================================================================
// Slide
// =============================================================================

// Slide is one page of a deck.
type Slide struct {
	ID         string     `json:"id"`
	Number     int        `json:"number"`
	Title      string     `json:"title,omitempty"`
	Background Background `json:"background"`
	Elements   []Element  `json:"elements"`
	Layers     []Layer    `json:"layers,omitempty"`
	Hidden     bool       `json:"hidden,omitempty"`
	// Duration is the auto-advance time in seconds; zero means manual.
	Duration float64 `json:"duration,omitempty"`
}

// Background is a slide fill: a color and optionally an image asset.
type Background struct {
	Color    string   `json:"color"`
	AssetRef AssetRef `json:"assetRef,omitempty"`
}

// Layer is a named, ordered group of render-side elements.
type Layer struct {
	ID       string    `json:"id"`
	Name     string    `json:"name,omitempty"`
	Elements []Element `json:"elements"`
}

// NewSlide returns an empty slide with a fresh id and a white background.
func NewSlide() Slide {
	return Slide{
		ID:         uuid.NewString(),
		Background: Background{Color: "#ffffff"},
		Elements:   []Element{},
	}
}

// ElementIndex returns the index of the top-level element id, or -1.
func (s *Slide) ElementIndex(id string) int {
	for i := range s.Elements {
		if s.Elements[i].ID == id {
			return i
		}
	}
	return -1
}

// InsertElement inserts e at index (z-order position).
func (s *Slide) InsertElement(index int, e Element) {
	s.Elements = insertAt(s.Elements, index, e)
}

// RemoveElement removes and returns the element at index.
func (s *Slide) RemoveElement(index int) Element {
	var removed Element
	s.Elements, removed = removeAt(s.Elements, index)
	return removed
}

// MoveElement changes the z-order position of an element.
func (s *Slide) MoveElement(from, to int) {
	s.Elements = moveItem(s.Elements, from, to)
}

// =============================================================================
// Slice helpers
// =============================================================================

func insertAt[T any](items []T, index int, item T) []T {
	out := make([]T, 0, len(items)+1)
	out = append(out, items[:index]...)
	out = append(out, item)
	out = append(out, items[index:]...)
	return out
}

func removeAt[T any](items []T, index int) ([]T, T) {
	removed := items[index]
	out := make([]T, 0, len(items)-1)
	out = append(out, items[:index]...)
	out = append(out, items[index+1:]...)
	return out, removed
}

func moveItem[T any](items []T, from, to int) []T {
	if from == to {
		return items
	}
	rest, item := removeAt(items, from)
	return insertAt(rest, to, item)
}
