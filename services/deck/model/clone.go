// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

import (
	"reflect"
)

// Clone returns a deep copy of the deck. Nil-ness of collections is kept.
func (d *Deck) Clone() *Deck {
	if d == nil {
		return nil
	}
	out := &Deck{
		Meta:     d.Meta,
		Settings: d.Settings,
	}
	if d.Slides != nil {
		out.Slides = make([]Slide, len(d.Slides))
		for i := range d.Slides {
			out.Slides[i] = d.Slides[i].Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the slide.
func (s Slide) Clone() Slide {
	out := s
	out.Elements = cloneElements(s.Elements)
	if s.Layers != nil {
		out.Layers = make([]Layer, len(s.Layers))
		for i, l := range s.Layers {
			out.Layers[i] = Layer{ID: l.ID, Name: l.Name, Elements: cloneElements(l.Elements)}
		}
	}
	return out
}

// Clone returns a deep copy of the element, including group children.
func (e Element) Clone() Element {
	out := e
	out.Style = e.Style.Clone()
	if e.Animation != nil {
		a := *e.Animation
		out.Animation = &a
	}
	if e.Text != nil {
		t := *e.Text
		out.Text = &t
	}
	if e.Image != nil {
		im := *e.Image
		out.Image = &im
	}
	if e.Shape != nil {
		sh := *e.Shape
		out.Shape = &sh
	}
	if e.Chart != nil {
		c := ChartContent{ChartType: e.Chart.ChartType}
		if e.Chart.Labels != nil {
			c.Labels = append([]string(nil), e.Chart.Labels...)
		}
		if e.Chart.Series != nil {
			c.Series = make([]ChartSeries, len(e.Chart.Series))
			for i, sr := range e.Chart.Series {
				c.Series[i] = ChartSeries{Name: sr.Name}
				if sr.Values != nil {
					c.Series[i].Values = append([]float64(nil), sr.Values...)
				}
			}
		}
		out.Chart = &c
	}
	if e.Table != nil {
		t := TableContent{HeaderRow: e.Table.HeaderRow}
		if e.Table.Rows != nil {
			t.Rows = make([][]string, len(e.Table.Rows))
			for i, r := range e.Table.Rows {
				if r != nil {
					t.Rows[i] = append([]string(nil), r...)
				}
			}
		}
		out.Table = &t
	}
	if e.Code != nil {
		c := *e.Code
		out.Code = &c
	}
	if e.Group != nil {
		out.Group = &GroupContent{Children: cloneElements(e.Group.Children)}
	}
	return out
}

// Clone deep copies the style map, including nested maps and slices.
func (s Style) Clone() Style {
	if s == nil {
		return nil
	}
	out := make(Style, len(s))
	for k, v := range s {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = cloneValue(vv)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = cloneValue(vv)
		}
		return s
	default:
		return v
	}
}

func cloneElements(in []Element) []Element {
	if in == nil {
		return nil
	}
	out := make([]Element, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

// =============================================================================
// Equality
// =============================================================================

// Equal reports whether two decks hold the same content. Nil and empty
// collections compare equal.
func Equal(a, b *Deck) bool {
	if a == nil || b == nil {
		return a == b
	}
	return reflect.DeepEqual(normalize(a.Clone()), normalize(b.Clone()))
}

func normalize(d *Deck) *Deck {
	if d.Slides == nil {
		d.Slides = []Slide{}
	}
	for i := range d.Slides {
		s := &d.Slides[i]
		s.Elements = normalizeElements(s.Elements)
		if len(s.Layers) == 0 {
			s.Layers = nil
		}
		for li := range s.Layers {
			s.Layers[li].Elements = normalizeElements(s.Layers[li].Elements)
		}
	}
	return d
}

func normalizeElements(in []Element) []Element {
	if in == nil {
		in = []Element{}
	}
	for i := range in {
		if len(in[i].Style) == 0 {
			in[i].Style = nil
		}
		if in[i].Group != nil {
			in[i].Group.Children = normalizeElements(in[i].Group.Children)
		}
	}
	return in
}
