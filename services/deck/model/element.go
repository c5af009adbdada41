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
	"fmt"
	"math"
	"regexp"
)

// Kind discriminates the Element variants.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindShape Kind = "shape"
	KindChart Kind = "chart"
	KindTable Kind = "table"
	KindCode  Kind = "code"
	KindGroup Kind = "group"
)

// Valid reports whether k is a known element kind.
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindImage, KindShape, KindChart, KindTable, KindCode, KindGroup:
		return true
	}
	return false
}

// AssetRef is a content address for binary content held by the asset store.
// The form is an optional "sha256:" prefix followed by 64 lowercase hex digits.
type AssetRef string

var assetRefPattern = regexp.MustCompile(`^(sha256:)?[a-f0-9]{64}$`)

// Valid reports whether r is a well-formed content address.
func (r AssetRef) Valid() bool {
	return assetRefPattern.MatchString(string(r))
}

// Bounds positions an element on its slide.
type Bounds struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Rotation float64 `json:"rotation"`
}

// Style is an open map of presentation attributes (fill, font, opacity...).
type Style map[string]any

// Animation describes an element entrance/emphasis effect.
type Animation struct {
	Effect     string `json:"effect"`
	DurationMs int    `json:"durationMs,omitempty"`
	DelayMs    int    `json:"delayMs,omitempty"`
	Trigger    string `json:"trigger,omitempty"`
}

// Element is one visual object on a slide.
//
// Element is a tagged union: Kind selects which one of the payload pointers
// is set. Validate enforces that exactly the matching payload is present.
type Element struct {
	ID        string     `json:"id"`
	Kind      Kind       `json:"kind"`
	Bounds    Bounds     `json:"bounds"`
	Style     Style      `json:"style,omitempty"`
	Animation *Animation `json:"animation,omitempty"`

	Text  *TextContent  `json:"text,omitempty"`
	Image *ImageContent `json:"image,omitempty"`
	Shape *ShapeContent `json:"shape,omitempty"`
	Chart *ChartContent `json:"chart,omitempty"`
	Table *TableContent `json:"table,omitempty"`
	Code  *CodeContent  `json:"code,omitempty"`
	Group *GroupContent `json:"group,omitempty"`
}

// TextContent is the payload of a text element.
type TextContent struct {
	Text  string `json:"text"`
	Align string `json:"align,omitempty"`
}

// ImageContent is the payload of an image element.
type ImageContent struct {
	AssetRef AssetRef `json:"assetRef"`
	Alt      string   `json:"alt,omitempty"`
	Fit      string   `json:"fit,omitempty"`
}

// ShapeContent is the payload of a shape element.
type ShapeContent struct {
	Shape string `json:"shape"`
}

// ChartSeries is one named data series of a chart.
type ChartSeries struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// ChartContent is the payload of a chart element.
type ChartContent struct {
	ChartType string        `json:"chartType"`
	Labels    []string      `json:"labels,omitempty"`
	Series    []ChartSeries `json:"series,omitempty"`
}

// TableContent is the payload of a table element.
type TableContent struct {
	Rows      [][]string `json:"rows"`
	HeaderRow bool       `json:"headerRow,omitempty"`
}

// CodeContent is the payload of a code element.
type CodeContent struct {
	Language string `json:"language,omitempty"`
	Source   string `json:"source"`
}

// GroupContent is the payload of a group element.
type GroupContent struct {
	Children []Element `json:"children"`
}

// payloadCount returns how many variant payloads are set.
func (e *Element) payloadCount() int {
	n := 0
	for _, set := range []bool{
		e.Text != nil, e.Image != nil, e.Shape != nil, e.Chart != nil,
		e.Table != nil, e.Code != nil, e.Group != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

// hasPayloadFor reports whether the payload matching k is set.
func (e *Element) hasPayloadFor(k Kind) bool {
	switch k {
	case KindText:
		return e.Text != nil
	case KindImage:
		return e.Image != nil
	case KindShape:
		return e.Shape != nil
	case KindChart:
		return e.Chart != nil
	case KindTable:
		return e.Table != nil
	case KindCode:
		return e.Code != nil
	case KindGroup:
		return e.Group != nil
	}
	return false
}

// Validate checks the structural rules of a single element (recursively for
// groups). It does not check id uniqueness; see Deck.CheckInvariants.
//
// # Outputs
//
//   - error: Wraps ErrInvalidElement with the reason, nil when valid.
func (e *Element) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidElement)
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: element %s has unknown kind %q", ErrInvalidElement, e.ID, e.Kind)
	}
	if e.payloadCount() != 1 || !e.hasPayloadFor(e.Kind) {
		return fmt.Errorf("%w: element %s must carry exactly the %s payload", ErrInvalidElement, e.ID, e.Kind)
	}
	if err := e.Bounds.validate(); err != nil {
		return fmt.Errorf("%w: element %s: %v", ErrInvalidElement, e.ID, err)
	}
	switch e.Kind {
	case KindImage:
		if !e.Image.AssetRef.Valid() {
			return fmt.Errorf("%w: element %s has malformed asset reference", ErrInvalidElement, e.ID)
		}
	case KindGroup:
		if len(e.Group.Children) == 0 {
			return fmt.Errorf("%w: group %s has no children", ErrInvalidElement, e.ID)
		}
		for i := range e.Group.Children {
			if err := e.Group.Children[i].Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b Bounds) validate() error {
	for _, v := range []float64{b.X, b.Y, b.Width, b.Height, b.Rotation} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("bounds must be finite")
		}
	}
	if b.Width < 0 || b.Height < 0 {
		return fmt.Errorf("bounds width and height must not be negative")
	}
	return nil
}

// UnionBounds returns the axis-aligned box enclosing all elements.
// Rotation is ignored and the result has zero rotation.
func UnionBounds(elems []Element) Bounds {
	if len(elems) == 0 {
		return Bounds{}
	}
	minX, minY := elems[0].Bounds.X, elems[0].Bounds.Y
	maxX, maxY := minX+elems[0].Bounds.Width, minY+elems[0].Bounds.Height
	for _, e := range elems[1:] {
		minX = math.Min(minX, e.Bounds.X)
		minY = math.Min(minY, e.Bounds.Y)
		maxX = math.Max(maxX, e.Bounds.X+e.Bounds.Width)
		maxY = math.Max(maxY, e.Bounds.Y+e.Bounds.Height)
	}
	return Bounds{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}
