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
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// paramsValidate checks struct tags on decoded params.
var paramsValidate = validator.New()

// =============================================================================
// Catalogue
// =============================================================================

type decodeFunc func(data []byte) (Params, error)

var catalogue = map[Type]decodeFunc{
	TypeAddSlide:        decodeAs[AddSlide],
	TypeDeleteSlide:     decodeAs[DeleteSlide],
	TypeReorderSlides:   decodeAs[ReorderSlides],
	TypeUpdateSlide:     decodeAs[UpdateSlide],
	TypeAddElement:      decodeAs[AddElement],
	TypeDeleteElement:   decodeAs[DeleteElement],
	TypeUpdateElement:   decodeAs[UpdateElement],
	TypeGroupElements:   decodeAs[GroupElements],
	TypeUngroupElements: decodeAs[UngroupElements],
	TypeBringToFront:    decodeAs[BringToFront],
	TypeBringForward:    decodeAs[BringForward],
	TypeSendBackward:    decodeAs[SendBackward],
	TypeSendToBack:      decodeAs[SendToBack],
	TypeUpdateSettings:  decodeAs[UpdateSettings],
}

// Types lists every command type in the catalogue, sorted.
func Types() []Type {
	out := make([]Type, 0, len(catalogue))
	for t := range catalogue {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func decodeAs[P Params](data []byte) (Params, error) {
	var p P
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		data = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := paramsValidate.Struct(p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return p, nil
}

// =============================================================================
// Wire Format
// =============================================================================

// wireCommand is the JSON envelope: {"type", "params", "timestamp"}.
type wireCommand struct {
	Type      Type            `json:"type"`
	Params    json.RawMessage `json:"params,omitempty"`
	Timestamp *time.Time      `json:"timestamp,omitempty"`
}

// Decode parses a command submitted at the service boundary.
//
// # Description
//
// The envelope must carry a known type. Params are decoded strictly
// (unknown fields rejected) into the one struct for that type and
// validated. A missing timestamp is stamped with the current time.
//
// # Outputs
//
//   - Command: The decoded, not yet prepared, command.
//   - error: ErrUnknownType or ErrMalformed (wrapped).
func Decode(data []byte) (Command, error) {
	var c Command
	if err := c.UnmarshalJSON(data); err != nil {
		return Command{}, err
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now().UTC()
	}
	return c, nil
}

// MarshalJSON encodes the command including captured pre-images.
func (c Command) MarshalJSON() ([]byte, error) {
	w := wireCommand{Type: c.Type}
	if c.Params != nil {
		raw, err := json.Marshal(c.Params)
		if err != nil {
			return nil, fmt.Errorf("encoding %s params: %w", c.Type, err)
		}
		w.Params = raw
	}
	if !c.Timestamp.IsZero() {
		ts := c.Timestamp
		w.Timestamp = &ts
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a command envelope and its typed params.
func (c *Command) UnmarshalJSON(data []byte) error {
	var w wireCommand
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if w.Type == "" {
		return fmt.Errorf("%w: missing type", ErrMalformed)
	}
	decode, ok := catalogue[w.Type]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownType, w.Type)
	}
	p, err := decode(w.Params)
	if err != nil {
		return fmt.Errorf("%s: %w", w.Type, err)
	}
	c.Type = w.Type
	c.Params = p
	c.Timestamp = time.Time{}
	if w.Timestamp != nil {
		c.Timestamp = w.Timestamp.UTC()
	}
	return nil
}
