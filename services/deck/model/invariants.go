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

import "fmt"

// CheckInvariants verifies the whole-document invariants.
//
// # Description
//
// Checks, in order: slide ids are non-empty and unique, slide numbers run
// 1..n, every element (including group children and layer elements) passes
// Validate, and element ids are unique across the deck.
//
// # Outputs
//
//   - error: Wraps ErrDuplicateID, ErrBadNumbering or ErrInvalidElement.
func (d *Deck) CheckInvariants() error {
	slideIDs := make(map[string]struct{}, len(d.Slides))
	for i := range d.Slides {
		s := &d.Slides[i]
		if s.ID == "" {
			return fmt.Errorf("%w: slide at index %d has empty id", ErrDuplicateID, i)
		}
		if _, dup := slideIDs[s.ID]; dup {
			return fmt.Errorf("%w: slide %s", ErrDuplicateID, s.ID)
		}
		slideIDs[s.ID] = struct{}{}
		if s.Number != i+1 {
			return fmt.Errorf("%w: slide %s at index %d has number %d", ErrBadNumbering, s.ID, i, s.Number)
		}
	}

	elemIDs := make(map[string]struct{})
	var err error
	d.walkElements(func(e *Element) {
		if err != nil {
			return
		}
		if _, dup := elemIDs[e.ID]; dup {
			err = fmt.Errorf("%w: element %s", ErrDuplicateID, e.ID)
			return
		}
		elemIDs[e.ID] = struct{}{}
	})
	if err != nil {
		return err
	}

	for si := range d.Slides {
		s := &d.Slides[si]
		for ei := range s.Elements {
			if err := s.Elements[ei].Validate(); err != nil {
				return err
			}
		}
		for li := range s.Layers {
			for ei := range s.Layers[li].Elements {
				if err := s.Layers[li].Elements[ei].Validate(); err != nil {
					return err
				}
			}
		}
		if s.Background.AssetRef != "" && !s.Background.AssetRef.Valid() {
			return fmt.Errorf("%w: slide %s background has malformed asset reference", ErrInvalidElement, s.ID)
		}
	}
	return nil
}

// CollectIDs returns every id used by e and its descendants.
func CollectIDs(e *Element) []string {
	var ids []string
	walkElement(e, func(x *Element) { ids = append(ids, x.ID) })
	return ids
}
