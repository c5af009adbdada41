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

import "errors"

var (
	// ErrDuplicateID indicates two slides or two elements share an id.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrInvalidElement indicates an element violates its structural rules.
	ErrInvalidElement = errors.New("invalid element")

	// ErrBadNumbering indicates slide numbers are not 1..n in slide order.
	ErrBadNumbering = errors.New("slide numbering out of sequence")
)
