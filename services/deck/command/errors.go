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

import "errors"

// Validation failures. All of them are returned before the deck is touched.
var (
	// ErrUnknownType indicates the command type is not in the catalogue.
	ErrUnknownType = errors.New("unknown command type")

	// ErrMalformed indicates the command envelope or params failed to parse
	// or failed struct validation.
	ErrMalformed = errors.New("malformed command")

	// ErrTargetNotFound indicates a referenced slide or element does not exist.
	ErrTargetNotFound = errors.New("target not found")

	// ErrIndexOutOfRange indicates a slide or z-order index is out of range.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrInvalidParams indicates params are well-formed but not applicable to
	// the current deck (id collision, kind mismatch, empty patch, ...).
	ErrInvalidParams = errors.New("invalid command params")
)

// ErrNotPrepared is returned by Apply/Revert when the captured pre-image a
// command needs is missing. It indicates a programming error upstream.
var ErrNotPrepared = errors.New("command not prepared")

// IsValidation reports whether err is one of the validation failures.
func IsValidation(err error) bool {
	return errors.Is(err, ErrUnknownType) ||
		errors.Is(err, ErrMalformed) ||
		errors.Is(err, ErrTargetNotFound) ||
		errors.Is(err, ErrIndexOutOfRange) ||
		errors.Is(err, ErrInvalidParams)
}
