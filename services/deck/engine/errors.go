// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import "errors"

var (
	// ErrNotReady is returned when an operation needs a Ready engine and
	// the engine is unloaded or still loading.
	ErrNotReady = errors.New("engine not ready")

	// ErrNotLoaded is returned by Registry lookups for a document with no
	// engine.
	ErrNotLoaded = errors.New("document not loaded")

	// ErrLoadFailed wraps a gateway read error during Load.
	ErrLoadFailed = errors.New("document load failed")

	// ErrInvariantViolation is returned when a command leaves the deck in
	// an inconsistent state. The deck is restored to its pre-command value.
	ErrInvariantViolation = errors.New("deck invariant violation")
)
