// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation checks user-provided identifiers before they reach
// storage keys, SQL parameters or log lines.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// MaxDocumentIDLength bounds a document id.
const MaxDocumentIDLength = 128

// ErrInvalidDocumentID is wrapped by every ValidateDocumentID failure.
var ErrInvalidDocumentID = errors.New("invalid document id")

// documentIDPattern allows letters, digits, dots, underscores and hyphens,
// starting with a letter or digit.
var documentIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-]*$`)

// ValidateDocumentID checks a document id.
//
// Valid ids:
//   - 1-128 characters
//   - ASCII letters and digits, '.', '_' and '-'
//   - Start with a letter or digit
//
// Example:
//
//	if err := validation.ValidateDocumentID(id); err != nil {
//	    return nil, err
//	}
//	// Safe to use as a badger or redis key
func ValidateDocumentID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidDocumentID)
	}
	if len(id) > MaxDocumentIDLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidDocumentID, MaxDocumentIDLength)
	}
	if !documentIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q (letters, digits, '.', '_' or '-')", ErrInvalidDocumentID, id)
	}
	return nil
}

// SanitizeDocumentID trims surrounding whitespace and validates the result.
func SanitizeDocumentID(id string) (string, error) {
	trimmed := strings.TrimSpace(id)
	if err := ValidateDocumentID(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}
