// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianDeck/pkg/validation"
	"github.com/AleutianAI/AleutianDeck/services/deck/command"
	"github.com/AleutianAI/AleutianDeck/services/deck/engine"
)

// Error codes in API error bodies.
const (
	CodeInvalidCommand     = "INVALID_COMMAND"
	CodeTargetNotFound     = "TARGET_NOT_FOUND"
	CodeIndexOutOfRange    = "INDEX_OUT_OF_RANGE"
	CodeNotLoaded          = "NOT_LOADED"
	CodeNotReady           = "NOT_READY"
	CodeInvariantViolation = "INVARIANT_VIOLATION"
	CodeLoadFailed         = "LOAD_FAILED"
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeInternal           = "INTERNAL"
)

// APIError is the body of every error response:
//
//	{"error": {"code": "TARGET_NOT_FOUND", "message": "..."}}
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorBody struct {
	Error APIError `json:"error"`
}

// classify maps an engine or command error to a status and code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, validation.ErrInvalidDocumentID):
		return http.StatusBadRequest, CodeInvalidRequest
	case errors.Is(err, command.ErrTargetNotFound):
		return http.StatusBadRequest, CodeTargetNotFound
	case errors.Is(err, command.ErrIndexOutOfRange):
		return http.StatusBadRequest, CodeIndexOutOfRange
	case command.IsValidation(err):
		return http.StatusBadRequest, CodeInvalidCommand
	case errors.Is(err, engine.ErrNotLoaded):
		return http.StatusNotFound, CodeNotLoaded
	case errors.Is(err, engine.ErrNotReady):
		return http.StatusConflict, CodeNotReady
	case errors.Is(err, engine.ErrInvariantViolation):
		return http.StatusInternalServerError, CodeInvariantViolation
	case errors.Is(err, engine.ErrLoadFailed):
		return http.StatusBadGateway, CodeLoadFailed
	}
	return http.StatusInternalServerError, CodeInternal
}

// writeError aborts with the mapped status. 5xx messages are generic so
// storage and invariant details stay in the logs.
func writeError(c *gin.Context, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	c.AbortWithStatusJSON(status, errorBody{Error: APIError{Code: code, Message: msg}})
}

func writeBadRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: APIError{Code: CodeInvalidRequest, Message: msg}})
}
