// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides the gin middleware of the deck service.
//
// # Authentication Flow
//
//	Request
//	   │
//	   ▼
//	AuthMiddleware ──► provider.Validate(ctx, bearer token) ──► AuthInfo in context
//	   │
//	   ▼
//	RequireAction ──► authz.Authorize(user, action, deck :id)
//	   │
//	   ▼
//	Handler (GetAuthInfo)
//
// With the no-op providers every request is the local admin, so a local
// deckd needs no token.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianDeck/pkg/extensions"
)

// authInfoKey is the gin context key holding *extensions.AuthInfo.
const authInfoKey = "deck_auth_info"

// SetAuthInfo stores the authenticated identity for downstream handlers.
func SetAuthInfo(c *gin.Context, info *extensions.AuthInfo) {
	c.Set(authInfoKey, info)
}

// GetAuthInfo returns the identity stored by AuthMiddleware, or nil.
func GetAuthInfo(c *gin.Context) *extensions.AuthInfo {
	if info, exists := c.Get(authInfoKey); exists {
		if authInfo, ok := info.(*extensions.AuthInfo); ok {
			return authInfo
		}
	}
	return nil
}

// UserID returns the authenticated user id or "anonymous".
func UserID(c *gin.Context) string {
	if info := GetAuthInfo(c); info != nil {
		return info.UserID
	}
	return "anonymous"
}

// AuthMiddleware authenticates the request's bearer token.
//
// # Description
//
// The token comes from "Authorization: Bearer <token>" or, for browsers
// opening an EventSource or WebSocket (which cannot set headers), the
// access_token query parameter. Failures abort with 401 and are audited.
//
// # Inputs
//
//   - provider: Must not be nil.
//   - audit: Receives auth.failed events. May be nil.
//
// # Thread Safety
//
// The returned middleware can be used concurrently.
func AuthMiddleware(provider extensions.AuthProvider, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)

		authInfo, err := provider.Validate(c.Request.Context(), token)
		if err != nil {
			if audit != nil {
				_ = audit.Log(c.Request.Context(), extensions.AuditEvent{
					EventType:    extensions.EventAuthFailed,
					ResourceType: extensions.ResourceDeck,
					ResourceID:   c.Param("id"),
					Outcome:      extensions.OutcomeFailure,
					Metadata:     map[string]any{"path": c.FullPath()},
				})
			}
			msg := "authentication failed"
			if errors.Is(err, extensions.ErrUnauthorized) {
				msg = "unauthorized"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"code": "UNAUTHORIZED", "message": msg},
			})
			return
		}

		SetAuthInfo(c, authInfo)
		c.Next()
	}
}

// RequireAction authorizes action on the deck named by the :id path
// parameter. Denials abort with 403 and are audited.
func RequireAction(authz extensions.AuthzProvider, audit extensions.AuditLogger, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := extensions.AuthzRequest{
			User:         GetAuthInfo(c),
			Action:       action,
			ResourceType: extensions.ResourceDeck,
			ResourceID:   c.Param("id"),
		}
		if err := authz.Authorize(c.Request.Context(), req); err != nil {
			if audit != nil {
				_ = audit.Log(c.Request.Context(), extensions.AuditEvent{
					EventType:    extensions.EventAuthzDenied,
					UserID:       UserID(c),
					Action:       action,
					ResourceType: extensions.ResourceDeck,
					ResourceID:   req.ResourceID,
					Outcome:      extensions.OutcomeDenied,
				})
			}
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": gin.H{"code": "FORBIDDEN", "message": "not permitted"},
			})
			return
		}
		c.Next()
	}
}

// extractBearerToken parses "Bearer <token>" case-insensitively, falling
// back to the access_token query parameter.
func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return strings.TrimSpace(c.Query("access_token"))
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
