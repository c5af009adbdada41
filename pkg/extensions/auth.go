// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extensions

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/awnumar/memguard"
)

// ErrUnauthorized is returned when authentication or authorization fails.
// Implementations wrap it with context.
var ErrUnauthorized = errors.New("unauthorized")

// Roles understood by RoleAuthzProvider.
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

// AuthInfo is the identity returned by a successful Validate.
type AuthInfo struct {
	// UserID is never empty.
	UserID string
	Email  string
	Roles  []string
}

// HasRole reports whether the user holds role.
func (a *AuthInfo) HasRole(role string) bool {
	if a == nil {
		return false
	}
	return slices.Contains(a.Roles, role)
}

// AuthProvider validates a bearer token and returns the caller's identity.
//
// # Outputs
//
//   - *AuthInfo: Identity when the token is valid.
//   - error: ErrUnauthorized (wrapped) for a bad token, any other error for
//     provider failures.
type AuthProvider interface {
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// AuthzRequest is a (subject, action, resource) access check.
type AuthzRequest struct {
	User         *AuthInfo
	Action       string
	ResourceType string
	// ResourceID is the document id, or empty for service-wide actions.
	ResourceID string
}

// AuthzProvider decides whether a user may perform an action.
type AuthzProvider interface {
	// Authorize returns nil when allowed and ErrUnauthorized (wrapped) when
	// denied.
	Authorize(ctx context.Context, req AuthzRequest) error
}

// =============================================================================
// No-op implementations
// =============================================================================

// NopAuthProvider accepts any token as the local admin user.
type NopAuthProvider struct{}

func (p *NopAuthProvider) Validate(_ context.Context, _ string) (*AuthInfo, error) {
	return &AuthInfo{
		UserID: "local-user",
		Roles:  []string{RoleAdmin},
	}, nil
}

// NopAuthzProvider allows every action.
type NopAuthzProvider struct{}

func (p *NopAuthzProvider) Authorize(_ context.Context, _ AuthzRequest) error {
	return nil
}

// =============================================================================
// Static token provider
// =============================================================================

// TokenAuthProvider authenticates against a fixed token table, as loaded
// from configuration.
//
// # Description
//
// The token bytes live in one mlocked, read-only memguard buffer so they
// are never swapped to disk and are wiped by Destroy. The table itself
// only records each token's offset and length.
//
// # Thread Safety
//
// Safe for concurrent use. Validate fails with ErrUnauthorized once
// Destroy has run.
type TokenAuthProvider struct {
	mu        sync.RWMutex
	secrets   *memguard.LockedBuffer
	entries   []tokenEntry
	destroyed bool
}

type tokenEntry struct {
	offset, length int
	info           AuthInfo
}

// NewTokenAuthProvider copies tokens into secure memory. Entries with an
// empty token or user id are rejected.
func NewTokenAuthProvider(tokens map[string]AuthInfo) (*TokenAuthProvider, error) {
	size := 0
	for tok, info := range tokens {
		if tok == "" || info.UserID == "" {
			return nil, fmt.Errorf("token table: empty token or user id")
		}
		size += len(tok)
	}
	p := &TokenAuthProvider{entries: make([]tokenEntry, 0, len(tokens))}
	if size == 0 {
		return p, nil
	}

	buf := memguard.NewBuffer(size)
	if buf == nil || !buf.IsAlive() {
		return nil, fmt.Errorf("token table: failed to allocate %d bytes of secure memory", size)
	}
	offset := 0
	for tok, info := range tokens {
		copy(buf.Bytes()[offset:], tok)
		info.Roles = slices.Clone(info.Roles)
		p.entries = append(p.entries, tokenEntry{offset: offset, length: len(tok), info: info})
		offset += len(tok)
	}
	buf.Freeze()
	p.secrets = buf
	return p, nil
}

// Validate compares token with every entry in constant time.
func (p *TokenAuthProvider) Validate(ctx context.Context, token string) (*AuthInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if token == "" {
		return nil, fmt.Errorf("missing bearer token: %w", ErrUnauthorized)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.destroyed {
		return nil, fmt.Errorf("token table destroyed: %w", ErrUnauthorized)
	}
	var secrets []byte
	if p.secrets != nil {
		secrets = p.secrets.Bytes()
	}
	candidate := []byte(token)
	var match *AuthInfo
	for _, e := range p.entries {
		if subtle.ConstantTimeCompare(secrets[e.offset:e.offset+e.length], candidate) == 1 {
			info := e.info
			info.Roles = slices.Clone(info.Roles)
			match = &info
		}
	}
	if match == nil {
		return nil, fmt.Errorf("unknown token: %w", ErrUnauthorized)
	}
	return match, nil
}

// Destroy wipes the token bytes and releases the locked memory. Safe to
// call more than once.
func (p *TokenAuthProvider) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.secrets != nil {
		p.secrets.Destroy()
		p.secrets = nil
	}
	p.destroyed = true
	p.entries = nil
}

// =============================================================================
// Role-based authorization
// =============================================================================

// RoleAuthzProvider grants an action when the user holds any of the roles
// mapped to it. RoleAdmin is granted everything.
type RoleAuthzProvider struct {
	grants map[string][]string
}

// DefaultGrants maps the deck actions to roles: viewers read, editors
// also command, admins do everything.
func DefaultGrants() map[string][]string {
	return map[string][]string{
		ActionRead:    {RoleViewer, RoleEditor},
		ActionCommand: {RoleEditor},
		ActionAdmin:   {},
	}
}

// NewRoleAuthzProvider creates a provider for grants. Nil uses
// DefaultGrants.
func NewRoleAuthzProvider(grants map[string][]string) *RoleAuthzProvider {
	if grants == nil {
		grants = DefaultGrants()
	}
	return &RoleAuthzProvider{grants: grants}
}

func (p *RoleAuthzProvider) Authorize(_ context.Context, req AuthzRequest) error {
	if req.User == nil {
		return fmt.Errorf("no identity for %s: %w", req.Action, ErrUnauthorized)
	}
	if req.User.HasRole(RoleAdmin) {
		return nil
	}
	for _, role := range p.grants[req.Action] {
		if req.User.HasRole(role) {
			return nil
		}
	}
	return fmt.Errorf("user %s cannot %s %s %s: %w",
		req.User.UserID, req.Action, req.ResourceType, req.ResourceID, ErrUnauthorized)
}

var (
	_ AuthProvider  = (*NopAuthProvider)(nil)
	_ AuthProvider  = (*TokenAuthProvider)(nil)
	_ AuthzProvider = (*NopAuthzProvider)(nil)
	_ AuthzProvider = (*RoleAuthzProvider)(nil)
)
