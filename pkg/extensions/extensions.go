// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extensions defines the access-control and audit hooks of the
// deck service.
//
// The local build uses no-op defaults: every request is the "local-user"
// admin, every action is allowed and audit events are discarded. Hosted
// deployments swap in TokenAuthProvider, RoleAuthzProvider and
// SlogAuditLogger, or their own implementations, via ServiceOptions.
//
// # Thread Safety
//
// All interface implementations must be safe for concurrent use.
package extensions

// Actions checked by the HTTP layer.
const (
	// ActionRead covers snapshots, history and live-sync subscriptions.
	ActionRead = "deck.read"

	// ActionCommand covers apply, undo, redo and navigation.
	ActionCommand = "deck.command"

	// ActionAdmin covers reset and dispose.
	ActionAdmin = "deck.admin"
)

// ResourceDeck is the resource type of every deck action.
const ResourceDeck = "deck"

// ServiceOptions groups the extension points. Nil fields are replaced with
// no-op defaults by WithDefaults.
type ServiceOptions struct {
	AuthProvider  AuthProvider
	AuthzProvider AuthzProvider
	AuditLogger   AuditLogger
}

// DefaultOptions returns ServiceOptions with no-op implementations.
func DefaultOptions() ServiceOptions {
	return ServiceOptions{
		AuthProvider:  &NopAuthProvider{},
		AuthzProvider: &NopAuthzProvider{},
		AuditLogger:   &NopAuditLogger{},
	}
}

// WithDefaults fills nil fields with no-op implementations.
func (opts ServiceOptions) WithDefaults() ServiceOptions {
	d := DefaultOptions()
	if opts.AuthProvider == nil {
		opts.AuthProvider = d.AuthProvider
	}
	if opts.AuthzProvider == nil {
		opts.AuthzProvider = d.AuthzProvider
	}
	if opts.AuditLogger == nil {
		opts.AuditLogger = d.AuditLogger
	}
	return opts
}

// WithAuth returns a copy of opts with the given AuthProvider.
func (opts ServiceOptions) WithAuth(provider AuthProvider) ServiceOptions {
	opts.AuthProvider = provider
	return opts
}

// WithAuthz returns a copy of opts with the given AuthzProvider.
func (opts ServiceOptions) WithAuthz(provider AuthzProvider) ServiceOptions {
	opts.AuthzProvider = provider
	return opts
}

// WithAudit returns a copy of opts with the given AuditLogger.
func (opts ServiceOptions) WithAudit(logger AuditLogger) ServiceOptions {
	opts.AuditLogger = logger
	return opts
}
