// Copyright (C) 2025 Driftline Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package session owns authentication and the per-login session
// object the rest of the system receives. Credentials live in a flat
// YAML store with password digests; a Session is created at login,
// passed explicitly into every turn, and discarded at logout. The
// customer id bound here is the only one the tool layer will accept.
package session

import (
	"time"

	"github.com/google/uuid"
)

// Role gates which assistant and tool a login receives.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleBusiness Role = "business"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleCustomer || r == RoleBusiness }

// Session is one authenticated login. CustomerID is set only for the
// customer role and is the identity every order lookup is pinned to.
type Session struct {
	ID         string
	Role       Role
	Username   string
	CustomerID string
	StartedAt  time.Time
}

// NewSession builds a session for an authenticated user.
func NewSession(role Role, username, customerID string) *Session {
	return &Session{
		ID:         uuid.NewString(),
		Role:       role,
		Username:   username,
		CustomerID: customerID,
		StartedAt:  time.Now(),
	}
}
