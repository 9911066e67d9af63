// Copyright (c) 2026 Confira. All rights reserved.
// Author: dev@confira.app

/*
Package auth implements the identity core: user accounts, organizations, and
the token issue/verify/revoke lifecycle.

It defines the domain entities (User, Organization) and orchestrates login,
refresh, and logout against the Session Registry and Revocation Store.

# Architecture

This layer is the "Truth" of the system. Entities defined here have no
transport dependencies and encapsulate all business rules related to identity.
*/
package auth

import (
	"time"

	"github.com/confira/confira/internal/platform/sec"
)

// # Domain Entities

// UserStatus is the lifecycle state of an account.
type UserStatus string

const (
	// StatusActive accounts may authenticate and connect.
	StatusActive UserStatus = "active"

	// StatusSuspended accounts are administratively locked out.
	StatusSuspended UserStatus = "suspended"

	// StatusPending accounts have not completed onboarding.
	StatusPending UserStatus = "pending"
)

// User represents a member of a Confira organization.
type User struct {
	ID             string       `json:"id"`
	OrganizationID string       `json:"organization_id"`
	Email          string       `json:"email"`
	PasswordHash   string       `json:"-"` // Explicitly omitted from JSON for security.
	DisplayName    string       `json:"display_name"`
	Role           sec.UserRole `json:"role"`
	Status         UserStatus   `json:"status"`

	// IsOnline and LastActiveAt are eventually-consistent shadows of the
	// live connection set, maintained by the Connection Manager. The set of
	// live connections is the source of truth; these fields are for queries
	// that cannot reach the shared index.
	IsOnline     bool      `json:"is_online"`
	LastActiveAt time.Time `json:"last_active_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CanConnect reports whether the account may authenticate a connection.
func (u *User) CanConnect() bool {
	return u.Status == StatusActive
}

// Organization is the multi-tenant anchor every account belongs to.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// # Field Identifiers

// Global field names for validation and identity mapping in the auth domain.
const (
	FieldEmail            = "email"
	FieldPassword         = "password"
	FieldDisplayName      = "display_name"
	FieldOrganizationName = "organization_name"
	FieldSessionID        = "session_id"
	FieldAccessToken      = "access_token"
	FieldTokenType        = "token_type"
	FieldExpiresIn        = "expires_in"
	FieldUser             = "user"
	FieldMessage          = "message"
)
