// Copyright (c) 2026 Confira. All rights reserved.
// Author: dev@confira.app

package auth

import (
	"context"
	"time"
)

// # User Data Access

// UserRepository defines the data access contract for user accounts.
type UserRepository interface {

	/*
		FindByID returns the account with the given ID.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - *User: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByID(context context.Context, id string) (*User, error)

	/*
		FindByEmail returns the account with the given email.

		Parameters:
		  - context: context.Context
		  - email: string

		Returns:
		  - *User: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByEmail(context context.Context, email string) (*User, error)

	/*
		Create persists a brand-new user account to the storage.

		Parameters:
		  - context: context.Context
		  - user: *User

		Returns:
		  - error: Persistence failures
	*/
	Create(context context.Context, user *User) error

	/*
		UpdateStatus transitions an account's lifecycle state.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - status: UserStatus

		Returns:
		  - error: Persistence failures
	*/
	UpdateStatus(context context.Context, userID string, status UserStatus) error

	/*
		SetPresenceShadow updates the eventually-consistent is_online and
		last_active_at columns on the account row.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - isOnline: bool
		  - lastActiveAt: time.Time

		Returns:
		  - error: Persistence failures
	*/
	SetPresenceShadow(context context.Context, userID string, isOnline bool, lastActiveAt time.Time) error
}

// # Organization Data Access

// OrganizationRepository defines the data access contract for organizations.
type OrganizationRepository interface {

	/*
		FindByID returns the organization with the given ID.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - *Organization: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByID(context context.Context, id string) (*Organization, error)

	/*
		CreateWithAdmin persists a new organization together with its first
		administrator account in one transaction — all-or-nothing.

		Parameters:
		  - context: context.Context
		  - organization: *Organization
		  - admin: *User

		Returns:
		  - error: Persistence failures (nothing is written on failure)
	*/
	CreateWithAdmin(context context.Context, organization *Organization, admin *User) error
}
