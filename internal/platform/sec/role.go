// Copyright (c) 2026 Confira. All rights reserved.
// Author: dev@confira.app

package sec

// # User Roles

// UserRole represents the authorization level granted to an account
// within its organization.
type UserRole string

const (
	// Unrestricted access within the organization, including terminating
	// other members' sessions
	RoleAdmin UserRole = "admin"

	// Can manage member sessions and view organization-wide presence
	RoleManager UserRole = "manager"

	// Default role for standard organization members
	RoleMember UserRole = "member"
)

// # Role Hierarchy

// AtLeast checks if the current role meets or exceeds the required target role.
func (r UserRole) AtLeast(target UserRole) bool {
	return r.level() >= target.level()
}

// level maps a role to a numeric hierarchy level for comparison logic.
func (r UserRole) level() int {

	// Linear scale (10-30) allows for future intermediate roles
	switch r {
	case RoleAdmin:
		return 30
	case RoleManager:
		return 20
	case RoleMember:
		return 10
	default:
		return 0
	}
}
