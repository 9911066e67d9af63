// Copyright (c) 2026 Confira. All rights reserved.
// Author: dev@confira.app

/*
Package session implements the Session Registry: the durable, audit-capable
record of every authenticated login.

A Session is independent of any live realtime connection. It is created at
login, refreshed on token rotation and activity, and removed on logout,
forced termination, or the background expiry sweep.

Architecture:

  - Registry: Orchestrates listing, termination, statistics, and activity.
  - Repository: Abstracted interface over PostgreSQL (pgx).
  - StatsCache: Short-TTL Redis cache for the read-heavy stats aggregation.
*/
package session

import (
	"time"
)

// # Domain Entities

// Session represents one durable authenticated login.
type Session struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	TokenHash        string    `json:"-"` // Hashed refresh token. Omitted for security.
	IPAddress        string    `json:"ip_address"`
	UserAgent        string    `json:"user_agent"`
	DeviceName       string    `json:"device_name"`
	Location         string    `json:"location"`
	IsSuspicious     bool      `json:"is_suspicious"`
	SuspicionReasons []string  `json:"suspicion_reasons,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	LastActivityAt   time.Time `json:"last_activity_at"`

	// IsCurrent marks the session matching the caller's own token.
	// Computed per request, never persisted.
	IsCurrent bool `json:"is_current"`
}

// IsExpired reports whether the session has passed its expiry.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Stats is the aggregate view of a user's sessions.
type Stats struct {
	Total               int            `json:"total"`
	Active              int            `json:"active"`
	Suspicious          int            `json:"suspicious"`
	DeviceBreakdown     map[string]int `json:"device_breakdown"`
	LocationBreakdown   map[string]int `json:"location_breakdown"`
	RecentActivityCount int            `json:"recent_activity_count"`
}

// Actor identifies who is performing a registry operation, for authorization.
type Actor struct {
	UserID  string
	Role    string
	IsAdmin bool
}

// # Suspicion Policy

// SuspicionPolicy scores a freshly created session against the user's session
// history. It returns whether the session should be flagged and the reasons.
//
// The concrete heuristic is deliberately configurable policy, not a fixed
// algorithm: deployments tune or replace it without touching the registry.
type SuspicionPolicy func(candidate *Session, history []*Session) (flagged bool, reasons []string)

// implausibleTravelWindow is how close together two sessions from different
// locations must be before the default policy considers them implausible.
const implausibleTravelWindow = 30 * time.Minute

// DefaultSuspicionPolicy flags a session when its IP was never seen in the
// user's history, or when concurrent sessions exist from different locations
// within an implausibly short window.
func DefaultSuspicionPolicy(candidate *Session, history []*Session) (bool, []string) {
	var reasons []string

	if len(history) > 0 {
		knownIP := false
		for _, previous := range history {
			if previous.IPAddress == candidate.IPAddress {
				knownIP = true
				break
			}
		}
		if !knownIP {
			reasons = append(reasons, "new_ip_address")
		}
	}

	for _, previous := range history {
		if previous.IsExpired() || previous.Location == candidate.Location {
			continue
		}
		if candidate.CreatedAt.Sub(previous.LastActivityAt) < implausibleTravelWindow {
			reasons = append(reasons, "implausible_location_change")
			break
		}
	}

	return len(reasons) > 0, reasons
}

// # Termination Reasons

const (
	// ReasonLogout is a user-initiated logout of their own session.
	ReasonLogout = "logout"

	// ReasonLogoutAll is a user-initiated logout across all devices.
	ReasonLogoutAll = "logout_all"

	// ReasonTerminatedByUser is a user remotely terminating one of their sessions.
	ReasonTerminatedByUser = "terminated_by_user"

	// ReasonTerminatedByAdmin is an administrative forced termination.
	ReasonTerminatedByAdmin = "terminated_by_admin"

	// ReasonExpired is the background sweep removing stale sessions.
	ReasonExpired = "expired"
)
