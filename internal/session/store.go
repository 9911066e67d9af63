// Copyright (c) 2026 Confira. All rights reserved.
// Author: dev@confira.app

package session

import (
	"context"
	"time"
)

// # Session Data Access

// Repository defines the data access contract for durable session rows.
type Repository interface {

	/*
		Create persists a new session row for an authenticated login.

		Parameters:
		  - context: context.Context
		  - session: *Session

		Returns:
		  - error: Persistence failures
	*/
	Create(context context.Context, session *Session) error

	/*
		FindByID returns the session with the given identifier.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - *Session: Hydrated entity
		  - error: apperr.NotFound or database errors
	*/
	FindByID(context context.Context, id string) (*Session, error)

	/*
		FindByTokenHash returns the unexpired session matching the refresh
		token hash.

		Parameters:
		  - context: context.Context
		  - tokenHash: string

		Returns:
		  - *Session: Hydrated entity
		  - error: apperr.NotFound or database errors
	*/
	FindByTokenHash(context context.Context, tokenHash string) (*Session, error)

	/*
		ListByUser returns a user's sessions ordered by last activity,
		most recent first.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - includeExpired: bool

		Returns:
		  - []*Session: Ordered slice
		  - error: Database errors
	*/
	ListByUser(context context.Context, userID string, includeExpired bool) ([]*Session, error)

	/*
		RotateToken replaces the session's refresh token hash and extends its
		expiry in place. Refresh never creates a new session row.

		Parameters:
		  - context: context.Context
		  - sessionID: string
		  - newTokenHash: string
		  - expiresAt: time.Time

		Returns:
		  - error: Persistence failures
	*/
	RotateToken(context context.Context, sessionID, newTokenHash string, expiresAt time.Time) error

	/*
		TouchActivity updates the session's last-activity timestamp.

		Parameters:
		  - context: context.Context
		  - sessionID: string
		  - at: time.Time

		Returns:
		  - error: Persistence failures
	*/
	TouchActivity(context context.Context, sessionID string, at time.Time) error

	/*
		Delete removes a session row permanently.

		Parameters:
		  - context: context.Context
		  - sessionID: string

		Returns:
		  - error: Persistence failures
	*/
	Delete(context context.Context, sessionID string) error

	/*
		DeleteExpired physically removes sessions whose expiry is in the past.

		Parameters:
		  - context: context.Context

		Returns:
		  - int64: Number of rows removed
		  - error: Cleanup failures
	*/
	DeleteExpired(context context.Context) (int64, error)

	/*
		Stats computes the aggregate session statistics for a user.

		Parameters:
		  - context: context.Context
		  - userID: string

		Returns:
		  - *Stats: Aggregation result
		  - error: Database errors
	*/
	Stats(context context.Context, userID string) (*Stats, error)

	/*
		CountByUser returns the total number of session rows for a user,
		optionally including expired ones. Used for paginated activity listings.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - includeExpired: bool

		Returns:
		  - int: Row count
		  - error: Database errors
	*/
	CountByUser(context context.Context, userID string, includeExpired bool) (int, error)

	/*
		ListActivity returns a page of the user's sessions ordered by last
		activity descending.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - limit: int
		  - offset: int

		Returns:
		  - []*Session: Ordered page
		  - error: Database errors
	*/
	ListActivity(context context.Context, userID string, limit, offset int) ([]*Session, error)
}

// # Volatile Stats Cache

// StatsCache defines the short-TTL cache for the read-heavy stats aggregation.
//
// The cache is tolerant of slight staleness and never a source of truth;
// all methods are best-effort.
type StatsCache interface {

	/*
		Get returns the cached stats for a user, if present and fresh.

		Parameters:
		  - context: context.Context
		  - userID: string

		Returns:
		  - *Stats: Cached value, nil on miss
	*/
	Get(context context.Context, userID string) *Stats

	/*
		Set stores the stats for a user with the cache's TTL.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - stats: *Stats
	*/
	Set(context context.Context, userID string, stats *Stats)

	/*
		Invalidate drops the cached stats for a user after a mutating event.

		Parameters:
		  - context: context.Context
		  - userID: string
	*/
	Invalidate(context context.Context, userID string)
}
