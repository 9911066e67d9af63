// Copyright (c) 2026 Confira. All rights reserved.
// Author: dev@confira.app

package realtime

import (
	"context"
	"time"
)

// # Contracts

/*
SharedIndex is the cross-process registry of live connections.

Every server process registers its connections here; the per-process map in
[Manager] is only a cache of this index. Implementations must provide atomic
membership updates so that concurrent connects and disconnects across
processes never corrupt the per-user connection count.
*/
type SharedIndex interface {

	/*
		PutConnection registers a connection and returns the user's total
		connection count across all processes, counted atomically with the
		insertion.

		Parameters:
		  - context: context.Context
		  - connection: *Connection

		Returns:
		  - int64: Connection count after insertion (1 means the user just came online)
		  - error: Store errors
	*/
	PutConnection(context context.Context, connection *Connection) (int64, error)

	/*
		RemoveConnection deregisters a connection.

		Removal is idempotent: removing an unknown connection reports
		removed=false and must not emit an error.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - connectionID: string

		Returns:
		  - int64: Remaining connection count for the user (0 means offline)
		  - bool: Whether this call actually removed a live entry
		  - error: Store errors
	*/
	RemoveConnection(context context.Context, userID, connectionID string) (int64, bool, error)

	/*
		UserConnectionCount returns the user's live connection count across
		all processes.

		Parameters:
		  - context: context.Context
		  - userID: string

		Returns:
		  - int64: Count (0 when offline)
		  - error: Store errors
	*/
	UserConnectionCount(context context.Context, userID string) (int64, error)

	/*
		UserConnections lists the ids of the user's live connections across
		all processes.

		Parameters:
		  - context: context.Context
		  - userID: string

		Returns:
		  - []string: Connection ids
		  - error: Store errors
	*/
	UserConnections(context context.Context, userID string) ([]string, error)

	/*
		Touch refreshes a connection's activity timestamp and extends its
		expiry so the index entry outlives the next staleness window.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - connectionID: string
		  - at: time.Time

		Returns:
		  - error: Store errors
	*/
	Touch(context context.Context, userID, connectionID string, at time.Time) error
}

// PresenceCache is the short-lived cache in front of presence reads.
//
// All methods are best-effort: a miss or store failure falls through to the
// shared index and the durable shadow fields.
type PresenceCache interface {
	Get(context context.Context, userID string) (*Presence, bool)
	Set(context context.Context, userID string, presence *Presence)
	Invalidate(context context.Context, userID string)
}
