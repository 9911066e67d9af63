// Copyright (c) 2026 Confira. All rights reserved.
// Author: dev@confira.app

/*
Package revocation implements the shared token blacklist.

Access tokens are self-contained and verified statelessly, so logout and forced
termination need a second, stateful defense: a TTL-bearing registry of tokens
that must be rejected before their natural expiry. Every authenticated surface
(HTTP middleware, realtime handshake) consults this registry after the
cryptographic check succeeds.

# Failure Policy

Reads against an unavailable store fail OPEN by default: the token is treated
as not blacklisted, with a WARN log. Revocation is a secondary layer on top of
short access-token lifetimes, and denying all traffic on a cache blip is the
worse trade. The policy is an explicit, tested configuration switch
(REVOCATION_FAIL_CLOSED), not a hidden default.
*/
package revocation

import (
	"context"
	"time"
)

// Store defines the contract for the shared token blacklist.
type Store interface {

	/*
		Blacklist records a token as revoked for the given TTL.

		Description: Idempotent insert. The TTL must mirror the token's own
		remaining lifetime so that entries are garbage-collected and storage
		stays bounded. A zero or negative TTL is a no-op (already expired).

		Parameters:
		  - context: context.Context
		  - token: string (raw token or opaque session identifier)
		  - ttl: time.Duration

		Returns:
		  - error: Persistence failures
	*/
	Blacklist(context context.Context, token string, ttl time.Duration) error

	/*
		IsBlacklisted reports whether a token has been revoked.

		Description: Consulted on every authenticated operation after
		cryptographic verification. Applies the configured fail-open or
		fail-closed policy when the store is unreachable.

		Parameters:
		  - context: context.Context
		  - token: string

		Returns:
		  - bool: true if the token must be rejected
	*/
	IsBlacklisted(context context.Context, token string) bool
}
