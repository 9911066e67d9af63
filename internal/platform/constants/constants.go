// Copyright (c) 2026 Confira. All rights reserved.
// Author: dev@confira.app

/*
Package constants provides centralized, immutable values for the entire platform.

It defines default timeouts, rate limits, and cross-cutting keys that are shared
between different layers of the system.

Categories:

  - Server Timing: Read/Write/Idle timeouts for the HTTP server.
  - Rate Limiting: Burst capacities and IP tracking TTLs.
  - Security: JWT issuers and cookie configuration.
  - Realtime: Handshake deadlines and connection staleness thresholds.

Using this package ensures Magic Strings and Magic Numbers are eliminated
from the business logic.
*/
package constants

import "time"

// # Metadata

const (
	AppName    = "confira-api"
	AppVersion = "0.1.0-dev"
)

// # Server Timing

const (
	// DefaultReadTimeout is the maximum duration for reading the entire request.
	DefaultReadTimeout = 5 * time.Second

	// DefaultWriteTimeout is the maximum duration before timing out writes of the response.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultIdleTimeout is the maximum amount of time to wait for the next request.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultReadHeaderTimeout is the amount of time allowed to read request headers.
	DefaultReadHeaderTimeout = 2 * time.Second

	// GlobalRequestTimeout is the deadline for the entire request lifecycle.
	GlobalRequestTimeout = 30 * time.Second

	// ShutdownTimeout is how long we wait for in-flight requests to complete during shutdown.
	ShutdownTimeout = 30 * time.Second
)

// # Rate Limiting

const (
	// DefaultRateLimitRPS is the requests per second allowed per IP.
	DefaultRateLimitRPS = 100.0

	// DefaultRateLimitBurst is the maximum burst allowed for the rate limiter.
	DefaultRateLimitBurst = 150

	// RateLimitCleanupInterval is how often old IP entries are removed from memory.
	RateLimitCleanupInterval = 1 * time.Minute

	// RateLimitClientTTL is how long a client must be idle before its entry is deleted.
	RateLimitClientTTL = 3 * time.Minute
)

// # Authentication

const (
	// AuthIssuer is the standard 'iss' claim in JWTs.
	AuthIssuer = "confira.app"

	// RefreshTokenCookieName is the name of the cookie that stores the refresh token.
	RefreshTokenCookieName = "refresh_token"

	// RefreshTokenCookiePath is the scoped path for the refresh token cookie.
	RefreshTokenCookiePath = "/api/v1/auth"
)

// # Realtime Channel

const (
	// HandshakeTimeout bounds realtime-channel authentication. A connection
	// that cannot prove its identity within this window is rejected.
	HandshakeTimeout = 8 * time.Second

	// StoreReadTimeout bounds single reads against the shared cache during
	// authentication and presence checks.
	StoreReadTimeout = 500 * time.Millisecond

	// ReaperInterval is how often the stale-connection sweep runs.
	ReaperInterval = 2 * time.Minute

	// SessionSweepInterval is how often expired session rows are purged.
	SessionSweepInterval = 15 * time.Minute
)

// # HTTP Headers

const (
	// HeaderXRequestID carries the correlation id assigned to each request.
	HeaderXRequestID = "X-Request-ID"

	// HeaderXRealIP is the client address set by the reverse proxy.
	HeaderXRealIP = "X-Real-IP"

	// HeaderXForwardedFor is the proxy hop chain; the first entry is the client.
	HeaderXForwardedFor = "X-Forwarded-For"

	// HeaderOrigin is the browser-supplied origin used for CORS decisions.
	HeaderOrigin = "Origin"
)

// # JSON Field Identifiers

const (
	FieldData    = "data"
	FieldMeta    = "meta"
	FieldError   = "error"
	FieldCode    = "code"
	FieldDetails = "details"
	FieldItems   = "items"
	FieldTotal   = "total"
	FieldMessage = "message"
	FieldStatus  = "status"
	FieldApp     = "app"
	FieldVersion = "version"
	FieldChecks  = "checks"
)

// # Database Schemas

const (
	SchemaIAM = "iam"
)

// # Redis Prefixes (Cache Taxonomy)

const (
	// RedisPrefixConnection keys one live realtime connection (hash, TTL-bearing).
	RedisPrefixConnection = "connection:"

	// RedisPrefixUserConnections keys the per-user set of live connection ids.
	RedisPrefixUserConnections = "user_connections:"

	// RedisPrefixPresence keys the cached aggregate presence of a user.
	RedisPrefixPresence = "presence:"

	// RedisPrefixBlacklist keys a revoked token hash until its natural expiry.
	RedisPrefixBlacklist = "blacklist:"

	// RedisPrefixSessionStats keys the cached per-user session statistics.
	RedisPrefixSessionStats = "session_stats:"

	// RedisPrefixUserCache keys per-user cached profile data cleared on logout.
	RedisPrefixUserCache = "user_cache:"

	// RedisPrefixRateLimit keys per-user rate-limit buckets cleared on logout.
	RedisPrefixRateLimit = "rate_limit:"
)
