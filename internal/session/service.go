// Copyright (c) 2026 Confira. All rights reserved.
// Author: dev@confira.app

package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/confira/confira/internal/platform/apperr"
	"github.com/confira/confira/internal/platform/ctxutil"
	"github.com/confira/confira/pkg/pagination"
	"github.com/confira/confira/pkg/uuid"
)

// # Contracts & Types

// TokenBlacklister is the slice of the revocation store the registry needs.
//
// # Why an interface?
//
// Termination must promptly invalidate outstanding access tokens, but the
// registry should not know how revocation is stored. Narrow interfaces also
// allow substitution with test doubles.
type TokenBlacklister interface {
	Blacklist(context context.Context, token string, ttl time.Duration) error
}

// Notifier fans termination side effects out to the user's live devices.
//
// SessionTerminated tells the devices what happened; DisconnectSession closes
// the terminated session's own sockets on every process. Both are best-effort:
// the durable state is always updated before either fires, so a client that
// missed an event re-queries correct state, and the blacklist stops a socket
// that lingered.
type Notifier interface {
	SessionTerminated(context context.Context, userID, sessionID, reason string)
	DisconnectSession(context context.Context, sessionID, reason string)
}

// Registry implements session lifecycle use cases over the durable store.
//
// # Review Process
//
// Termination authorization and token blacklisting are security critical.
// Changes here must be reviewed by the security team.
type Registry struct {
	repository  Repository
	statsCache  StatsCache
	blacklister TokenBlacklister
	notifier    Notifier
	policy      SuspicionPolicy

	// accessTokenTTL bounds how long a terminated session's access tokens
	// could still be in flight; the blacklist entry mirrors it.
	accessTokenTTL time.Duration

	// Activity write throttling (one durable write per session per interval).
	activityInterval time.Duration
	limiterMutex     sync.Mutex
	limiters         map[string]*activityLimiter
}

type activityLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// maxActivityLimiters caps the in-memory throttle map before pruning.
const maxActivityLimiters = 4096

// NewRegistry constructs a new [Registry] with necessary dependencies.
//
// A nil policy falls back to [DefaultSuspicionPolicy].
func NewRegistry(
	repository Repository,
	statsCache StatsCache,
	blacklister TokenBlacklister,
	notifier Notifier,
	accessTokenTTL time.Duration,
	activityInterval time.Duration,
	policy SuspicionPolicy,
) *Registry {
	if policy == nil {
		policy = DefaultSuspicionPolicy
	}

	return &Registry{
		repository:       repository,
		statsCache:       statsCache,
		blacklister:      blacklister,
		notifier:         notifier,
		policy:           policy,
		accessTokenTTL:   accessTokenTTL,
		activityInterval: activityInterval,
		limiters:         make(map[string]*activityLimiter),
	}
}

// # Session Creation

// CreateInput holds the metadata captured at login time.
type CreateInput struct {
	UserID    string
	TokenHash string
	IPAddress string
	UserAgent string
	ExpiresAt time.Time
}

/*
Create persists a session row for a successful login.

Description: Derives device/location metadata, scores the session against the
user's history via the configured suspicion policy, and persists the row.
Exactly one session row exists per successful login.

Parameters:
  - context: context.Context
  - input: CreateInput

Returns:
  - *Session: Created entity
  - error: Storage failures
*/
func (registry *Registry) Create(context context.Context, input CreateInput) (*Session, error) {

	now := time.Now()
	candidate := &Session{
		ID:             uuid.New(),
		UserID:         input.UserID,
		TokenHash:      input.TokenHash,
		IPAddress:      input.IPAddress,
		UserAgent:      input.UserAgent,
		DeviceName:     DeviceFromUserAgent(input.UserAgent),
		Location:       LocationFromIP(input.IPAddress),
		CreatedAt:      now,
		ExpiresAt:      input.ExpiresAt,
		LastActivityAt: now,
	}

	// Score against recent history. A history read failure must not block
	// login; the session is simply created unflagged.
	history, err := registry.repository.ListByUser(context, input.UserID, false)
	if err != nil {
		ctxutil.GetLogger(context).Warn("session_history_read_failed", slog.Any("error", err))
	} else {
		candidate.IsSuspicious, candidate.SuspicionReasons = registry.policy(candidate, history)
	}

	if err := registry.repository.Create(context, candidate); err != nil {
		return nil, err
	}

	registry.statsCache.Invalidate(context, input.UserID)

	return candidate, nil
}

// # Session Queries

/*
List returns a user's sessions ordered by last activity, most recent first.

Description: Marks exactly one entry as current — the one matching the
caller's own token's session identifier.

Parameters:
  - context: context.Context
  - userID: string
  - includeExpired: bool
  - currentSessionID: string (from the caller's access token claims)

Returns:
  - []*Session: Ordered slice with IsCurrent computed
  - error: Database errors
*/
func (registry *Registry) List(context context.Context, userID string, includeExpired bool, currentSessionID string) ([]*Session, error) {
	sessions, err := registry.repository.ListByUser(context, userID, includeExpired)
	if err != nil {
		return nil, err
	}

	for _, session := range sessions {
		session.IsCurrent = session.ID == currentSessionID
	}

	return sessions, nil
}

/*
Stats returns the aggregate session statistics for a user.

Description: Cache-first read (short TTL) with fallback to the durable
aggregation; the result is written back to the cache.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - *Stats: Aggregation result
  - error: Database errors
*/
func (registry *Registry) Stats(context context.Context, userID string) (*Stats, error) {

	if cached := registry.statsCache.Get(context, userID); cached != nil {
		return cached, nil
	}

	stats, err := registry.repository.Stats(context, userID)
	if err != nil {
		return nil, err
	}

	registry.statsCache.Set(context, userID, stats)

	return stats, nil
}

/*
Activity returns a page of the user's sessions by recency of activity.

Parameters:
  - context: context.Context
  - userID: string
  - params: pagination.Params

Returns:
  - []*Session: Ordered page
  - pagination.Meta: Page metadata
  - error: Database errors
*/
func (registry *Registry) Activity(context context.Context, userID string, params pagination.Params) ([]*Session, pagination.Meta, error) {
	total, err := registry.repository.CountByUser(context, userID, true)
	if err != nil {
		return nil, pagination.Meta{}, err
	}

	sessions, err := registry.repository.ListActivity(context, userID, params.Limit, params.Offset())
	if err != nil {
		return nil, pagination.Meta{}, err
	}

	return sessions, pagination.NewMeta(params.Page, params.Limit, total), nil
}

// # Termination

/*
Terminate removes one session and revokes its outstanding tokens.

Description: Authorization rule — an actor may terminate only their own
sessions unless they carry administrative privilege. The durable row is
deleted and the session identifier blacklisted BEFORE the best-effort
termination event is broadcast; the session's live connections are then
force-closed on every process, leaving the user's other devices untouched.

Parameters:
  - context: context.Context
  - sessionID: string
  - actor: Actor
  - reason: string

Returns:
  - *Session: The terminated session
  - error: apperr.NotFound, apperr.Forbidden, or storage failures
*/
func (registry *Registry) Terminate(context context.Context, sessionID string, actor Actor, reason string) (*Session, error) {

	session, err := registry.repository.FindByID(context, sessionID)
	if err != nil {
		return nil, err
	}

	// Self-or-admin authorization.
	if session.UserID != actor.UserID && !actor.IsAdmin {
		return nil, apperr.Forbidden("You may only terminate your own sessions")
	}

	if err := registry.repository.Delete(context, session.ID); err != nil {
		return nil, err
	}

	// Outstanding access tokens carry this session id; the blacklist entry
	// outlives the longest-lived one.
	if err := registry.blacklister.Blacklist(context, session.ID, registry.accessTokenTTL); err != nil {
		// The row is already gone, so refresh is dead. Log and continue:
		// short access-token lifetimes bound the residual exposure.
		ctxutil.GetLogger(context).Error("session_blacklist_failed",
			slog.String("session_id", session.ID),
			slog.Any("error", err),
		)
	}

	registry.statsCache.Invalidate(context, session.UserID)
	registry.dropActivityLimiter(session.ID)

	// Notify first so the dying sockets can still receive the event, then
	// close them. A revoked session must not keep a live connection.
	registry.notifier.SessionTerminated(context, session.UserID, session.ID, reason)
	registry.notifier.DisconnectSession(context, session.ID, reason)

	return session, nil
}

/*
TerminateAll removes every session belonging to a user.

Description: Used by logout-all and administrative suspension. Each session
is terminated with the same delete-then-blacklist-then-notify sequence.

Parameters:
  - context: context.Context
  - userID: string
  - actor: Actor
  - reason: string

Returns:
  - int: Number of sessions terminated
  - error: apperr.Forbidden or storage failures
*/
func (registry *Registry) TerminateAll(context context.Context, userID string, actor Actor, reason string) (int, error) {

	if userID != actor.UserID && !actor.IsAdmin {
		return 0, apperr.Forbidden("You may only terminate your own sessions")
	}

	sessions, err := registry.repository.ListByUser(context, userID, true)
	if err != nil {
		return 0, err
	}

	terminated := 0
	for _, session := range sessions {
		if _, err := registry.Terminate(context, session.ID, actor, reason); err != nil {
			// Keep going: a single failed row must not leave the rest alive.
			ctxutil.GetLogger(context).Error("session_terminate_all_partial_failure",
				slog.String("session_id", session.ID),
				slog.Any("error", err),
			)
			continue
		}
		terminated++
	}

	return terminated, nil
}

// # Activity Tracking

/*
RecordActivity updates a session's last-activity timestamp.

Description: Durable writes are throttled to at most one per session per
configured interval, collapsing high-frequency pings to avoid hot-row
contention. Throttled calls are successful no-ops.

Parameters:
  - context: context.Context
  - sessionID: string

Returns:
  - error: Persistence failures (throttled calls return nil)
*/
func (registry *Registry) RecordActivity(context context.Context, sessionID string) error {

	if !registry.allowActivityWrite(sessionID) {
		return nil
	}

	return registry.repository.TouchActivity(context, sessionID, time.Now())
}

// allowActivityWrite reports whether a durable write is due for the session.
func (registry *Registry) allowActivityWrite(sessionID string) bool {
	registry.limiterMutex.Lock()
	defer registry.limiterMutex.Unlock()

	entry, found := registry.limiters[sessionID]
	if !found {
		if len(registry.limiters) >= maxActivityLimiters {
			registry.pruneLimitersLocked()
		}
		entry = &activityLimiter{
			limiter: rate.NewLimiter(rate.Every(registry.activityInterval), 1),
		}
		registry.limiters[sessionID] = entry
	}

	entry.lastSeen = time.Now()
	return entry.limiter.Allow()
}

// pruneLimitersLocked drops throttle entries idle for several intervals.
// Callers must hold limiterMutex.
func (registry *Registry) pruneLimitersLocked() {
	staleAfter := 10 * registry.activityInterval
	for sessionID, entry := range registry.limiters {
		if time.Since(entry.lastSeen) > staleAfter {
			delete(registry.limiters, sessionID)
		}
	}
}

// dropActivityLimiter releases the throttle entry of a terminated session.
func (registry *Registry) dropActivityLimiter(sessionID string) {
	registry.limiterMutex.Lock()
	defer registry.limiterMutex.Unlock()
	delete(registry.limiters, sessionID)
}

// # Maintenance

/*
SweepExpired removes sessions past their natural expiry.

Description: Background task; transport-level logout is not reliable, so the
sweep is what keeps the table bounded.

Parameters:
  - context: context.Context

Returns:
  - int64: Number of rows removed
  - error: Cleanup failures
*/
func (registry *Registry) SweepExpired(context context.Context) (int64, error) {
	return registry.repository.DeleteExpired(context)
}

/*
FindByTokenHash resolves a refresh token hash into its unexpired session.

Parameters:
  - context: context.Context
  - tokenHash: string

Returns:
  - *Session: Hydrated entity
  - error: apperr.NotFound or database errors
*/
func (registry *Registry) FindByTokenHash(context context.Context, tokenHash string) (*Session, error) {
	return registry.repository.FindByTokenHash(context, tokenHash)
}

/*
RotateToken replaces the session's refresh token hash and extends expiry.

Parameters:
  - context: context.Context
  - sessionID: string
  - newTokenHash: string
  - expiresAt: time.Time

Returns:
  - error: Persistence failures
*/
func (registry *Registry) RotateToken(context context.Context, sessionID, newTokenHash string, expiresAt time.Time) error {
	return registry.repository.RotateToken(context, sessionID, newTokenHash, expiresAt)
}
