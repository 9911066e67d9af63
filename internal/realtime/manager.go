// Copyright (c) 2026 Confira. All rights reserved.
// Author: dev@confira.app

package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/confira/confira/internal/auth"
	"github.com/confira/confira/internal/platform/constants"
	"github.com/confira/confira/internal/platform/sec"
	"github.com/confira/confira/pkg/uuid"
)

// # Contracts & Types

// TokenVerifier validates access tokens during the websocket handshake.
type TokenVerifier interface {
	VerifyToken(tokenString string) (*sec.AuthClaims, error)
}

// RevocationChecker answers whether a credential has been revoked.
type RevocationChecker interface {
	IsBlacklisted(context context.Context, token string) bool
}

// Directory is the slice of the account store the manager needs: the
// connect-time status gate and the eventually-consistent presence shadow.
type Directory interface {
	FindByID(context context.Context, id string) (*auth.User, error)
	SetPresenceShadow(context context.Context, userID string, isOnline bool, lastActiveAt time.Time) error
}

// ActivityRecorder forwards connection activity to the durable session,
// where writes are throttled to one per session per interval.
type ActivityRecorder interface {
	RecordActivity(context context.Context, sessionID string) error
}

// EventSink receives the presence transitions the manager detects.
//
// # Why an interface?
//
// The manager decides WHEN a user went online or offline; how that news
// travels is the broadcaster's concern, and tests substitute a recorder.
type EventSink interface {
	UserOnline(context context.Context, userID, organizationID string)
	UserOffline(context context.Context, userID, organizationID string, lastActiveAt time.Time)
	PublishDisconnect(context context.Context, userID, reason string) error
}

/*
Manager owns connection lifecycle and presence.

# Review Process

The handshake path is security critical. Changes to Authenticate must be
reviewed by the security team.

# Consistency model

The in-process maps are a cache for local operations (stats, reaping). Any
question or action that must be correct across processes (presence, user
disconnect, online/offline transitions) goes through the shared index, whose
set operations are atomic.
*/
type Manager struct {
	index         SharedIndex
	presenceCache PresenceCache
	hub           *Hub
	events        EventSink
	verifier      TokenVerifier
	revocations   RevocationChecker
	directory     Directory
	activity      ActivityRecorder
	logger        *slog.Logger

	// staleAfter is how long a silent connection survives before the reaper
	// drops it.
	staleAfter time.Duration

	mutex       sync.RWMutex
	connections map[string]*Connection
	byUser      map[string]map[string]*Connection
}

// NewManager constructs a Manager with its full dependency set.
func NewManager(
	index SharedIndex,
	presenceCache PresenceCache,
	hub *Hub,
	events EventSink,
	verifier TokenVerifier,
	revocations RevocationChecker,
	directory Directory,
	activity ActivityRecorder,
	staleAfter time.Duration,
	logger *slog.Logger,
) *Manager {
	return &Manager{
		index:         index,
		presenceCache: presenceCache,
		hub:           hub,
		events:        events,
		verifier:      verifier,
		revocations:   revocations,
		directory:     directory,
		activity:      activity,
		staleAfter:    staleAfter,
		logger:        logger,
		connections:   make(map[string]*Connection),
		byUser:        make(map[string]map[string]*Connection),
	}
}

// # Handshake

/*
Authenticate verifies a websocket handshake.

Description: Runs the full credential chain: token extraction by precedence,
signature verification, revocation of both the raw token and its session id,
and the account status gate. Every failure returns nil; the websocket layer
never learns WHY a handshake failed, only that it did. Causes go to the log.

Parameters:
  - context: context.Context
  - handshake: Handshake

Returns:
  - *ConnectedUser: Verified identity, nil on any failure
*/
func (manager *Manager) Authenticate(context context.Context, handshake Handshake) *ConnectedUser {

	// Bound the whole chain so a slow store cannot hold the socket open.
	boundedCtx, cancel := withHandshakeTimeout(context)
	defer cancel()

	token := handshake.BearerToken()
	if token == "" {
		manager.logger.Debug("realtime_handshake_no_credential")
		return nil
	}

	claims, err := manager.verifier.VerifyToken(token)
	if err != nil {
		manager.logger.Debug("realtime_handshake_invalid_token")
		return nil
	}

	// Both the bearer token and the session behind it must be live.
	if manager.revocations.IsBlacklisted(boundedCtx, token) ||
		manager.revocations.IsBlacklisted(boundedCtx, claims.SessionID) {
		manager.logger.Info("realtime_handshake_revoked_credential",
			slog.String("user_id", claims.UserID),
		)
		return nil
	}

	user, err := manager.directory.FindByID(boundedCtx, claims.UserID)
	if err != nil {
		manager.logger.Warn("realtime_handshake_account_lookup_failed", slog.Any("error", err))
		return nil
	}

	if !user.CanConnect() {
		manager.logger.Info("realtime_handshake_account_not_active",
			slog.String("user_id", user.ID),
			slog.String("status", string(user.Status)),
		)
		return nil
	}

	return &ConnectedUser{
		UserID:         claims.UserID,
		OrganizationID: claims.OrganizationID,
		SessionID:      claims.SessionID,
		Role:           claims.Role,
	}
}

// # Lifecycle

/*
OnConnect registers a new live connection.

Description: The connection enters the shared index first; when the atomic
count reports this is the user's first connection anywhere, the durable
presence shadow is updated and user_online goes out, in that order.

Parameters:
  - context: context.Context
  - user: *ConnectedUser
  - handshake: Handshake

Returns:
  - *Connection: The registered connection record
  - error: Shared index failures
*/
func (manager *Manager) OnConnect(context context.Context, user *ConnectedUser, handshake Handshake) (*Connection, error) {

	now := time.Now()
	connection := &Connection{
		ID:             uuid.New(),
		UserID:         user.UserID,
		OrganizationID: user.OrganizationID,
		SessionID:      user.SessionID,
		Role:           user.Role,
		IPAddress:      handshake.IPAddress,
		UserAgent:      handshake.UserAgent,
		ConnectedAt:    now,
		LastActivityAt: now,
	}

	count, err := manager.index.PutConnection(context, connection)
	if err != nil {
		return nil, err
	}

	manager.mutex.Lock()
	manager.connections[connection.ID] = connection
	userConnections, exists := manager.byUser[connection.UserID]
	if !exists {
		userConnections = make(map[string]*Connection)
		manager.byUser[connection.UserID] = userConnections
	}
	userConnections[connection.ID] = connection
	manager.mutex.Unlock()

	manager.presenceCache.Invalidate(context, connection.UserID)

	// First connection anywhere: the user just came online.
	if count == 1 {
		if err := manager.directory.SetPresenceShadow(context, connection.UserID, true, now); err != nil {
			manager.logger.Error("realtime_presence_shadow_update_failed",
				slog.String("user_id", connection.UserID),
				slog.Any("error", err),
			)
		}
		manager.events.UserOnline(context, connection.UserID, connection.OrganizationID)
	}

	manager.logger.Info("realtime_connected",
		slog.String("connection_id", connection.ID),
		slog.String("user_id", connection.UserID),
		slog.Int64("user_connections", count),
	)

	return connection, nil
}

/*
OnDisconnect deregisters a connection.

Description: Idempotent; the read pump, the reaper, and forced disconnects
may all report the same connection. Only the call that actually removes the
user's LAST index entry flips the presence shadow and emits user_offline.

Parameters:
  - context: context.Context
  - connectionID: string

Returns:
  - error: Shared index failures
*/
func (manager *Manager) OnDisconnect(context context.Context, connectionID string) error {

	manager.mutex.Lock()
	connection, known := manager.connections[connectionID]
	if known {
		delete(manager.connections, connectionID)
		if userConnections, exists := manager.byUser[connection.UserID]; exists {
			delete(userConnections, connectionID)
			if len(userConnections) == 0 {
				delete(manager.byUser, connection.UserID)
			}
		}
	}
	manager.mutex.Unlock()

	if !known {
		return nil
	}

	remaining, removed, err := manager.index.RemoveConnection(context, connection.UserID, connectionID)
	if err != nil {
		return err
	}

	manager.presenceCache.Invalidate(context, connection.UserID)

	// Last connection anywhere: the user just went offline.
	if removed && remaining == 0 {
		if err := manager.directory.SetPresenceShadow(context, connection.UserID, false, connection.LastActivityAt); err != nil {
			manager.logger.Error("realtime_presence_shadow_update_failed",
				slog.String("user_id", connection.UserID),
				slog.Any("error", err),
			)
		}
		manager.events.UserOffline(context, connection.UserID, connection.OrganizationID, connection.LastActivityAt)
	}

	manager.logger.Info("realtime_disconnected",
		slog.String("connection_id", connectionID),
		slog.String("user_id", connection.UserID),
		slog.Int64("user_connections", remaining),
	)

	return nil
}

/*
OnActivity records life signs from a connection.

Description: Updates the in-memory timestamp, refreshes the shared index
entry, and forwards to the session registry, which throttles durable writes.
All store failures are logged, never surfaced: activity tracking must not
kill a healthy connection.

Parameters:
  - context: context.Context
  - connectionID: string
*/
func (manager *Manager) OnActivity(context context.Context, connectionID string) {

	now := time.Now()

	manager.mutex.Lock()
	connection, known := manager.connections[connectionID]
	if known {
		connection.LastActivityAt = now
	}
	manager.mutex.Unlock()

	if !known {
		return
	}

	if err := manager.index.Touch(context, connection.UserID, connectionID, now); err != nil {
		manager.logger.Warn("realtime_touch_failed",
			slog.String("connection_id", connectionID),
			slog.Any("error", err),
		)
	}

	if err := manager.activity.RecordActivity(context, connection.SessionID); err != nil {
		manager.logger.Warn("realtime_session_activity_failed",
			slog.String("session_id", connection.SessionID),
			slog.Any("error", err),
		)
	}
}

// # Presence

/*
Presence reports a user's aggregate online state.

Description: Reads fall through cache, shared index, and finally the durable
shadow fields, writing the answer back to the cache on the way out.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - *Presence: Aggregate state
  - error: Only when every layer failed
*/
func (manager *Manager) Presence(context context.Context, userID string) (*Presence, error) {

	if cached, hit := manager.presenceCache.Get(context, userID); hit {
		return cached, nil
	}

	presence := &Presence{UserID: userID}

	count, indexErr := manager.index.UserConnectionCount(context, userID)
	if indexErr == nil && count > 0 {
		presence.IsOnline = true
		presence.ConnectionCount = count
		presence.LastActiveAt = time.Now()
		manager.presenceCache.Set(context, userID, presence)
		return presence, nil
	}

	if indexErr != nil {
		manager.logger.Warn("realtime_presence_index_failed", slog.Any("error", indexErr))
	}

	// Offline (or index unavailable): answer from the durable shadow.
	user, err := manager.directory.FindByID(context, userID)
	if err != nil {
		return nil, err
	}

	presence.IsOnline = indexErr != nil && user.IsOnline
	presence.LastActiveAt = user.LastActiveAt
	manager.presenceCache.Set(context, userID, presence)

	return presence, nil
}

// # Forced Disconnect

/*
DisconnectUser force-closes every connection of a user on every process.

Description: Publishes a disconnect command on the shared bus so sibling
processes drop their sockets, and closes local ones immediately rather than
waiting for the command to come back around.

Parameters:
  - context: context.Context
  - userID: string
  - reason: string

Returns:
  - error: Bus publish failures (local close still happened)
*/
func (manager *Manager) DisconnectUser(context context.Context, userID, reason string) error {

	err := manager.events.PublishDisconnect(context, userID, reason)

	manager.DisconnectLocal(userID, reason)

	return err
}

// DisconnectLocal closes this process's connections for a user. Registered
// as the bus disconnect handler; the socket teardown runs OnDisconnect.
func (manager *Manager) DisconnectLocal(userID, reason string) {
	closed := manager.hub.CloseUser(userID, reason)
	if closed > 0 {
		manager.logger.Info("realtime_forced_disconnect",
			slog.String("user_id", userID),
			slog.String("reason", reason),
			slog.Int("connections", closed),
		)
	}
}

/*
DisconnectSessionLocal closes this process's connections bound to one session.

Description: Registered as the bus session-disconnect handler; session
termination must close that session's sockets without touching the user's
other devices. The direct OnDisconnect call covers sockets whose pump is
gone and is idempotent against the pump's own teardown.

Parameters:
  - sessionID: string
  - reason: string
*/
func (manager *Manager) DisconnectSessionLocal(sessionID, reason string) {

	manager.mutex.RLock()
	var targets []*Connection
	for _, connection := range manager.connections {
		if connection.SessionID == sessionID {
			targets = append(targets, connection)
		}
	}
	manager.mutex.RUnlock()

	for _, connection := range targets {
		manager.hub.CloseConnection(connection.ID, reason)
		if err := manager.OnDisconnect(context.Background(), connection.ID); err != nil {
			manager.logger.Warn("realtime_session_disconnect_failed",
				slog.String("connection_id", connection.ID),
				slog.Any("error", err),
			)
		}
	}

	if len(targets) > 0 {
		manager.logger.Info("realtime_forced_session_disconnect",
			slog.String("session_id", sessionID),
			slog.String("reason", reason),
			slog.Int("connections", len(targets)),
		)
	}
}

// # Maintenance

/*
ReapExpired drops local connections without recent life signs.

Description: Walks this process's connections and force-closes any silent
for longer than the staleness threshold. Sibling processes reap their own;
index entries orphaned by a crashed process expire by TTL.

Parameters:
  - context: context.Context

Returns:
  - int: Number of connections reaped
*/
func (manager *Manager) ReapExpired(context context.Context) int {

	cutoff := time.Now().Add(-manager.staleAfter)

	manager.mutex.RLock()
	var stale []*Connection
	for _, connection := range manager.connections {
		if connection.LastActivityAt.Before(cutoff) {
			stale = append(stale, connection)
		}
	}
	manager.mutex.RUnlock()

	for _, connection := range stale {
		manager.logger.Info("realtime_reaped_stale_connection",
			slog.String("connection_id", connection.ID),
			slog.String("user_id", connection.UserID),
			slog.Time("last_activity_at", connection.LastActivityAt),
		)

		// Closing the socket runs the normal disconnect path through the
		// read pump; the direct call covers sockets whose pump is gone.
		manager.hub.CloseConnection(connection.ID, "stale connection")
		if err := manager.OnDisconnect(context, connection.ID); err != nil {
			manager.logger.Warn("realtime_reap_disconnect_failed",
				slog.String("connection_id", connection.ID),
				slog.Any("error", err),
			)
		}
	}

	return len(stale)
}

// withHandshakeTimeout bounds the handshake credential chain.
func withHandshakeTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, constants.HandshakeTimeout)
}

// Stats snapshots this process's connection totals.
func (manager *Manager) Stats() Stats {
	manager.mutex.RLock()
	defer manager.mutex.RUnlock()

	stats := Stats{
		Connections:    len(manager.connections),
		UniqueUsers:    len(manager.byUser),
		ByOrganization: make(map[string]int),
	}

	for _, connection := range manager.connections {
		stats.ByOrganization[connection.OrganizationID]++
	}

	return stats
}
