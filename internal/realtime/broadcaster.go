// Copyright (c) 2026 Confira. All rights reserved.
// Author: dev@confira.app

package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// # Event Model

// Event types delivered to connected clients.
const (
	EventAuthenticated     = "authenticated"
	EventAuthError         = "auth_error"
	EventUserOnline        = "user_online"
	EventUserOffline       = "user_offline"
	EventSessionTerminated = "session_terminated"
	EventStatusChanged     = "status_changed"
)

// eventsChannel is the shared pub/sub channel every process subscribes to.
const eventsChannel = "realtime_events"

// Control commands addressed to the server processes themselves.
const (
	// controlDisconnectUser orders every process to drop a user's connections.
	controlDisconnectUser = "disconnect_user"

	// controlDisconnectSession orders every process to drop the connections
	// bound to one terminated session, leaving the user's other devices alone.
	controlDisconnectSession = "disconnect_session"
)

// Event is the wire format delivered to websocket clients.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// envelope is the bus format: an event plus its routing audience, or a
// control command addressed to the server processes themselves.
type envelope struct {
	Audience string          `json:"audience,omitempty"`
	Event    json.RawMessage `json:"event,omitempty"`

	Control   string `json:"control,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// # Audiences

// AudienceUser addresses every connection of one user.
func AudienceUser(userID string) string {
	return "user:" + userID
}

// AudienceOrganization addresses every connection in one tenant.
func AudienceOrganization(organizationID string) string {
	return "org:" + organizationID
}

// # Broadcaster

/*
Broadcaster fans events out to connected clients on every server process.

Events are published on a shared Redis pub/sub channel; each process's
subscriber loop hands them to the local [Hub], which writes to the sockets it
owns. Publishing is best-effort: callers must update durable state BEFORE
calling any broadcast method, so a lost event never leaves a client with
state it cannot recover by re-querying.

The same bus carries disconnect commands, which is what makes logout-from-all
reach connections living on other processes.
*/
type Broadcaster struct {
	client *redis.Client
	hub    *Hub
	logger *slog.Logger

	// onDisconnect and onSessionDisconnect are invoked for disconnect
	// commands received on the bus. Set once during wiring, before Run.
	onDisconnect        func(userID, reason string)
	onSessionDisconnect func(sessionID, reason string)
}

// NewBroadcaster constructs a Broadcaster over the shared Redis bus.
func NewBroadcaster(client *redis.Client, hub *Hub, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		client: client,
		hub:    hub,
		logger: logger,
	}
}

// HandleDisconnects registers the local disconnect executor.
//
// Must be called before [Broadcaster.Run]; the manager registers itself here
// during wiring.
func (broadcaster *Broadcaster) HandleDisconnects(handler func(userID, reason string)) {
	broadcaster.onDisconnect = handler
}

// HandleSessionDisconnects registers the local session-disconnect executor.
//
// Must be called before [Broadcaster.Run], like [Broadcaster.HandleDisconnects].
func (broadcaster *Broadcaster) HandleSessionDisconnects(handler func(sessionID, reason string)) {
	broadcaster.onSessionDisconnect = handler
}

// Run consumes the shared bus until the context is cancelled.
//
// Intended to run as a dedicated goroutine per process.
func (broadcaster *Broadcaster) Run(context context.Context) {

	subscription := broadcaster.client.Subscribe(context, eventsChannel)
	defer subscription.Close()

	channel := subscription.Channel()

	for {
		select {
		case <-context.Done():
			return

		case message, open := <-channel:
			if !open {
				return
			}
			broadcaster.dispatch(message.Payload)
		}
	}
}

// dispatch routes one bus message to the local hub or the control handler.
func (broadcaster *Broadcaster) dispatch(payload string) {

	var received envelope
	if err := json.Unmarshal([]byte(payload), &received); err != nil {
		broadcaster.logger.Warn("realtime_bus_decode_failed", slog.Any("error", err))
		return
	}

	switch received.Control {
	case controlDisconnectUser:
		if broadcaster.onDisconnect != nil {
			broadcaster.onDisconnect(received.UserID, received.Reason)
		}
		return

	case controlDisconnectSession:
		if broadcaster.onSessionDisconnect != nil {
			broadcaster.onSessionDisconnect(received.SessionID, received.Reason)
		}
		return
	}

	broadcaster.hub.Send(received.Audience, []byte(received.Event))
}

// publish serializes and publishes one envelope on the shared bus.
func (broadcaster *Broadcaster) publish(context context.Context, toPublish envelope) error {

	payload, err := json.Marshal(toPublish)
	if err != nil {
		return fmt.Errorf("realtime_bus_encode_failed: %w", err)
	}

	if err := broadcaster.client.Publish(context, eventsChannel, payload).Err(); err != nil {
		return fmt.Errorf("realtime_bus_publish_failed: %w", err)
	}

	return nil
}

// emit publishes an event to an audience, logging instead of failing.
func (broadcaster *Broadcaster) emit(context context.Context, audience string, event Event) {

	encoded, err := json.Marshal(event)
	if err != nil {
		broadcaster.logger.Warn("realtime_event_encode_failed", slog.Any("error", err))
		return
	}

	err = broadcaster.publish(context, envelope{Audience: audience, Event: encoded})
	if err != nil {
		broadcaster.logger.Warn("realtime_event_publish_failed",
			slog.String("event", event.Type),
			slog.String("audience", audience),
			slog.Any("error", err),
		)
	}
}

// # Event Emitters

// UserOnline announces a user's first live connection to their organization.
func (broadcaster *Broadcaster) UserOnline(context context.Context, userID, organizationID string) {
	broadcaster.emit(context, AudienceOrganization(organizationID), Event{
		Type: EventUserOnline,
		Payload: map[string]any{
			"user_id":   userID,
			"online_at": time.Now().UTC(),
		},
	})
}

// UserOffline announces that a user's last connection closed.
func (broadcaster *Broadcaster) UserOffline(context context.Context, userID, organizationID string, lastActiveAt time.Time) {
	broadcaster.emit(context, AudienceOrganization(organizationID), Event{
		Type: EventUserOffline,
		Payload: map[string]any{
			"user_id":        userID,
			"last_active_at": lastActiveAt.UTC(),
		},
	})
}

// StatusChanged announces an account status transition to the organization.
func (broadcaster *Broadcaster) StatusChanged(context context.Context, userID, organizationID, status string) {
	broadcaster.emit(context, AudienceOrganization(organizationID), Event{
		Type: EventStatusChanged,
		Payload: map[string]any{
			"user_id": userID,
			"status":  status,
		},
	})
}

// SessionTerminated notifies a user's live devices that one of their sessions
// ended. Implements the session registry's notifier contract.
func (broadcaster *Broadcaster) SessionTerminated(context context.Context, userID, sessionID, reason string) {
	broadcaster.emit(context, AudienceUser(userID), Event{
		Type: EventSessionTerminated,
		Payload: map[string]any{
			"session_id": sessionID,
			"reason":     reason,
		},
	})
}

// # Control Commands

// PublishDisconnect orders every process to drop the user's connections.
func (broadcaster *Broadcaster) PublishDisconnect(context context.Context, userID, reason string) error {
	return broadcaster.publish(context, envelope{
		Control: controlDisconnectUser,
		UserID:  userID,
		Reason:  reason,
	})
}

/*
DisconnectSession force-closes one session's connections on every process.

Description: Implements the session registry's notifier contract. Local
connections close immediately; sibling processes act on the bus command.
Publish failures are logged, not surfaced — the session is already
blacklisted, so a lingering socket cannot act on its credentials.

Parameters:
  - context: context.Context
  - sessionID: string
  - reason: string
*/
func (broadcaster *Broadcaster) DisconnectSession(context context.Context, sessionID, reason string) {

	err := broadcaster.publish(context, envelope{
		Control:   controlDisconnectSession,
		SessionID: sessionID,
		Reason:    reason,
	})
	if err != nil {
		broadcaster.logger.Warn("realtime_session_disconnect_publish_failed",
			slog.String("session_id", sessionID),
			slog.Any("error", err),
		)
	}

	if broadcaster.onSessionDisconnect != nil {
		broadcaster.onSessionDisconnect(sessionID, reason)
	}
}
