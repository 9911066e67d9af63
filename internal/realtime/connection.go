// Copyright (c) 2026 Confira. All rights reserved.
// Author: dev@confira.app

/*
Package realtime implements the live connection channel: connection tracking,
presence, and event fan-out across server processes.

# Architecture

The package is split along process boundaries:
  - [Manager] owns connection lifecycle and presence. Its in-process map is a
    cache; the shared Redis-backed [SharedIndex] is the source of truth, so
    any process can answer presence questions and disconnect any user.
  - [Hub] owns local websocket fan-out (register/unregister, audience groups).
  - [Broadcaster] publishes events on a shared bus so every process's hub
    delivers them, and relays cross-process disconnect commands.

Durable and cached state is always updated before events are emitted. Event
delivery is best-effort: a client that missed an event re-queries and gets
correct state.
*/
package realtime

import (
	"net/http"
	"strings"
	"time"
)

// # Connection Model

// Connection is the metadata record for one live websocket connection.
//
// A user may hold several connections at once (laptop, phone, extra tabs).
// Connection identity is separate from session identity: one login session
// can back many connections.
type Connection struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	OrganizationID string    `json:"organization_id"`
	SessionID      string    `json:"session_id"`
	Role           string    `json:"role"`
	IPAddress      string    `json:"ip_address"`
	UserAgent      string    `json:"user_agent"`
	ConnectedAt    time.Time `json:"connected_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// ConnectedUser is the verified identity attached to a connection after a
// successful handshake.
type ConnectedUser struct {
	UserID         string
	OrganizationID string
	SessionID      string
	Role           string
}

// Presence is the aggregate online state of one user across all processes.
type Presence struct {
	UserID          string    `json:"user_id"`
	IsOnline        bool      `json:"is_online"`
	ConnectionCount int64     `json:"connection_count"`
	LastActiveAt    time.Time `json:"last_active_at"`
}

// Stats summarizes the connections owned by this process only.
//
// Cross-process totals live in the shared index; these numbers exist for
// per-instance operational logging.
type Stats struct {
	Connections    int            `json:"connections"`
	UniqueUsers    int            `json:"unique_users"`
	ByOrganization map[string]int `json:"by_organization"`
}

// # Handshake

// Handshake carries the credential candidates gathered while accepting a
// websocket connection.
type Handshake struct {
	// AuthPayloadToken is the token from the client's first frame
	// ({"type":"auth","token":...}), if one was sent.
	AuthPayloadToken string

	// AuthorizationHeader is the raw Authorization header of the upgrade
	// request, if present.
	AuthorizationHeader string

	// QueryToken is the ?token= query parameter of the upgrade request.
	// Lowest precedence: URLs leak into logs and proxies.
	QueryToken string

	IPAddress string
	UserAgent string
}

// HandshakeFromRequest captures the credential candidates available at
// upgrade time. The auth-payload token, if any, is filled in later from the
// first websocket frame.
func HandshakeFromRequest(request *http.Request) Handshake {
	return Handshake{
		AuthorizationHeader: request.Header.Get("Authorization"),
		QueryToken:          request.URL.Query().Get("token"),
		IPAddress:           clientIP(request),
		UserAgent:           request.UserAgent(),
	}
}

// BearerToken resolves the effective credential.
//
// Precedence: auth payload, then Authorization header, then query parameter.
// A malformed Authorization header is rejected outright, not treated as
// absent: falling through would mask a broken client by authenticating it
// through the query channel, the one that leaks into logs and proxies.
// Returns "" when no credential was supplied through any channel.
func (handshake Handshake) BearerToken() string {
	if handshake.AuthPayloadToken != "" {
		return handshake.AuthPayloadToken
	}

	if header := handshake.AuthorizationHeader; header != "" {
		parts := strings.Split(header, " ")
		if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
			return parts[1]
		}
		return ""
	}

	return handshake.QueryToken
}

// clientIP tries to extract the real IP address of a user over proxy environments.
func clientIP(request *http.Request) string {

	ip := request.Header.Get("X-Real-IP")
	if ip == "" {
		ip = request.Header.Get("X-Forwarded-For")
	}

	if ip == "" {
		ip = request.RemoteAddr
	}
	return ip
}
