// Copyright (c) 2026 Confira. All rights reserved.
// Author: dev@confira.app

package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/confira/confira/internal/platform/constants"
	"github.com/confira/confira/internal/platform/middleware"
	requestutil "github.com/confira/confira/internal/platform/request"
	"github.com/confira/confira/internal/platform/respond"
)

// # Definitions & Constructors

// OriginPolicy is the slice of the app config the upgrader needs.
type OriginPolicy interface {
	IsDevelopment() bool
}

// Handler implements the realtime channel HTTP surface.
//
// # Scope
//
// One endpoint: the websocket upgrade. Authentication happens over the
// socket itself so browser clients, which cannot set headers on websocket
// requests, can authenticate with a first-frame payload.
type Handler struct {
	manager      *Manager
	hub          *Hub
	logger       *slog.Logger
	extraOrigins []string
	upgrader     websocket.Upgrader
}

// NewHandler constructs a new [Handler] around the connection manager.
//
// extraOrigins supplements the default origin allow-list, mirroring the CORS
// middleware policy: open in development, confira.app plus the configured
// extras otherwise.
func NewHandler(manager *Manager, hub *Hub, policy OriginPolicy, extraOrigins []string, logger *slog.Logger) *Handler {
	handler := &Handler{
		manager:      manager,
		hub:          hub,
		logger:       logger,
		extraOrigins: extraOrigins,
	}

	handler.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(request *http.Request) bool {
			origin := request.Header.Get(constants.HeaderOrigin)
			if origin == "" || policy.IsDevelopment() {
				return true
			}

			if strings.HasSuffix(origin, "confira.app") {
				return true
			}

			for _, allowed := range handler.extraOrigins {
				if origin == allowed {
					return true
				}
			}
			return false
		},
	}

	return handler
}

// Routes returns a [chi.Router] exposing the realtime channel.
//
// # Endpoints
//   - GET /               : Websocket upgrade (authentication is in-band).
//   - GET /presence/{id}  : Aggregate presence of one user.
//   - GET /stats          : This process's connection totals.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Get("/", handler.serve)

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/presence/{id}", handler.presence)
		r.Get("/stats", handler.stats)
	})

	return router
}

// authFrame is the optional first-frame credential payload.
type authFrame struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

/*
serve upgrades the request and runs the websocket handshake.

GET /api/v1/realtime

Description: Upgrades first, then authenticates over the socket. A client
that supplied no credential in the upgrade request gets one first frame,
within the handshake deadline, to send {"type":"auth","token":...}. On
failure the server emits auth_error and closes; it never reveals why. On
success it emits authenticated and joins the user to their audiences.
*/
func (handler *Handler) serve(writer http.ResponseWriter, request *http.Request) {

	socket, err := handler.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		handler.logger.Debug("realtime_upgrade_failed", slog.Any("error", err))
		return
	}

	handshake := HandshakeFromRequest(request)

	// No credential in the upgrade request: wait for the auth frame.
	if handshake.BearerToken() == "" {
		handshake.AuthPayloadToken = readAuthFrame(socket)
	}

	user := handler.manager.Authenticate(request.Context(), handshake)
	if user == nil {
		writeEvent(socket, Event{Type: EventAuthError, Payload: map[string]string{
			"message": "Authentication failed",
		}})
		_ = socket.Close()
		return
	}

	connection, err := handler.manager.OnConnect(request.Context(), user, handshake)
	if err != nil {
		handler.logger.Error("realtime_connect_failed",
			slog.String("user_id", user.UserID),
			slog.Any("error", err),
		)
		writeEvent(socket, Event{Type: EventAuthError, Payload: map[string]string{
			"message": "Connection could not be established",
		}})
		_ = socket.Close()
		return
	}

	// The request context dies when this handler returns; the connection
	// outlives it, so lifecycle callbacks run on the background context.
	background := context.Background()

	client := NewClient(handler.hub, socket, connection,
		func(connectionID string) {
			handler.manager.OnActivity(background, connectionID)
		},
		func(connectionID string) {
			if err := handler.manager.OnDisconnect(background, connectionID); err != nil {
				handler.logger.Warn("realtime_disconnect_failed",
					slog.String("connection_id", connectionID),
					slog.Any("error", err),
				)
			}
		},
	)

	handler.hub.Register(client)

	// Queued ahead of any broadcast so the client's first event is the
	// confirmation.
	confirmation, _ := json.Marshal(Event{Type: EventAuthenticated, Payload: map[string]any{
		"user_id":       connection.UserID,
		"connection_id": connection.ID,
		"connected_at":  connection.ConnectedAt.UTC(),
	}})
	client.trySend(confirmation)

	go client.WritePump()
	go client.ReadPump()
}

/*
presence reports the aggregate online state of one user.

GET /api/v1/realtime/presence/{id}

Response:
  - 200: Presence: Aggregate state across all processes
  - 401: ErrUnauthorized: Authentication required
  - 404: ErrNotFound: Unknown user
*/
func (handler *Handler) presence(writer http.ResponseWriter, request *http.Request) {
	if _, err := requestutil.RequiredClaims(request); err != nil {
		respond.Error(writer, request, err)
		return
	}

	userID := requestutil.ID(request, "id")

	presence, err := handler.manager.Presence(request.Context(), userID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, presence)
}

/*
stats reports this process's connection totals.

GET /api/v1/realtime/stats

Response:
  - 200: Stats: Connections, unique users, per-organization counts
  - 401: ErrUnauthorized: Authentication required
*/
func (handler *Handler) stats(writer http.ResponseWriter, request *http.Request) {
	if _, err := requestutil.RequiredClaims(request); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, handler.manager.Stats())
}

// readAuthFrame reads the first-frame credential within the handshake window.
func readAuthFrame(socket *websocket.Conn) string {

	_ = socket.SetReadDeadline(time.Now().Add(constants.HandshakeTimeout))
	defer func() { _ = socket.SetReadDeadline(time.Time{}) }()

	_, payload, err := socket.ReadMessage()
	if err != nil {
		return ""
	}

	var frame authFrame
	if err := json.Unmarshal(payload, &frame); err != nil || frame.Type != "auth" {
		return ""
	}

	return frame.Token
}

// writeEvent sends one event directly, outside the pump machinery.
//
// Used only on the failure path, before a client exists.
func writeEvent(socket *websocket.Conn, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}

	_ = socket.SetWriteDeadline(time.Now().Add(writeWait))
	_ = socket.WriteMessage(websocket.TextMessage, payload)
}
