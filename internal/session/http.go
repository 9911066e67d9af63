// Copyright (c) 2026 Confira. All rights reserved.
// Author: dev@confira.app

/*
Package session provides the HTTP delivery layer for session management.

Endpoints let an authenticated user inspect and terminate their own logins;
administrators may additionally terminate other members' sessions.
*/
package session

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/confira/confira/internal/platform/middleware"
	requestutil "github.com/confira/confira/internal/platform/request"
	"github.com/confira/confira/internal/platform/respond"
	"github.com/confira/confira/internal/platform/sec"
	"github.com/confira/confira/pkg/pagination"
)

// Handler implements session-management HTTP endpoints.
type Handler struct {
	registry *Registry
}

// NewHandler constructs a new [Handler] with its registry dependency.
func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

// Routes returns a [chi.Router] for the session surface.
//
// # Endpoints
//   - GET    /         : Lists the caller's sessions (marks the current one).
//   - GET    /stats    : Aggregate statistics (cached, slightly stale).
//   - GET    /activity : Paginated recent-activity listing.
//   - DELETE /{id}     : Terminates one session.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.RequireAuth)
	router.Get("/", handler.list)
	router.Get("/stats", handler.stats)
	router.Get("/activity", handler.activity)
	router.Delete("/{id}", handler.terminate)

	return router
}

// actorFromClaims maps verified token claims onto a registry [Actor].
func actorFromClaims(claims *sec.AuthClaims) Actor {
	return Actor{
		UserID:  claims.UserID,
		Role:    claims.Role,
		IsAdmin: sec.UserRole(claims.Role).AtLeast(sec.RoleAdmin),
	}
}

/*
List returns the caller's sessions ordered by recency.

GET /api/v1/auth/sessions?include_expired=true

Response:
  - 200: []Session: Exactly one entry has is_current = true
  - 401: ErrUnauthorized: Authentication required
*/
func (handler *Handler) list(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	includeExpired := request.URL.Query().Get("include_expired") == "true"

	sessions, err := handler.registry.List(request.Context(), claims.UserID, includeExpired, claims.SessionID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, sessions)
}

/*
Stats returns aggregate statistics over the caller's sessions.

GET /api/v1/auth/sessions/stats

Response:
  - 200: Stats: Totals and device/location breakdowns
  - 401: ErrUnauthorized: Authentication required
*/
func (handler *Handler) stats(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	stats, err := handler.registry.Stats(request.Context(), claims.UserID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, stats)
}

/*
Activity returns a paginated recent-activity view of the caller's sessions.

GET /api/v1/auth/sessions/activity?page=1&limit=20

Response:
  - 200: []Session + pagination meta
  - 401: ErrUnauthorized: Authentication required
*/
func (handler *Handler) activity(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	params := pagination.FromRequest(request)

	sessions, meta, err := handler.registry.Activity(request.Context(), claims.UserID, params)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Paginated(writer, sessions, meta)
}

/*
Terminate removes one session and revokes its tokens.

DELETE /api/v1/auth/sessions/{id}

Description: A user may terminate only their own sessions; administrators may
terminate any session within their organization.

Response:
  - 204: No Content: Session terminated
  - 403: ErrForbidden: Attempt to terminate another user's session
  - 404: ErrNotFound: Unknown or already-removed session
*/
func (handler *Handler) terminate(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	sessionID := requestutil.ID(request, "id")
	actor := actorFromClaims(claims)

	reason := ReasonTerminatedByUser
	if actor.IsAdmin {
		reason = ReasonTerminatedByAdmin
	}

	if _, err := handler.registry.Terminate(request.Context(), sessionID, actor, reason); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}
