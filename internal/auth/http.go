// Copyright (c) 2026 Confira. All rights reserved.
// Author: dev@confira.app

package auth

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/confira/confira/internal/platform/apperr"
	"github.com/confira/confira/internal/platform/constants"
	"github.com/confira/confira/internal/platform/middleware"
	requestutil "github.com/confira/confira/internal/platform/request"
	"github.com/confira/confira/internal/platform/respond"
	"github.com/confira/confira/internal/platform/sec"
	"github.com/confira/confira/internal/platform/validate"
	"github.com/confira/confira/internal/session"
)

// # Definitions & Constructors

// Handler implements authentication-related HTTP endpoints.
//
// # Scope
//
// This handler manages the tenant and token lifecycle entry points
// (Registration, Login, Refresh, Logout).
type Handler struct {
	authService    *Service
	accessTokenTTL time.Duration
}

// NewHandler constructs a new [Handler] with its service dependency.
func NewHandler(service *Service, accessTokenTTL time.Duration) *Handler {
	return &Handler{authService: service, accessTokenTTL: accessTokenTTL}
}

// Routes returns a [chi.Router] configured with authentication-specific routes.
//
// # Endpoints
//   - POST /register : Enrolls a new organization with its first admin.
//   - POST /login    : Authenticates and returns a JWT.
//   - POST /refresh  : Rotates the refresh token and re-issues the JWT.
//   - POST /logout   : Terminates one session or every session.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	// Public endpoints
	router.Post("/register", handler.register)
	router.Post("/login", handler.login)
	router.Post("/refresh", handler.refresh)

	// Protected endpoints
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Post("/logout", handler.logout)
	})

	return router
}

// # Request Payloads

type registerRequest struct {
	OrganizationName string `json:"organization_name"`
	Email            string `json:"email"`
	Password         string `json:"password"`
	DisplayName      string `json:"display_name"`
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

type logoutRequest struct {
	SessionID     string `json:"session_id"`
	LogoutFromAll bool   `json:"logout_from_all"`
}

/*
Register enrolls a new organization together with its first administrator.

POST /api/v1/auth/register

Description: Validates input, checks for identity conflicts, and persists the
organization and its admin account in a single transaction.

Request:
  - Body: registerRequest (OrganizationName, Email, Password, DisplayName)

Response:
  - 201: User: Created administrator profile
  - 400: ErrInvalidJSON: Bad input or validation failure
  - 409: ErrConflict: Email already exists
*/
func (handler *Handler) register(writer http.ResponseWriter, request *http.Request) {
	var input registerRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldOrganizationName, input.OrganizationName).
		MinLen(FieldOrganizationName, input.OrganizationName, 2).
		Required(FieldEmail, input.Email).
		Email(FieldEmail, input.Email).
		Required(FieldPassword, input.Password).
		MinLen(FieldPassword, input.Password, 8)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.authService.Register(request.Context(), RegisterInput{
		OrganizationName: input.OrganizationName,
		Email:            input.Email,
		Password:         input.Password,
		DisplayName:      input.DisplayName,
	})

	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, user)
}

/*
Login authenticates a user and establishes a session.

POST /api/v1/auth/login

Description: Verifies credentials, generates JWT access tokens, and injects
a secure refresh token cookie into the response.

Request:
  - Body: loginRequest (Email, Password, RememberMe)

Response:
  - 200: Session: Access token, session identifier and User profile
  - 401: ErrUnauthorized: Invalid credentials or account not active
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email)
	validator.Required(FieldPassword, input.Password)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	loginSession, err := handler.authService.Login(request.Context(), LoginInput{
		Email:      input.Email,
		Password:   input.Password,
		RememberMe: input.RememberMe,
		UserAgent:  request.UserAgent(),
		IPAddress:  getClientIP(request),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	setRefreshCookie(writer, loginSession)

	respond.OK(writer, map[string]any{
		FieldAccessToken: loginSession.AccessToken,
		FieldTokenType:   "Bearer",
		FieldExpiresIn:   handler.accessTokenTTL / time.Second,
		FieldSessionID:   loginSession.SessionID,
		FieldUser:        loginSession.User,
	})
}

/*
Refresh issues a new access token using a valid refresh token.

POST /api/v1/auth/refresh

Description: Validates the refresh token cookie, rotates the refresh token on
the existing session, and issues a fresh access token. The session identifier
never changes across a refresh.

Response:
  - 200: RefreshResponse: New access token credentials
  - 401: ErrUnauthorized: Missing or invalid refresh token
*/
func (handler *Handler) refresh(writer http.ResponseWriter, request *http.Request) {
	cookie, err := request.Cookie(constants.RefreshTokenCookieName)
	if err != nil || cookie.Value == "" {
		respond.Error(writer, request, apperr.Unauthorized("Missing refresh token in cookies"))
		return
	}

	loginSession, err := handler.authService.Refresh(
		request.Context(),
		cookie.Value,
		request.UserAgent(),
		getClientIP(request),
	)

	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	setRefreshCookie(writer, loginSession)

	respond.OK(writer, map[string]any{
		FieldAccessToken: loginSession.AccessToken,
		FieldTokenType:   "Bearer",
		FieldExpiresIn:   handler.accessTokenTTL / time.Second,
		FieldSessionID:   loginSession.SessionID,
	})
}

/*
Logout terminates the caller's session(s) and revokes their tokens.

POST /api/v1/auth/logout

Description: Terminates the targeted session (or every session when
logout_from_all is set), blacklists the revoked credentials, and clears the
refresh token cookie from the client. An empty body targets the caller's
current session.

Request:
  - Body: logoutRequest (SessionID?, LogoutFromAll?) — optional

Response:
  - 204: No Content: Session(s) terminated
  - 403: ErrForbidden: Target session belongs to another user
  - 404: ErrNotFound: Target session does not exist
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	// The body is optional; a bare POST logs out the current session.
	var input logoutRequest
	if request.ContentLength > 0 {
		if err := requestutil.DecodeJSON(request, &input); err != nil {
			respond.Error(writer, request, validate.ErrInvalidJSON)
			return
		}
	}

	err = handler.authService.Logout(request.Context(), actorFromClaims(claims), claims.SessionID, LogoutInput{
		SessionID:     input.SessionID,
		LogoutFromAll: input.LogoutFromAll,
	})

	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    "",
		Path:     constants.RefreshTokenCookiePath,
		MaxAge:   -1,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	respond.NoContent(writer)
}

// # Helpers

// setRefreshCookie injects the refresh token as a scoped, secure cookie.
func setRefreshCookie(writer http.ResponseWriter, loginSession *LoginSession) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    loginSession.RefreshToken,
		Path:     constants.RefreshTokenCookiePath,
		Expires:  loginSession.RefreshTokenExpiresAt,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// actorFromClaims maps verified token claims onto a session registry actor.
func actorFromClaims(claims *sec.AuthClaims) session.Actor {
	return session.Actor{
		UserID:  claims.UserID,
		Role:    claims.Role,
		IsAdmin: sec.UserRole(claims.Role).AtLeast(sec.RoleAdmin),
	}
}

// getClientIP tries to extract the real IP address of a user over proxy environments.
func getClientIP(request *http.Request) string {

	ip := request.Header.Get("X-Real-IP")
	if ip == "" {
		ip = request.Header.Get("X-Forwarded-For")
	}

	if ip == "" {
		ip = request.RemoteAddr
	}
	return ip
}
