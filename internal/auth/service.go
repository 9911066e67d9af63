// Copyright (c) 2026 Confira. All rights reserved.
// Author: dev@confira.app

package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/confira/confira/internal/platform/apperr"
	"github.com/confira/confira/internal/platform/ctxutil"
	"github.com/confira/confira/internal/platform/sec"
	"github.com/confira/confira/internal/session"
	"github.com/confira/confira/pkg/uuid"
)

// # Contracts & Types

// TokenProvider defines the contract for generating access tokens.
type TokenProvider interface {
	// GenerateAccessToken creates a signed JWT string for the given user.
	//
	// # Parameters
	//   - userID: The ID of the account.
	//   - organizationID: The tenant the account belongs to.
	//   - role: The role of the account.
	//   - sessionID: The durable session this token belongs to.
	//   - timeToLive: The duration before the token expires.
	//
	// # Returns
	//   - A signed JWT string, or an err if signing fails.
	GenerateAccessToken(userID, organizationID, role, sessionID string, timeToLive time.Duration) (string, error)
}

// ConnectionTerminator forcibly closes a user's live realtime connections.
//
// # Why an interface?
//
// Logout must reach connections on every server process, but the auth core
// should not depend on the realtime package. The Connection Manager
// implements this via its shared cross-process index.
type ConnectionTerminator interface {
	DisconnectUser(context context.Context, userID, reason string) error
}

// VolatileCleaner clears per-user volatile cache keys after logout.
//
// The contract is explicitly best-effort: failures are logged and must never
// prevent logout from completing.
type VolatileCleaner interface {
	ClearUserKeys(context context.Context, userID string) error
}

// TTLPolicy carries the configured token lifetimes.
type TTLPolicy struct {
	AccessToken  time.Duration
	RefreshToken time.Duration
	RememberMe   time.Duration
}

// Service implements authentication use cases.
//
// # Review Process
//
// This service is critical for security. Any changes to login, refresh, or
// logout logic must be reviewed by the security team.
type Service struct {
	userRepository UserRepository
	organizations  OrganizationRepository
	sessions       *session.Registry
	tokenProvider  TokenProvider
	terminator     ConnectionTerminator
	cleaner        VolatileCleaner
	ttl            TTLPolicy
}

// NewService constructs a new [Service] with necessary dependencies.
func NewService(
	userRepo UserRepository,
	organizationRepo OrganizationRepository,
	sessions *session.Registry,
	tokenProvider TokenProvider,
	terminator ConnectionTerminator,
	cleaner VolatileCleaner,
	ttl TTLPolicy,
) *Service {
	return &Service{
		userRepository: userRepo,
		organizations:  organizationRepo,
		sessions:       sessions,
		tokenProvider:  tokenProvider,
		terminator:     terminator,
		cleaner:        cleaner,
		ttl:            ttl,
	}
}

// # Registration Flow

// RegisterInput holds the data required to enroll a new organization.
type RegisterInput struct {
	OrganizationName string
	Email            string
	Password         string
	DisplayName      string
}

/*
Register creates a new organization together with its first administrator.

Description: The two rows are committed in one transaction — a half-created
tenant can never exist.

Parameters:
  - context: context.Context
  - input: RegisterInput

Returns:
  - *User: Created administrator account
  - error: Conflict (if identity exists) or storage errors
*/
func (service *Service) Register(context context.Context, input RegisterInput) (*User, error) {

	// Verify email uniqueness. Return a client-safe Conflict err.
	_, err := service.userRepository.FindByEmail(context, input.Email)
	if err == nil {
		return nil, apperr.Conflict("Email is already registered")
	}

	// Prevent storing plain-text passwords.
	hashedPassword, err := sec.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("auth_service_hash_failed: %w", err)
	}

	organization := &Organization{
		ID:   uuid.New(),
		Name: input.OrganizationName,
	}

	// Time-sortable IDs to prevent PG index fragmentation.
	admin := &User{
		ID:             uuid.New(),
		OrganizationID: organization.ID,
		Email:          input.Email,
		PasswordHash:   hashedPassword,
		DisplayName:    input.DisplayName,
		Role:           sec.RoleAdmin,
		Status:         StatusActive,
	}

	if err := service.organizations.CreateWithAdmin(context, organization, admin); err != nil {
		return nil, fmt.Errorf("auth_service_register_failed: %w", err)
	}

	return admin, nil
}

// # Authentication Flow

// LoginInput defines credentials for an authentication attempt.
type LoginInput struct {
	Email      string
	Password   string
	RememberMe bool
	UserAgent  string
	IPAddress  string
}

// LoginSession represents a successfully established user session.
type LoginSession struct {
	SessionID             string
	AccessToken           string
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
	User                  *User
}

/*
Login validates user credentials and issues security tokens.

Description: Verifies identity with constant-time password comparison,
creates the durable session row, and issues a token pair. The access token
carries the session identifier so it can be revoked with the session.

Parameters:
  - context: context.Context
  - input: LoginInput

Returns:
  - *LoginSession: Transport-ready session identifiers
  - error: Unauthorized or internal failures
*/
func (service *Service) Login(context context.Context, input LoginInput) (*LoginSession, error) {

	user, err := service.userRepository.FindByEmail(context, input.Email)

	// If (err != nil) the user does not exist. Generic message to prevent enumeration.
	if err != nil {
		return nil, apperr.Unauthorized("Invalid login credentials")
	}

	// Constant-time comparison in bcrypt prevents timing attacks.
	if !sec.CheckPasswordHash(input.Password, user.PasswordHash) {
		return nil, apperr.Unauthorized("Invalid login credentials")
	}

	// Suspended and pending accounts get the same generic failure: the
	// specific cause stays in internal logs only.
	if !user.CanConnect() {
		ctxutil.GetLogger(context).Warn("login_rejected_account_not_active",
			slog.String("user_id", user.ID),
			slog.String("status", string(user.Status)),
		)
		return nil, apperr.Unauthorized("Invalid login credentials")
	}

	// Generate long-lived refresh token; "remember me" extends the window.
	refreshToken, err := sec.GenerateSecureToken(RefreshTokenLength)
	if err != nil {
		return nil, fmt.Errorf("auth_service_refresh_token_failed: %w", err)
	}

	refreshTTL := service.ttl.RefreshToken
	if input.RememberMe {
		refreshTTL = service.ttl.RememberMe
	}
	expiresAt := time.Now().Add(refreshTTL)

	// Exactly one session row per successful login.
	created, err := service.sessions.Create(context, session.CreateInput{
		UserID:    user.ID,
		TokenHash: sec.HashToken(refreshToken),
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("auth_service_session_creation_failed: %w", err)
	}

	accessToken, err := service.tokenProvider.GenerateAccessToken(
		user.ID, user.OrganizationID, string(user.Role), created.ID, service.ttl.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("auth_service_token_generation_failed: %w", err)
	}

	return &LoginSession{
		SessionID:             created.ID,
		AccessToken:           accessToken,
		RefreshToken:          refreshToken,
		RefreshTokenExpiresAt: expiresAt,
		User:                  user,
	}, nil
}

// # Session Refresh

/*
Refresh rotates the refresh token and issues a fresh access token.

Description: The durable session row is updated in place — refresh never
creates a new session row or a new session identifier. The refresh token
itself rotates to mitigate replay.

Parameters:
  - context: context.Context
  - refreshToken: string
  - userAgent: string
  - ipAddress: string

Returns:
  - *LoginSession: New credentials bound to the same session
  - error: Unauthorized or storage failures
*/
func (service *Service) Refresh(context context.Context, refreshToken, userAgent, ipAddress string) (*LoginSession, error) {

	tokenHash := sec.HashToken(refreshToken)
	current, err := service.sessions.FindByTokenHash(context, tokenHash)

	// Expired, terminated, or completely invalid: one generic answer.
	if err != nil {
		return nil, apperr.Unauthorized("Invalid or expired refresh token")
	}

	user, err := service.userRepository.FindByID(context, current.UserID)
	if err != nil || !user.CanConnect() {
		return nil, apperr.Unauthorized("Invalid or expired refresh token")
	}

	// Rotation: the old refresh token dies with this call.
	newRefreshToken, err := sec.GenerateSecureToken(RefreshTokenLength)
	if err != nil {
		return nil, fmt.Errorf("auth_service_refresh_secure_token_failed: %w", err)
	}

	expiresAt := time.Now().Add(service.ttl.RefreshToken)
	if err := service.sessions.RotateToken(context, current.ID, sec.HashToken(newRefreshToken), expiresAt); err != nil {
		return nil, fmt.Errorf("auth_service_refresh_rotate_failed: %w", err)
	}

	accessToken, err := service.tokenProvider.GenerateAccessToken(
		user.ID, user.OrganizationID, string(user.Role), current.ID, service.ttl.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("auth_service_refresh_access_token_failed: %w", err)
	}

	return &LoginSession{
		SessionID:             current.ID,
		AccessToken:           accessToken,
		RefreshToken:          newRefreshToken,
		RefreshTokenExpiresAt: expiresAt,
		User:                  user,
	}, nil
}

// # Logout

// LogoutInput selects which sessions to terminate.
type LogoutInput struct {
	// SessionID optionally targets a specific session; empty means the
	// caller's current session.
	SessionID string

	// LogoutFromAll terminates every session and force-disconnects every
	// live connection for the user.
	LogoutFromAll bool
}

/*
Logout terminates the caller's session(s) and revokes their tokens.

Description: Durable termination and blacklisting always complete first;
force-disconnect and volatile-key cleanup are best-effort side effects that
never fail the logout.

Parameters:
  - context: context.Context
  - actor: session.Actor (derived from the caller's verified claims)
  - currentSessionID: string (from the caller's access token)
  - input: LogoutInput

Returns:
  - error: apperr.NotFound, apperr.Forbidden, or storage failures
*/
func (service *Service) Logout(context context.Context, actor session.Actor, currentSessionID string, input LogoutInput) error {

	log := ctxutil.GetLogger(context)

	if input.LogoutFromAll {
		if _, err := service.sessions.TerminateAll(context, actor.UserID, actor, session.ReasonLogoutAll); err != nil {
			return err
		}

		// Reach connections on every process via the shared index.
		if err := service.terminator.DisconnectUser(context, actor.UserID, session.ReasonLogoutAll); err != nil {
			log.Error("logout_disconnect_failed",
				slog.String("user_id", actor.UserID),
				slog.Any("error", err),
			)
		}
	} else {
		targetID := input.SessionID
		if targetID == "" {
			targetID = currentSessionID
		}

		if _, err := service.sessions.Terminate(context, targetID, actor, session.ReasonLogout); err != nil {
			return err
		}
	}

	// Best-effort, logged, non-blocking by contract.
	if err := service.cleaner.ClearUserKeys(context, actor.UserID); err != nil {
		log.Warn("logout_volatile_cleanup_failed",
			slog.String("user_id", actor.UserID),
			slog.Any("error", err),
		)
	}

	return nil
}
