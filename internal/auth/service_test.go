// Copyright (c) 2026 Confira. All rights reserved.
// Author: dev@confira.app

package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/confira/confira/internal/auth"
	"github.com/confira/confira/internal/platform/apperr"
	"github.com/confira/confira/internal/platform/sec"
	"github.com/confira/confira/internal/session"
)

// # Fakes

type fakeUserRepository struct {
	byID    map[string]*auth.User
	byEmail map[string]*auth.User
}

func newFakeUserRepository() *fakeUserRepository {
	return &fakeUserRepository{
		byID:    make(map[string]*auth.User),
		byEmail: make(map[string]*auth.User),
	}
}

func (f *fakeUserRepository) FindByID(_ context.Context, id string) (*auth.User, error) {
	user, exists := f.byID[id]
	if !exists {
		return nil, apperr.NotFound("User not found")
	}
	return user, nil
}

func (f *fakeUserRepository) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	user, exists := f.byEmail[email]
	if !exists {
		return nil, apperr.NotFound("User not found")
	}
	return user, nil
}

func (f *fakeUserRepository) Create(_ context.Context, user *auth.User) error {
	f.byID[user.ID] = user
	f.byEmail[user.Email] = user
	return nil
}

func (f *fakeUserRepository) UpdateStatus(_ context.Context, userID string, status auth.UserStatus) error {
	if user, exists := f.byID[userID]; exists {
		user.Status = status
	}
	return nil
}

func (f *fakeUserRepository) SetPresenceShadow(_ context.Context, userID string, isOnline bool, lastActiveAt time.Time) error {
	if user, exists := f.byID[userID]; exists {
		user.IsOnline = isOnline
		user.LastActiveAt = lastActiveAt
	}
	return nil
}

// fakeOrganizationRepository writes the admin through the user repository so
// the rest of the fixture sees registered accounts.
type fakeOrganizationRepository struct {
	organizations map[string]*auth.Organization
	users         *fakeUserRepository
}

func (f *fakeOrganizationRepository) FindByID(_ context.Context, id string) (*auth.Organization, error) {
	organization, exists := f.organizations[id]
	if !exists {
		return nil, apperr.NotFound("Organization not found")
	}
	return organization, nil
}

func (f *fakeOrganizationRepository) CreateWithAdmin(ctx context.Context, organization *auth.Organization, admin *auth.User) error {
	f.organizations[organization.ID] = organization
	return f.users.Create(ctx, admin)
}

type issuedToken struct {
	userID         string
	organizationID string
	role           string
	sessionID      string
	timeToLive     time.Duration
}

type fakeTokenProvider struct {
	issued []issuedToken
}

func (f *fakeTokenProvider) GenerateAccessToken(userID, organizationID, role, sessionID string, timeToLive time.Duration) (string, error) {
	f.issued = append(f.issued, issuedToken{userID, organizationID, role, sessionID, timeToLive})
	return "access-" + sessionID, nil
}

type fakeTerminator struct {
	disconnects []string
}

func (f *fakeTerminator) DisconnectUser(_ context.Context, userID, reason string) error {
	f.disconnects = append(f.disconnects, userID+":"+reason)
	return nil
}

type fakeCleaner struct {
	cleared []string
	err     error
}

func (f *fakeCleaner) ClearUserKeys(_ context.Context, userID string) error {
	f.cleared = append(f.cleared, userID)
	return f.err
}

// fakeSessionRepository backs the real session registry with an in-memory map.
type fakeSessionRepository struct {
	sessions map[string]*session.Session
}

func newFakeSessionRepository() *fakeSessionRepository {
	return &fakeSessionRepository{sessions: make(map[string]*session.Session)}
}

func (f *fakeSessionRepository) Create(_ context.Context, s *session.Session) error {
	f.sessions[s.ID] = s
	return nil
}

func (f *fakeSessionRepository) FindByID(_ context.Context, id string) (*session.Session, error) {
	s, exists := f.sessions[id]
	if !exists {
		return nil, apperr.NotFound("Session not found")
	}
	return s, nil
}

func (f *fakeSessionRepository) FindByTokenHash(_ context.Context, tokenHash string) (*session.Session, error) {
	for _, s := range f.sessions {
		if s.TokenHash == tokenHash && s.ExpiresAt.After(time.Now()) {
			return s, nil
		}
	}
	return nil, apperr.NotFound("Session not found")
}

func (f *fakeSessionRepository) ListByUser(_ context.Context, userID string, includeExpired bool) ([]*session.Session, error) {
	var result []*session.Session
	for _, s := range f.sessions {
		if s.UserID != userID {
			continue
		}
		if !includeExpired && s.ExpiresAt.Before(time.Now()) {
			continue
		}
		result = append(result, s)
	}
	return result, nil
}

func (f *fakeSessionRepository) RotateToken(_ context.Context, sessionID, newTokenHash string, expiresAt time.Time) error {
	s, exists := f.sessions[sessionID]
	if !exists {
		return apperr.NotFound("Session not found")
	}
	s.TokenHash = newTokenHash
	s.ExpiresAt = expiresAt
	return nil
}

func (f *fakeSessionRepository) TouchActivity(_ context.Context, sessionID string, at time.Time) error {
	if s, exists := f.sessions[sessionID]; exists {
		s.LastActivityAt = at
	}
	return nil
}

func (f *fakeSessionRepository) Delete(_ context.Context, sessionID string) error {
	delete(f.sessions, sessionID)
	return nil
}

func (f *fakeSessionRepository) DeleteExpired(_ context.Context) (int64, error) {
	var removed int64
	for id, s := range f.sessions {
		if s.ExpiresAt.Before(time.Now()) {
			delete(f.sessions, id)
			removed++
		}
	}
	return removed, nil
}

func (f *fakeSessionRepository) Stats(_ context.Context, userID string) (*session.Stats, error) {
	stats := &session.Stats{DeviceBreakdown: make(map[string]int)}
	for _, s := range f.sessions {
		if s.UserID == userID {
			stats.Total++
		}
	}
	return stats, nil
}

func (f *fakeSessionRepository) CountByUser(_ context.Context, userID string, _ bool) (int, error) {
	count := 0
	for _, s := range f.sessions {
		if s.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (f *fakeSessionRepository) ListActivity(ctx context.Context, userID string, _, _ int) ([]*session.Session, error) {
	return f.ListByUser(ctx, userID, true)
}

type noopStatsCache struct{}

func (noopStatsCache) Get(_ context.Context, _ string) *session.Stats    { return nil }
func (noopStatsCache) Set(_ context.Context, _ string, _ *session.Stats) {}
func (noopStatsCache) Invalidate(_ context.Context, _ string)            {}

type fakeBlacklist struct {
	entries map[string]time.Duration
}

func (f *fakeBlacklist) Blacklist(_ context.Context, token string, ttl time.Duration) error {
	f.entries[token] = ttl
	return nil
}

// fakeSessionNotifier records the termination fan-out the registry requests.
type fakeSessionNotifier struct {
	terminated  []string
	disconnects []string
}

func (f *fakeSessionNotifier) SessionTerminated(_ context.Context, _, sessionID, reason string) {
	f.terminated = append(f.terminated, sessionID+":"+reason)
}

func (f *fakeSessionNotifier) DisconnectSession(_ context.Context, sessionID, reason string) {
	f.disconnects = append(f.disconnects, sessionID+":"+reason)
}

// # Fixture

type serviceFixture struct {
	service    *auth.Service
	users      *fakeUserRepository
	sessions   *fakeSessionRepository
	provider   *fakeTokenProvider
	terminator *fakeTerminator
	cleaner    *fakeCleaner
	blacklist  *fakeBlacklist
	notifier   *fakeSessionNotifier
	ttl        auth.TTLPolicy
}

func newServiceFixture() *serviceFixture {
	users := newFakeUserRepository()
	sessions := newFakeSessionRepository()
	blacklist := &fakeBlacklist{entries: make(map[string]time.Duration)}

	fixture := &serviceFixture{
		users:      users,
		sessions:   sessions,
		provider:   &fakeTokenProvider{},
		terminator: &fakeTerminator{},
		cleaner:    &fakeCleaner{},
		blacklist:  blacklist,
		notifier:   &fakeSessionNotifier{},
		ttl: auth.TTLPolicy{
			AccessToken:  15 * time.Minute,
			RefreshToken: 7 * 24 * time.Hour,
			RememberMe:   30 * 24 * time.Hour,
		},
	}

	registry := session.NewRegistry(
		sessions, noopStatsCache{}, blacklist, fixture.notifier,
		fixture.ttl.AccessToken, time.Minute, nil,
	)

	fixture.service = auth.NewService(
		users,
		&fakeOrganizationRepository{organizations: make(map[string]*auth.Organization), users: users},
		registry,
		fixture.provider,
		fixture.terminator,
		fixture.cleaner,
		fixture.ttl,
	)

	return fixture
}

// seedUser registers an active member account with the given password.
func (f *serviceFixture) seedUser(t *testing.T, id, email, password string) *auth.User {
	t.Helper()

	hash, err := sec.HashPassword(password)
	require.NoError(t, err)

	user := &auth.User{
		ID:             id,
		OrganizationID: "org-1",
		Email:          email,
		PasswordHash:   hash,
		DisplayName:    "Test User",
		Role:           sec.RoleMember,
		Status:         auth.StatusActive,
	}
	require.NoError(t, f.users.Create(context.Background(), user))

	return user
}

// login runs a standard login for a seeded user.
func (f *serviceFixture) login(t *testing.T, email, password string) *auth.LoginSession {
	t.Helper()

	login, err := f.service.Login(context.Background(), auth.LoginInput{
		Email:     email,
		Password:  password,
		IPAddress: "203.0.113.10",
		UserAgent: "Mozilla/5.0 (Macintosh) Chrome/120",
	})
	require.NoError(t, err)

	return login
}

// # Tests

/*
TestService_Register creates the organization and its first administrator in
one step, and rejects an already-registered identity.
*/
func TestService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("creates_organization_with_admin", func(t *testing.T) {
		fixture := newServiceFixture()

		admin, err := fixture.service.Register(ctx, auth.RegisterInput{
			OrganizationName: "Acme Corp",
			Email:            "founder@acme.test",
			Password:         "s3cure-passphrase",
			DisplayName:      "Founder",
		})
		require.NoError(t, err)

		assert.Equal(t, sec.RoleAdmin, admin.Role)
		assert.Equal(t, auth.StatusActive, admin.Status)
		assert.NotEmpty(t, admin.OrganizationID)

		// Never the plain text, always a verifiable hash.
		assert.NotEqual(t, "s3cure-passphrase", admin.PasswordHash)
		assert.True(t, sec.CheckPasswordHash("s3cure-passphrase", admin.PasswordHash))

		stored, err := fixture.users.FindByEmail(ctx, "founder@acme.test")
		require.NoError(t, err)
		assert.Equal(t, admin.ID, stored.ID)
	})

	t.Run("duplicate_email_conflicts", func(t *testing.T) {
		fixture := newServiceFixture()
		fixture.seedUser(t, "user-1", "taken@acme.test", "whatever")

		_, err := fixture.service.Register(ctx, auth.RegisterInput{
			OrganizationName: "Other Corp",
			Email:            "taken@acme.test",
			Password:         "another-pass",
			DisplayName:      "Impostor",
		})
		require.Error(t, err)

		ae := apperr.As(err)
		require.NotNil(t, ae)
		assert.Equal(t, 409, ae.HTTPStatus)
	})
}

/*
TestService_Login verifies the credential gate and the issued token pair.
Every rejection uses the same generic message so the response never reveals
whether the account exists.
*/
func TestService_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("success_issues_session_bound_tokens", func(t *testing.T) {
		fixture := newServiceFixture()
		user := fixture.seedUser(t, "user-1", "member@acme.test", "correct-pass")

		login := fixture.login(t, "member@acme.test", "correct-pass")

		assert.Equal(t, user.ID, login.User.ID)
		assert.NotEmpty(t, login.RefreshToken)

		// The durable row stores only the refresh token hash.
		row, err := fixture.sessions.FindByTokenHash(ctx, sec.HashToken(login.RefreshToken))
		require.NoError(t, err)
		assert.Equal(t, login.SessionID, row.ID)

		// The access token is bound to that session.
		require.Len(t, fixture.provider.issued, 1)
		assert.Equal(t, login.SessionID, fixture.provider.issued[0].sessionID)
		assert.Equal(t, fixture.ttl.AccessToken, fixture.provider.issued[0].timeToLive)
		assert.Equal(t, "access-"+login.SessionID, login.AccessToken)
	})

	t.Run("remember_me_extends_refresh_window", func(t *testing.T) {
		fixture := newServiceFixture()
		fixture.seedUser(t, "user-1", "member@acme.test", "correct-pass")

		login, err := fixture.service.Login(ctx, auth.LoginInput{
			Email:      "member@acme.test",
			Password:   "correct-pass",
			RememberMe: true,
		})
		require.NoError(t, err)

		assert.WithinDuration(t,
			time.Now().Add(fixture.ttl.RememberMe), login.RefreshTokenExpiresAt, time.Minute)
	})

	t.Run("rejections_share_one_generic_message", func(t *testing.T) {
		tests := []struct {
			name  string
			setup func(f *serviceFixture)
			email string
		}{
			{
				name:  "unknown_email",
				setup: func(f *serviceFixture) {},
				email: "nobody@acme.test",
			},
			{
				name: "wrong_password",
				setup: func(f *serviceFixture) {
					f.seedUser(t, "user-1", "member@acme.test", "other-pass")
				},
				email: "member@acme.test",
			},
			{
				name: "suspended_account",
				setup: func(f *serviceFixture) {
					user := f.seedUser(t, "user-1", "member@acme.test", "correct-pass")
					user.Status = auth.StatusSuspended
				},
				email: "member@acme.test",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				fixture := newServiceFixture()
				tt.setup(fixture)

				login, err := fixture.service.Login(ctx, auth.LoginInput{
					Email:    tt.email,
					Password: "correct-pass",
				})
				assert.Nil(t, login)

				ae := apperr.As(err)
				require.NotNil(t, ae)
				assert.Equal(t, 401, ae.HTTPStatus)
				assert.Equal(t, "Invalid login credentials", ae.Message)
			})
		}
	})
}

/*
TestService_Refresh rotates the refresh token in place: the session identifier
survives, the old token dies.
*/
func TestService_Refresh(t *testing.T) {
	ctx := context.Background()

	t.Run("rotation_keeps_session_identity", func(t *testing.T) {
		fixture := newServiceFixture()
		fixture.seedUser(t, "user-1", "member@acme.test", "correct-pass")
		login := fixture.login(t, "member@acme.test", "correct-pass")

		refreshed, err := fixture.service.Refresh(ctx, login.RefreshToken, "ua", "203.0.113.10")
		require.NoError(t, err)

		assert.Equal(t, login.SessionID, refreshed.SessionID)
		assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

		// Old token is dead, new one resolves to the same row.
		_, err = fixture.sessions.FindByTokenHash(ctx, sec.HashToken(login.RefreshToken))
		assert.Error(t, err)

		row, err := fixture.sessions.FindByTokenHash(ctx, sec.HashToken(refreshed.RefreshToken))
		require.NoError(t, err)
		assert.Equal(t, login.SessionID, row.ID)
	})

	t.Run("unknown_token_rejected", func(t *testing.T) {
		fixture := newServiceFixture()

		refreshed, err := fixture.service.Refresh(ctx, "never-issued", "ua", "203.0.113.10")
		assert.Nil(t, refreshed)

		ae := apperr.As(err)
		require.NotNil(t, ae)
		assert.Equal(t, 401, ae.HTTPStatus)
	})

	t.Run("suspended_account_rejected", func(t *testing.T) {
		fixture := newServiceFixture()
		user := fixture.seedUser(t, "user-1", "member@acme.test", "correct-pass")
		login := fixture.login(t, "member@acme.test", "correct-pass")

		user.Status = auth.StatusSuspended

		refreshed, err := fixture.service.Refresh(ctx, login.RefreshToken, "ua", "203.0.113.10")
		assert.Nil(t, refreshed)
		require.Error(t, err)
	})
}

/*
TestService_Logout terminates durable sessions first; force-disconnect and
volatile cleanup are side effects that never fail the call.
*/
func TestService_Logout(t *testing.T) {
	ctx := context.Background()

	t.Run("current_session_only", func(t *testing.T) {
		fixture := newServiceFixture()
		fixture.seedUser(t, "user-1", "member@acme.test", "correct-pass")
		login := fixture.login(t, "member@acme.test", "correct-pass")

		actor := session.Actor{UserID: "user-1", Role: "member"}
		err := fixture.service.Logout(ctx, actor, login.SessionID, auth.LogoutInput{})
		require.NoError(t, err)

		_, err = fixture.sessions.FindByID(ctx, login.SessionID)
		assert.Error(t, err)

		// Outstanding access tokens die with the session id.
		assert.Contains(t, fixture.blacklist.entries, login.SessionID)
		assert.Equal(t, []string{"user-1"}, fixture.cleaner.cleared)

		// Single-session logout never touches other devices, but the logged
		// out session's own sockets are force-closed everywhere.
		assert.Empty(t, fixture.terminator.disconnects)
		assert.Equal(t,
			[]string{login.SessionID + ":" + session.ReasonLogout},
			fixture.notifier.disconnects)
	})

	t.Run("logout_from_all_devices", func(t *testing.T) {
		fixture := newServiceFixture()
		fixture.seedUser(t, "user-1", "member@acme.test", "correct-pass")
		first := fixture.login(t, "member@acme.test", "correct-pass")
		second := fixture.login(t, "member@acme.test", "correct-pass")

		actor := session.Actor{UserID: "user-1", Role: "member"}
		err := fixture.service.Logout(ctx, actor, first.SessionID, auth.LogoutInput{LogoutFromAll: true})
		require.NoError(t, err)

		_, err = fixture.sessions.FindByID(ctx, first.SessionID)
		assert.Error(t, err)
		_, err = fixture.sessions.FindByID(ctx, second.SessionID)
		assert.Error(t, err)

		assert.Equal(t, []string{"user-1:" + session.ReasonLogoutAll}, fixture.terminator.disconnects)
		assert.Len(t, fixture.notifier.disconnects, 2)
	})

	t.Run("cleanup_failure_is_non_fatal", func(t *testing.T) {
		fixture := newServiceFixture()
		fixture.seedUser(t, "user-1", "member@acme.test", "correct-pass")
		login := fixture.login(t, "member@acme.test", "correct-pass")
		fixture.cleaner.err = assert.AnError

		actor := session.Actor{UserID: "user-1", Role: "member"}
		err := fixture.service.Logout(ctx, actor, login.SessionID, auth.LogoutInput{})
		assert.NoError(t, err)
	})
}
