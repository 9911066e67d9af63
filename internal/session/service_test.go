// Copyright (c) 2026 Confira. All rights reserved.
// Author: dev@confira.app

package session_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/confira/confira/internal/platform/apperr"
	"github.com/confira/confira/internal/session"
)

// # Test Doubles

type fakeRepository struct {
	mutex    sync.Mutex
	sessions map[string]*session.Session
	touched  []string
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{sessions: make(map[string]*session.Session)}
}

func (repo *fakeRepository) Create(_ context.Context, toCreate *session.Session) error {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()
	copied := *toCreate
	repo.sessions[toCreate.ID] = &copied
	return nil
}

func (repo *fakeRepository) FindByID(_ context.Context, id string) (*session.Session, error) {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()
	found, exists := repo.sessions[id]
	if !exists {
		return nil, apperr.NotFound("Session not found")
	}
	copied := *found
	return &copied, nil
}

func (repo *fakeRepository) FindByTokenHash(_ context.Context, tokenHash string) (*session.Session, error) {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()
	for _, found := range repo.sessions {
		if found.TokenHash == tokenHash && !found.IsExpired() {
			copied := *found
			return &copied, nil
		}
	}
	return nil, apperr.NotFound("Session not found")
}

func (repo *fakeRepository) ListByUser(_ context.Context, userID string, includeExpired bool) ([]*session.Session, error) {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()

	var result []*session.Session
	for _, found := range repo.sessions {
		if found.UserID != userID {
			continue
		}
		if !includeExpired && found.IsExpired() {
			continue
		}
		copied := *found
		result = append(result, &copied)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].LastActivityAt.After(result[j].LastActivityAt)
	})
	return result, nil
}

func (repo *fakeRepository) RotateToken(_ context.Context, sessionID, newTokenHash string, expiresAt time.Time) error {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()
	found, exists := repo.sessions[sessionID]
	if !exists {
		return apperr.NotFound("Session not found")
	}
	found.TokenHash = newTokenHash
	found.ExpiresAt = expiresAt
	found.LastActivityAt = time.Now()
	return nil
}

func (repo *fakeRepository) TouchActivity(_ context.Context, sessionID string, at time.Time) error {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()
	repo.touched = append(repo.touched, sessionID)
	if found, exists := repo.sessions[sessionID]; exists {
		found.LastActivityAt = at
	}
	return nil
}

func (repo *fakeRepository) Delete(_ context.Context, sessionID string) error {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()
	if _, exists := repo.sessions[sessionID]; !exists {
		return apperr.NotFound("Session not found")
	}
	delete(repo.sessions, sessionID)
	return nil
}

func (repo *fakeRepository) DeleteExpired(_ context.Context) (int64, error) {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()
	var deleted int64
	for id, found := range repo.sessions {
		if found.IsExpired() {
			delete(repo.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

func (repo *fakeRepository) Stats(_ context.Context, userID string) (*session.Stats, error) {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()

	stats := &session.Stats{
		DeviceBreakdown:   make(map[string]int),
		LocationBreakdown: make(map[string]int),
	}
	for _, found := range repo.sessions {
		if found.UserID != userID {
			continue
		}
		stats.Total++
		if !found.IsExpired() {
			stats.Active++
		}
		if found.IsSuspicious {
			stats.Suspicious++
		}
		if found.LastActivityAt.After(time.Now().Add(-24 * time.Hour)) {
			stats.RecentActivityCount++
		}
		stats.DeviceBreakdown[found.DeviceName]++
		stats.LocationBreakdown[found.Location]++
	}
	return stats, nil
}

func (repo *fakeRepository) CountByUser(_ context.Context, userID string, includeExpired bool) (int, error) {
	all, _ := repo.ListByUser(context.Background(), userID, includeExpired)
	return len(all), nil
}

func (repo *fakeRepository) ListActivity(_ context.Context, userID string, limit, offset int) ([]*session.Session, error) {
	all, _ := repo.ListByUser(context.Background(), userID, true)
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

type fakeStatsCache struct {
	mutex       sync.Mutex
	entries     map[string]*session.Stats
	invalidated []string
}

func newFakeStatsCache() *fakeStatsCache {
	return &fakeStatsCache{entries: make(map[string]*session.Stats)}
}

func (cache *fakeStatsCache) Get(_ context.Context, userID string) *session.Stats {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	return cache.entries[userID]
}

func (cache *fakeStatsCache) Set(_ context.Context, userID string, stats *session.Stats) {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	cache.entries[userID] = stats
}

func (cache *fakeStatsCache) Invalidate(_ context.Context, userID string) {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	delete(cache.entries, userID)
	cache.invalidated = append(cache.invalidated, userID)
}

type fakeBlacklister struct {
	mutex  sync.Mutex
	tokens map[string]time.Duration
}

func newFakeBlacklister() *fakeBlacklister {
	return &fakeBlacklister{tokens: make(map[string]time.Duration)}
}

func (fake *fakeBlacklister) Blacklist(_ context.Context, token string, ttl time.Duration) error {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	fake.tokens[token] = ttl
	return nil
}

type terminationEvent struct {
	UserID    string
	SessionID string
	Reason    string
}

type fakeNotifier struct {
	mutex       sync.Mutex
	events      []terminationEvent
	disconnects []string
}

func (fake *fakeNotifier) SessionTerminated(_ context.Context, userID, sessionID, reason string) {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	fake.events = append(fake.events, terminationEvent{UserID: userID, SessionID: sessionID, Reason: reason})
}

func (fake *fakeNotifier) DisconnectSession(_ context.Context, sessionID, reason string) {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	fake.disconnects = append(fake.disconnects, sessionID+":"+reason)
}

type registryFixture struct {
	repository  *fakeRepository
	statsCache  *fakeStatsCache
	blacklister *fakeBlacklister
	notifier    *fakeNotifier
	registry    *session.Registry
}

func newRegistryFixture(activityInterval time.Duration) *registryFixture {
	fixture := &registryFixture{
		repository:  newFakeRepository(),
		statsCache:  newFakeStatsCache(),
		blacklister: newFakeBlacklister(),
		notifier:    &fakeNotifier{},
	}
	fixture.registry = session.NewRegistry(
		fixture.repository,
		fixture.statsCache,
		fixture.blacklister,
		fixture.notifier,
		15*time.Minute,
		activityInterval,
		nil,
	)
	return fixture
}

func (fixture *registryFixture) createSession(t *testing.T, userID, ip string) *session.Session {
	t.Helper()
	created, err := fixture.registry.Create(context.Background(), session.CreateInput{
		UserID:    userID,
		TokenHash: "hash-" + userID + "-" + ip,
		IPAddress: ip,
		UserAgent: "Mozilla/5.0 (Macintosh) Chrome/120",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	return created
}

// # Tests

/*
TestRegistry_Create_SuspicionScoring flags a login from an address the user
has never used before.
*/
func TestRegistry_Create_SuspicionScoring(t *testing.T) {
	fixture := newRegistryFixture(time.Minute)
	ctx := context.Background()

	first := fixture.createSession(t, "user-1", "203.0.113.10")
	assert.False(t, first.IsSuspicious, "first session has no history to contradict")

	repeat := fixture.createSession(t, "user-1", "203.0.113.10")
	assert.False(t, repeat.IsSuspicious)

	fresh := fixture.createSession(t, "user-1", "198.51.100.7")
	assert.True(t, fresh.IsSuspicious)
	assert.Contains(t, fresh.SuspicionReasons, "new_ip_address")

	stored, err := fixture.registry.List(ctx, "user-1", false, "")
	require.NoError(t, err)
	assert.Len(t, stored, 3)
}

/*
TestRegistry_List_ExactlyOneCurrent marks only the caller's own session.
*/
func TestRegistry_List_ExactlyOneCurrent(t *testing.T) {
	fixture := newRegistryFixture(time.Minute)
	ctx := context.Background()

	fixture.createSession(t, "user-1", "203.0.113.10")
	mine := fixture.createSession(t, "user-1", "203.0.113.10")
	fixture.createSession(t, "user-1", "203.0.113.10")

	listed, err := fixture.registry.List(ctx, "user-1", false, mine.ID)
	require.NoError(t, err)
	require.Len(t, listed, 3)

	currentCount := 0
	for _, entry := range listed {
		if entry.IsCurrent {
			currentCount++
			assert.Equal(t, mine.ID, entry.ID)
		}
	}
	assert.Equal(t, 1, currentCount)

	// An unknown session id marks nothing.
	listed, err = fixture.registry.List(ctx, "user-1", false, "not-a-session")
	require.NoError(t, err)
	for _, entry := range listed {
		assert.False(t, entry.IsCurrent)
	}
}

/*
TestRegistry_Terminate_Authorization enforces the self-or-admin rule.
*/
func TestRegistry_Terminate_Authorization(t *testing.T) {
	tests := []struct {
		name      string
		actor     session.Actor
		forbidden bool
	}{
		{"owner", session.Actor{UserID: "user-1"}, false},
		{"other_user", session.Actor{UserID: "user-2"}, true},
		{"admin", session.Actor{UserID: "user-2", IsAdmin: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fixture := newRegistryFixture(time.Minute)
			ctx := context.Background()
			target := fixture.createSession(t, "user-1", "203.0.113.10")

			terminated, err := fixture.registry.Terminate(ctx, target.ID, tt.actor, session.ReasonTerminatedByUser)

			if tt.forbidden {
				require.Error(t, err)
				ae := apperr.As(err)
				require.NotNil(t, ae)
				assert.Equal(t, 403, ae.HTTPStatus)

				// The row must survive a rejected attempt.
				_, err := fixture.repository.FindByID(ctx, target.ID)
				assert.NoError(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, target.ID, terminated.ID)

			// Row deleted, session id blacklisted, devices notified.
			_, err = fixture.repository.FindByID(ctx, target.ID)
			assert.Error(t, err)
			assert.Contains(t, fixture.blacklister.tokens, target.ID)
			require.Len(t, fixture.notifier.events, 1)
			assert.Equal(t, target.ID, fixture.notifier.events[0].SessionID)

			// The terminated session's live connections are force-closed.
			assert.Equal(t,
				[]string{target.ID + ":" + session.ReasonTerminatedByUser},
				fixture.notifier.disconnects)
		})
	}
}

/*
TestRegistry_Terminate_NotFound surfaces a 404 for unknown sessions.
*/
func TestRegistry_Terminate_NotFound(t *testing.T) {
	fixture := newRegistryFixture(time.Minute)

	_, err := fixture.registry.Terminate(context.Background(), "missing", session.Actor{UserID: "user-1"}, session.ReasonLogout)
	require.Error(t, err)
	ae := apperr.As(err)
	require.NotNil(t, ae)
	assert.Equal(t, 404, ae.HTTPStatus)
}

/*
TestRegistry_TerminateAll removes every session and notifies each one.
*/
func TestRegistry_TerminateAll(t *testing.T) {
	fixture := newRegistryFixture(time.Minute)
	ctx := context.Background()

	fixture.createSession(t, "user-1", "203.0.113.10")
	fixture.createSession(t, "user-1", "203.0.113.10")
	fixture.createSession(t, "user-2", "203.0.113.99")

	terminated, err := fixture.registry.TerminateAll(ctx, "user-1", session.Actor{UserID: "user-1"}, session.ReasonLogoutAll)
	require.NoError(t, err)
	assert.Equal(t, 2, terminated)

	remaining, err := fixture.registry.List(ctx, "user-1", true, "")
	require.NoError(t, err)
	assert.Empty(t, remaining)

	// The other user's session is untouched.
	others, err := fixture.registry.List(ctx, "user-2", true, "")
	require.NoError(t, err)
	assert.Len(t, others, 1)

	assert.Len(t, fixture.notifier.events, 2)
	assert.Len(t, fixture.notifier.disconnects, 2)
	assert.Len(t, fixture.blacklister.tokens, 2)
}

/*
TestRegistry_RecordActivity_Throttling collapses rapid pings into a single
durable write per interval.
*/
func TestRegistry_RecordActivity_Throttling(t *testing.T) {
	fixture := newRegistryFixture(time.Hour)
	ctx := context.Background()
	created := fixture.createSession(t, "user-1", "203.0.113.10")

	for i := 0; i < 5; i++ {
		require.NoError(t, fixture.registry.RecordActivity(ctx, created.ID))
	}

	assert.Len(t, fixture.repository.touched, 1, "only the first ping within the interval writes")

	// A second session throttles independently.
	other := fixture.createSession(t, "user-1", "203.0.113.10")
	require.NoError(t, fixture.registry.RecordActivity(ctx, other.ID))
	assert.Len(t, fixture.repository.touched, 2)
}

/*
TestRegistry_Stats_CacheFirst serves from cache and writes back on a miss.
*/
func TestRegistry_Stats_CacheFirst(t *testing.T) {
	fixture := newRegistryFixture(time.Minute)
	ctx := context.Background()
	fixture.createSession(t, "user-1", "203.0.113.10")

	// A second session whose last activity predates the 24h window must not
	// count as recent.
	dormant := fixture.createSession(t, "user-1", "203.0.113.10")
	fixture.repository.sessions[dormant.ID].LastActivityAt = time.Now().Add(-48 * time.Hour)

	stats, err := fixture.registry.Stats(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.RecentActivityCount)

	// The write-back now serves reads, bypassing the repository.
	cached := fixture.statsCache.Get(ctx, "user-1")
	require.NotNil(t, cached)

	cached.Total = 99
	again, err := fixture.registry.Stats(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 99, again.Total, "cache hit must short-circuit the aggregation")

	// Termination invalidates; the next read recomputes.
	listed, err := fixture.registry.List(ctx, "user-1", false, "")
	require.NoError(t, err)
	_, err = fixture.registry.Terminate(ctx, listed[0].ID, session.Actor{UserID: "user-1"}, session.ReasonLogout)
	require.NoError(t, err)

	recomputed, err := fixture.registry.Stats(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, recomputed.Total)
}

/*
TestRegistry_SweepExpired removes only sessions past expiry.
*/
func TestRegistry_SweepExpired(t *testing.T) {
	fixture := newRegistryFixture(time.Minute)
	ctx := context.Background()

	live := fixture.createSession(t, "user-1", "203.0.113.10")

	expired, err := fixture.registry.Create(ctx, session.CreateInput{
		UserID:    "user-1",
		TokenHash: "hash-expired",
		IPAddress: "203.0.113.10",
		UserAgent: "Mozilla/5.0",
		ExpiresAt: time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)

	swept, err := fixture.registry.SweepExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, swept)

	_, err = fixture.repository.FindByID(ctx, live.ID)
	assert.NoError(t, err)
	_, err = fixture.repository.FindByID(ctx, expired.ID)
	assert.Error(t, err)
}

/*
TestRegistry_RotateToken updates the same row without changing its identity.
*/
func TestRegistry_RotateToken(t *testing.T) {
	fixture := newRegistryFixture(time.Minute)
	ctx := context.Background()
	created := fixture.createSession(t, "user-1", "203.0.113.10")

	newExpiry := time.Now().Add(2 * time.Hour)
	require.NoError(t, fixture.registry.RotateToken(ctx, created.ID, "rotated-hash", newExpiry))

	found, err := fixture.registry.FindByTokenHash(ctx, "rotated-hash")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID, "rotation must keep the session identity")

	_, err = fixture.registry.FindByTokenHash(ctx, created.TokenHash)
	assert.Error(t, err, "the previous refresh token is dead after rotation")
}
