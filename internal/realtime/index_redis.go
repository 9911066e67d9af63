// Copyright (c) 2026 Confira. All rights reserved.
// Author: dev@confira.app

package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/confira/confira/internal/platform/constants"
)

// # Shared Index (Redis)

/*
RedisIndex implements [SharedIndex] on Redis.

Layout:
  - connection:<id>        hash of connection metadata, TTL-bearing
  - user_connections:<uid> set of live connection ids, TTL-bearing

Set membership is maintained with SADD/SREM/SCARD inside a MULTI/EXEC
pipeline. Counts are never read-modify-written, so concurrent connects and
disconnects from different processes stay correct. The TTLs act as a safety
net: entries from a crashed process disappear once nothing refreshes them.
*/
type RedisIndex struct {
	client *redis.Client

	// entryTTL bounds how long an entry survives without a Touch.
	entryTTL time.Duration
}

// NewRedisIndex creates the Redis-backed shared connection index.
//
// staleAfter is the connection staleness threshold; index entries expire one
// reaper interval later so the reaper always observes them first.
func NewRedisIndex(client *redis.Client, staleAfter time.Duration) *RedisIndex {
	return &RedisIndex{
		client:   client,
		entryTTL: staleAfter + constants.ReaperInterval,
	}
}

func connectionKey(connectionID string) string {
	return constants.RedisPrefixConnection + connectionID
}

func userConnectionsKey(userID string) string {
	return constants.RedisPrefixUserConnections + userID
}

// PutConnection registers a connection and returns the user's resulting
// connection count, counted atomically with the SADD.
func (index *RedisIndex) PutConnection(context context.Context, connection *Connection) (int64, error) {

	metadata := map[string]any{
		"user_id":          connection.UserID,
		"organization_id":  connection.OrganizationID,
		"session_id":       connection.SessionID,
		"role":             connection.Role,
		"ip_address":       connection.IPAddress,
		"user_agent":       connection.UserAgent,
		"connected_at":     connection.ConnectedAt.Format(time.RFC3339Nano),
		"last_activity_at": connection.LastActivityAt.Format(time.RFC3339Nano),
	}

	pipeline := index.client.TxPipeline()
	pipeline.HSet(context, connectionKey(connection.ID), metadata)
	pipeline.Expire(context, connectionKey(connection.ID), index.entryTTL)
	pipeline.SAdd(context, userConnectionsKey(connection.UserID), connection.ID)
	pipeline.Expire(context, userConnectionsKey(connection.UserID), index.entryTTL)
	count := pipeline.SCard(context, userConnectionsKey(connection.UserID))

	if _, err := pipeline.Exec(context); err != nil {
		return 0, fmt.Errorf("realtime_index_put_failed: %w", err)
	}

	return count.Val(), nil
}

// RemoveConnection deregisters a connection. Idempotent: a second removal of
// the same id reports removed=false without error.
func (index *RedisIndex) RemoveConnection(context context.Context, userID, connectionID string) (int64, bool, error) {

	pipeline := index.client.TxPipeline()
	removed := pipeline.SRem(context, userConnectionsKey(userID), connectionID)
	pipeline.Del(context, connectionKey(connectionID))
	remaining := pipeline.SCard(context, userConnectionsKey(userID))

	if _, err := pipeline.Exec(context); err != nil {
		return 0, false, fmt.Errorf("realtime_index_remove_failed: %w", err)
	}

	return remaining.Val(), removed.Val() > 0, nil
}

// UserConnectionCount returns the cross-process connection count for a user.
func (index *RedisIndex) UserConnectionCount(context context.Context, userID string) (int64, error) {

	count, err := index.client.SCard(context, userConnectionsKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("realtime_index_count_failed: %w", err)
	}

	return count, nil
}

// UserConnections lists the user's live connection ids across all processes.
func (index *RedisIndex) UserConnections(context context.Context, userID string) ([]string, error) {

	members, err := index.client.SMembers(context, userConnectionsKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("realtime_index_members_failed: %w", err)
	}

	return members, nil
}

// Touch refreshes a connection's activity timestamp and extends both TTLs.
func (index *RedisIndex) Touch(context context.Context, userID, connectionID string, at time.Time) error {

	pipeline := index.client.TxPipeline()
	pipeline.HSet(context, connectionKey(connectionID), "last_activity_at", at.Format(time.RFC3339Nano))
	pipeline.Expire(context, connectionKey(connectionID), index.entryTTL)
	pipeline.Expire(context, userConnectionsKey(userID), index.entryTTL)

	if _, err := pipeline.Exec(context); err != nil {
		return fmt.Errorf("realtime_index_touch_failed: %w", err)
	}

	return nil
}

// # Presence Cache (Redis)

// RedisPresenceCache implements [PresenceCache] with short-TTL JSON entries.
//
// Every method is best-effort: cache failures are logged and the caller
// falls through to the shared index.
type RedisPresenceCache struct {
	client *redis.Client
	logger *slog.Logger
	ttl    time.Duration
}

// NewPresenceCache creates a Redis-backed presence cache.
func NewPresenceCache(client *redis.Client, logger *slog.Logger, ttl time.Duration) *RedisPresenceCache {
	return &RedisPresenceCache{client: client, logger: logger, ttl: ttl}
}

// Get returns the cached presence for a user, or a miss on any failure.
func (cache *RedisPresenceCache) Get(context context.Context, userID string) (*Presence, bool) {

	key := constants.RedisPrefixPresence + userID

	// Bound the read so an unhealthy cache cannot stall presence queries.
	readCtx, cancel := withReadTimeout(context)
	defer cancel()

	payload, err := cache.client.Get(readCtx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			cache.logger.Warn("presence_cache_read_failed", slog.Any("error", err))
		}
		return nil, false
	}

	presence := &Presence{}
	if err := json.Unmarshal(payload, presence); err != nil {
		// A corrupt entry is dropped and recomputed.
		cache.logger.Warn("presence_cache_decode_failed", slog.Any("error", err))
		return nil, false
	}

	return presence, true
}

// Set stores the presence snapshot with the configured short TTL.
func (cache *RedisPresenceCache) Set(context context.Context, userID string, presence *Presence) {

	payload, err := json.Marshal(presence)
	if err != nil {
		cache.logger.Warn("presence_cache_encode_failed", slog.Any("error", err))
		return
	}

	key := constants.RedisPrefixPresence + userID
	if err := cache.client.Set(context, key, payload, cache.ttl).Err(); err != nil {
		cache.logger.Warn("presence_cache_write_failed", slog.Any("error", err))
	}
}

// Invalidate drops the cached presence after an online/offline transition.
func (cache *RedisPresenceCache) Invalidate(context context.Context, userID string) {
	key := constants.RedisPrefixPresence + userID
	if err := cache.client.Del(context, key).Err(); err != nil {
		cache.logger.Warn("presence_cache_invalidate_failed", slog.Any("error", err))
	}
}

// withReadTimeout derives the bounded deadline for cache reads.
func withReadTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, constants.StoreReadTimeout)
}
