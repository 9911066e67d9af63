// Copyright (c) 2026 Confira. All rights reserved.
// Author: dev@confira.app

package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/confira/confira/internal/platform/constants"
)

// statsCacheTTL keeps the aggregation fresh enough for dashboards while
// absorbing the read amplification of frequent polling.
const statsCacheTTL = 45 * time.Second

// RedisStatsCache implements StatsCache using Redis.
//
// Every method is best-effort: cache failures are logged and the caller
// falls through to the durable aggregation.
type RedisStatsCache struct {
	client *redis.Client
	logger *slog.Logger
}

// NewStatsCache creates a new Redis-backed StatsCache.
func NewStatsCache(client *redis.Client, logger *slog.Logger) *RedisStatsCache {
	return &RedisStatsCache{client: client, logger: logger}
}

/*
Get returns the cached stats for a user, or nil on miss or error.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - *Stats: Cached value, nil on miss
*/
func (cache *RedisStatsCache) Get(context context.Context, userID string) *Stats {

	key := constants.RedisPrefixSessionStats + userID

	payload, err := cache.client.Get(context, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			cache.logger.Warn("session_stats_cache_read_failed", slog.Any("error", err))
		}
		return nil
	}

	stats := &Stats{}
	if err := json.Unmarshal(payload, stats); err != nil {
		// A corrupt entry is dropped and recomputed.
		cache.logger.Warn("session_stats_cache_decode_failed", slog.Any("error", err))
		return nil
	}

	return stats
}

/*
Set stores the stats for a user with the standard cache TTL.

Parameters:
  - context: context.Context
  - userID: string
  - stats: *Stats
*/
func (cache *RedisStatsCache) Set(context context.Context, userID string, stats *Stats) {

	payload, err := json.Marshal(stats)
	if err != nil {
		cache.logger.Warn("session_stats_cache_encode_failed", slog.Any("error", err))
		return
	}

	key := constants.RedisPrefixSessionStats + userID
	if err := cache.client.Set(context, key, payload, statsCacheTTL).Err(); err != nil {
		cache.logger.Warn("session_stats_cache_write_failed", slog.Any("error", err))
	}
}

/*
Invalidate drops the cached stats for a user after a mutating event.

Parameters:
  - context: context.Context
  - userID: string
*/
func (cache *RedisStatsCache) Invalidate(context context.Context, userID string) {
	key := constants.RedisPrefixSessionStats + userID
	if err := cache.client.Del(context, key).Err(); err != nil {
		cache.logger.Warn("session_stats_cache_invalidate_failed", slog.Any("error", err))
	}
}
