// Copyright (c) 2026 Confira. All rights reserved.
// Author: dev@confira.app

package auth

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/confira/confira/internal/platform/constants"
)

// RedisVolatileCleaner implements [VolatileCleaner] against Redis.
//
// It clears the per-user rate-limit buckets and cached profile data that
// would otherwise linger after a logout.
type RedisVolatileCleaner struct {
	client *redis.Client
}

// NewVolatileCleaner creates a new Redis-backed VolatileCleaner.
func NewVolatileCleaner(client *redis.Client) *RedisVolatileCleaner {
	return &RedisVolatileCleaner{client: client}
}

/*
ClearUserKeys deletes the volatile per-user keys after logout.

Description: Non-critical by contract — the caller logs failures and never
blocks logout on them. The keys all carry TTLs, so a missed delete only
delays reclamation.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - error: Deletion failures (for logging only)
*/
func (cleaner *RedisVolatileCleaner) ClearUserKeys(context context.Context, userID string) error {
	keys := []string{
		constants.RedisPrefixUserCache + userID,
		constants.RedisPrefixRateLimit + userID,
	}

	if err := cleaner.client.Del(context, keys...).Err(); err != nil {
		return fmt.Errorf("redis_volatile_cleanup_failed: %w", err)
	}

	return nil
}
