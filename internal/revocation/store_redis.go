// Copyright (c) 2026 Confira. All rights reserved.
// Author: dev@confira.app

package revocation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/confira/confira/internal/platform/constants"
	"github.com/confira/confira/internal/platform/sec"
)

// RedisStore implements [Store] using Redis SET-with-TTL entries.
//
// Keys are scoped as blacklist:<sha256(token)> so raw tokens never land in
// the cache, and expire together with the token they revoke.
type RedisStore struct {
	client     *redis.Client
	logger     *slog.Logger
	failClosed bool
}

// NewRedisStore creates a Redis-backed revocation store.
//
// failClosed selects the read-failure policy: false (default) treats store
// errors as "not blacklisted" with a WARN log, true denies the token.
func NewRedisStore(client *redis.Client, logger *slog.Logger, failClosed bool) *RedisStore {
	return &RedisStore{
		client:     client,
		logger:     logger,
		failClosed: failClosed,
	}
}

/*
Blacklist records a revoked token until its natural expiry.

Parameters:
  - context: context.Context
  - token: string
  - ttl: time.Duration

Returns:
  - error: Persistence failures
*/
func (store *RedisStore) Blacklist(context context.Context, token string, ttl time.Duration) error {

	// Nothing to do for tokens that have already expired naturally.
	if ttl <= 0 {
		return nil
	}

	key := constants.RedisPrefixBlacklist + sec.HashToken(token)

	// Plain SET is idempotent; re-blacklisting refreshes the TTL which can
	// only shorten the window, never extend it past natural expiry.
	if err := store.client.Set(context, key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("revocation_blacklist_failed: %w", err)
	}

	return nil
}

/*
IsBlacklisted reports whether a token has been revoked.

Description: Store errors apply the configured fail policy and are always
logged, never silently swallowed.

Parameters:
  - context: context.Context
  - token: string

Returns:
  - bool: true if the token must be rejected
*/
func (store *RedisStore) IsBlacklisted(context context.Context, token string) bool {

	key := constants.RedisPrefixBlacklist + sec.HashToken(token)

	// Bound the read so an unhealthy cache cannot stall authentication.
	readCtx, cancel := withReadTimeout(context)
	defer cancel()

	err := store.client.Get(readCtx, key).Err()

	// Fast path: no entry means the token was never revoked.
	if errors.Is(err, redis.Nil) {
		return false
	}

	if err != nil {
		store.logger.Warn("revocation_check_failed",
			slog.Any("error", err),
			slog.Bool("fail_closed", store.failClosed),
		)
		return store.failClosed
	}

	return true
}

// withReadTimeout derives a sub-second deadline for blacklist reads.
func withReadTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, constants.StoreReadTimeout)
}
