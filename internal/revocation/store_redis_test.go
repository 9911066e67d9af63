// Copyright (c) 2026 Confira. All rights reserved.
// Author: dev@confira.app

package revocation_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/confira/confira/internal/revocation"
)

// unreachableClient returns a client pointed at a closed port so every
// command fails fast with a connection error.
func unreachableClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
}

/*
TestRedisStore_Blacklist_ExpiredTokenIsNoop never touches the store for
tokens that have already expired naturally.
*/
func TestRedisStore_Blacklist_ExpiredTokenIsNoop(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := revocation.NewRedisStore(unreachableClient(), logger, false)

	assert.NoError(t, store.Blacklist(context.Background(), "token", 0))
	assert.NoError(t, store.Blacklist(context.Background(), "token", -time.Minute))
}

/*
TestRedisStore_FailurePolicy pins the behavior of the REVOCATION_FAIL_CLOSED
switch when the store is unreachable: fail-open admits the token, fail-closed
rejects it.
*/
func TestRedisStore_FailurePolicy(t *testing.T) {
	tests := []struct {
		name          string
		failClosed    bool
		isBlacklisted bool
	}{
		{"fail_open_admits", false, false},
		{"fail_closed_rejects", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			store := revocation.NewRedisStore(unreachableClient(), logger, tt.failClosed)

			assert.Equal(t, tt.isBlacklisted, store.IsBlacklisted(context.Background(), "token"))
		})
	}
}
