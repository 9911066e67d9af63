// Copyright (c) 2026 Confira. All rights reserved.
// Author: dev@confira.app

package sec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/confira/confira/internal/platform/sec"
)

/*
TestPasswordHashing verifies the bcrypt hash and check pair.
*/
func TestPasswordHashing(t *testing.T) {
	hash, err := sec.HashPassword("correct horse battery staple")
	require.NoError(t, err)
	require.NotEmpty(t, hash)
	assert.NotEqual(t, "correct horse battery staple", hash)

	assert.True(t, sec.CheckPasswordHash("correct horse battery staple", hash))
	assert.False(t, sec.CheckPasswordHash("wrong password", hash))
	assert.False(t, sec.CheckPasswordHash("", hash))
}

/*
TestGenerateSecureToken checks randomness and URL-safe encoding.
*/
func TestGenerateSecureToken(t *testing.T) {
	first, err := sec.GenerateSecureToken(32)
	require.NoError(t, err)

	second, err := sec.GenerateSecureToken(32)
	require.NoError(t, err)

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
	assert.NotContains(t, first, "+")
	assert.NotContains(t, first, "/")
	assert.NotContains(t, first, "=")
}

/*
TestHashToken is deterministic and never echoes its input.
*/
func TestHashToken(t *testing.T) {
	hash := sec.HashToken("refresh-token-value")

	assert.Equal(t, hash, sec.HashToken("refresh-token-value"))
	assert.NotEqual(t, hash, sec.HashToken("other-token"))
	assert.Len(t, hash, 64)
	assert.NotContains(t, hash, "refresh-token-value")
}
