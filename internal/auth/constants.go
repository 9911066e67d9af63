// Copyright (c) 2026 Confira. All rights reserved.
// Author: dev@confira.app

package auth

// # Authentication Constraints

const (
	// RefreshTokenLength is the byte length of the random refresh token.
	RefreshTokenLength = 32
)
