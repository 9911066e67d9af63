// Copyright (c) 2026 Confira. All rights reserved.
// Author: dev@confira.app

// Package sec provides cryptographic primitives and token management.
//
// # Architecture
//
// This package isolates security-sensitive code (Hashing, JWT Signing) from
// the domain logic. It acts as an Infrastructure service injected into the
// Application layer via small interfaces ([auth.TokenProvider]).
package sec

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is the single verification failure returned to callers.
//
// # Why one error?
//
// Expired, malformed, and badly-signed tokens are deliberately indistinguishable
// outside this package. Callers inside the trust boundary log the cause; callers
// outside it must never learn which check failed (oracle hardening).
var ErrInvalidToken = errors.New("sec: invalid token")

// AuthClaims represents the payload embedded inside a JWT Access Token.
//
// # Why custom claims?
//
// By embedding the UserID, OrganizationID, and Role directly inside the JWT,
// the middleware can reconstruct the active user context WITHOUT querying the
// database on every single API request. This provides massive read-scalability.
type AuthClaims struct {
	jwt.RegisteredClaims

	// Custom application claims are abbreviated to keep the JWT payload small.
	UserID         string `json:"uid"`
	OrganizationID string `json:"org"`
	Role           string `json:"rol"`
	SessionID      string `json:"sid"`
}

// TokenService handles generation and verification of JWT tokens using HS256
// with a shared signing secret.
type TokenService struct {
	secret []byte
	issuer string
}

// NewTokenService creates a new TokenService from the shared signing secret.
func NewTokenService(secret, issuer string) (*TokenService, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("sec: signing secret must be at least 32 bytes, got %d", len(secret))
	}

	return &TokenService{
		secret: []byte(secret),
		issuer: issuer,
	}, nil
}

// GenerateAccessToken creates a new signed JWT access token for a user.
func (service *TokenService) GenerateAccessToken(userID, organizationID, role, sessionID string, timeToLive time.Duration) (string, error) {
	currentTime := time.Now()
	claims := AuthClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    service.issuer,
			IssuedAt:  jwt.NewNumericDate(currentTime),
			ExpiresAt: jwt.NewNumericDate(currentTime.Add(timeToLive)),
		},
		UserID:         userID,
		OrganizationID: organizationID,
		Role:           role,
		SessionID:      sessionID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(service.secret)
	if err != nil {
		return "", fmt.Errorf("sec: failed to sign token: %w", err)
	}

	return signedToken, nil
}

// VerifyToken checks the signature and validity of a JWT string.
//
// It is a pure function over the shared secret: no store lookups happen here.
// Revocation is a separate, stateful check owned by the callers.
func (service *TokenService) VerifyToken(tokenString string) (*AuthClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AuthClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("sec: unexpected signing method: %v", token.Header["alg"])
		}
		return service.secret, nil
	})

	// Collapse every failure mode into the generic error.
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*AuthClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
