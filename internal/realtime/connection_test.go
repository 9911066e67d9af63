// Copyright (c) 2026 Confira. All rights reserved.
// Author: dev@confira.app

package realtime_test

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/confira/confira/internal/realtime"
)

/*
TestHandshake_BearerToken covers the credential precedence order: auth
payload first, then Authorization header, then query parameter. A malformed
Authorization header invalidates the header channel without falling through
to the query parameter.
*/
func TestHandshake_BearerToken(t *testing.T) {
	tests := []struct {
		name      string
		handshake realtime.Handshake
		token     string
	}{
		{
			name:      "no_credentials",
			handshake: realtime.Handshake{},
			token:     "",
		},
		{
			name:      "query_only",
			handshake: realtime.Handshake{QueryToken: "query-token"},
			token:     "query-token",
		},
		{
			name: "header_beats_query",
			handshake: realtime.Handshake{
				AuthorizationHeader: "Bearer header-token",
				QueryToken:          "query-token",
			},
			token: "header-token",
		},
		{
			name: "payload_beats_everything",
			handshake: realtime.Handshake{
				AuthPayloadToken:    "payload-token",
				AuthorizationHeader: "Bearer header-token",
				QueryToken:          "query-token",
			},
			token: "payload-token",
		},
		{
			name: "lowercase_bearer_scheme",
			handshake: realtime.Handshake{
				AuthorizationHeader: "bearer header-token",
			},
			token: "header-token",
		},
		{
			name: "malformed_header_does_not_fall_through",
			handshake: realtime.Handshake{
				AuthorizationHeader: "Basic dXNlcjpwYXNz",
				QueryToken:          "query-token",
			},
			token: "",
		},
		{
			name: "header_missing_token_part",
			handshake: realtime.Handshake{
				AuthorizationHeader: "Bearer",
			},
			token: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.token, tt.handshake.BearerToken())
		})
	}
}

/*
TestHandshakeFromRequest captures the upgrade-time candidates and the
proxy-aware client address.
*/
func TestHandshakeFromRequest(t *testing.T) {
	request := httptest.NewRequest("GET", "/api/v1/realtime?token=query-token", nil)
	request.Header.Set("Authorization", "Bearer header-token")
	request.Header.Set("User-Agent", "confira-desktop/2.1 Electron/28.0")
	request.Header.Set("X-Real-IP", "203.0.113.10")
	request.RemoteAddr = "10.0.0.5:49152"

	handshake := realtime.HandshakeFromRequest(request)

	assert.Empty(t, handshake.AuthPayloadToken)
	assert.Equal(t, "Bearer header-token", handshake.AuthorizationHeader)
	assert.Equal(t, "query-token", handshake.QueryToken)
	assert.Equal(t, "203.0.113.10", handshake.IPAddress)
	assert.Equal(t, "confira-desktop/2.1 Electron/28.0", handshake.UserAgent)
}
