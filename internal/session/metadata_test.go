// Copyright (c) 2026 Confira. All rights reserved.
// Author: dev@confira.app

package session_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/confira/confira/internal/session"
)

/*
TestDeviceFromUserAgent groups user agents into coarse device labels.
*/
func TestDeviceFromUserAgent(t *testing.T) {
	tests := []struct {
		name      string
		userAgent string
		device    string
	}{
		{"empty", "", "unknown"},
		{"ipad", "Mozilla/5.0 (iPad; CPU OS 17_0)", "tablet"},
		{"iphone", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0) Mobile/15E148", "mobile"},
		{"android", "Mozilla/5.0 (Linux; Android 14) Mobile Safari", "mobile"},
		{"electron", "confira-desktop/2.1 Electron/28.0", "desktop_app"},
		{"chrome_desktop", "Mozilla/5.0 (Macintosh) Chrome/120 Safari/537", "browser"},
		{"curl", "curl/8.4.0", "api_client"},
		{"go_client", "Go-http-client/2.0", "api_client"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.device, session.DeviceFromUserAgent(tt.userAgent))
		})
	}
}

/*
TestLocationFromIP distinguishes internal traffic and groups public networks.
*/
func TestLocationFromIP(t *testing.T) {
	tests := []struct {
		name     string
		ip       string
		location string
	}{
		{"loopback", "127.0.0.1", "internal"},
		{"private_10", "10.1.2.3", "internal"},
		{"private_192", "192.168.0.20", "internal"},
		{"public_v4", "203.0.113.10", "external:203.0"},
		{"public_v4_with_port", "203.0.113.10:54321", "external:203.0"},
		{"garbage", "not-an-ip", "unknown"},
		{"empty", "", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.location, session.LocationFromIP(tt.ip))
		})
	}
}
