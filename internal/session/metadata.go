// Copyright (c) 2026 Confira. All rights reserved.
// Author: dev@confira.app

package session

import (
	"net"
	"strings"
)

// # Derived Metadata

// DeviceFromUserAgent derives a coarse device label from a User-Agent string.
//
// The label feeds the per-user device breakdown in [Stats]; it is a grouping
// key, not a full UA parse.
func DeviceFromUserAgent(userAgent string) string {
	ua := strings.ToLower(userAgent)

	switch {
	case ua == "":
		return "unknown"
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		return "tablet"
	case strings.Contains(ua, "iphone") || strings.Contains(ua, "android") || strings.Contains(ua, "mobile"):
		return "mobile"
	case strings.Contains(ua, "electron"):
		return "desktop_app"
	case strings.Contains(ua, "mozilla") || strings.Contains(ua, "chrome") || strings.Contains(ua, "safari"):
		return "browser"
	default:
		return "api_client"
	}
}

// LocationFromIP derives a coarse location label from an IP address.
//
// Without an external geo database the label distinguishes internal traffic
// from public networks; a geo provider can replace this without touching the
// registry (the column already carries whatever this returns).
func LocationFromIP(ipAddress string) string {
	host := ipAddress
	if h, _, err := net.SplitHostPort(ipAddress); err == nil {
		host = h
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return "unknown"
	}

	if ip.IsLoopback() || ip.IsPrivate() {
		return "internal"
	}

	return "external:" + networkPrefix(ip)
}

// networkPrefix returns a /16-style grouping key for public addresses.
func networkPrefix(ip net.IP) string {
	if v4 := ip.To4(); v4 != nil {
		parts := strings.Split(v4.String(), ".")
		return parts[0] + "." + parts[1]
	}
	// IPv6: group by the first two hextets.
	segments := strings.Split(ip.String(), ":")
	if len(segments) >= 2 {
		return segments[0] + ":" + segments[1]
	}
	return ip.String()
}
