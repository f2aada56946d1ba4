// Package abuse derives a trust-adjusted caller identity from request
// metadata and classifies abuse signals. Nothing here blocks a request on
// its own; callers decide what to do with the verdicts.
package abuse

import (
	"net"
	"net/http"
	"strings"
)

// fallbackIdentity is used when no syntactically valid peer address can be
// determined at all.
const fallbackIdentity = "127.0.0.1"

// ResolveClientIP returns the abuse-tracking identity for a request.
//
// With trustedProxyCount == 0 every forwarding header is ignored and only the
// transport-layer peer address counts, so header injection cannot forge an
// identity. With trustedProxyCount > 0 exactly that many hops are skipped
// from the right of X-Forwarded-For, falling back to X-Real-IP and finally
// the peer address. The result is always a valid IP literal.
func ResolveClientIP(r *http.Request, trustedProxyCount int) string {
	if trustedProxyCount > 0 {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if ip := pickClientIPFromXFF(xff, trustedProxyCount); ip != "" {
				return ip
			}
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			if ip := normalizeIPCandidate(xri); isValidIP(ip) {
				return ip
			}
		}
	}
	if host := normalizeIPCandidate(r.RemoteAddr); isValidIP(host) {
		return host
	}
	return fallbackIdentity
}

func pickClientIPFromXFF(xff string, trustedProxyCount int) string {
	raw := strings.Split(xff, ",")
	ips := make([]string, 0, len(raw))
	for _, part := range raw {
		if v := normalizeIPCandidate(part); v != "" {
			ips = append(ips, v)
		}
	}
	if len(ips) == 0 {
		return ""
	}
	idx := len(ips) - trustedProxyCount - 1
	if idx < 0 {
		idx = 0
	}
	if isValidIP(ips[idx]) {
		return ips[idx]
	}
	return ""
}

// normalizeIPCandidate strips whitespace, quotes, brackets and port suffixes
// from a header token, returning the bare address candidate.
func normalizeIPCandidate(raw string) string {
	v := strings.Trim(strings.TrimSpace(raw), `"`)
	if v == "" {
		return ""
	}
	if strings.HasPrefix(v, "[") {
		if host, _, err := net.SplitHostPort(v); err == nil {
			return strings.TrimSpace(host)
		}
		return strings.TrimSpace(strings.Trim(v, "[]"))
	}
	// host:port, but not a bare IPv6 literal
	if strings.Count(v, ":") == 1 {
		if host, _, err := net.SplitHostPort(v); err == nil {
			return strings.TrimSpace(host)
		}
	}
	return v
}

func isValidIP(v string) bool {
	return v != "" && net.ParseIP(v) != nil
}
