// Package throttle implements the two request-guard state machines: the login
// brute-force throttle and the API rate limiter. Both key their counters by
// hashed client fingerprints and keep all state in a TTL key-value store.
package throttle

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
)

// maxUserAgentLen caps the user agent before hashing so oversized headers
// cannot blow up fingerprint input.
const maxUserAgentLen = 100

// LoginFingerprint derives the throttle key for interactive login attempts
// from the client IP and a truncated hash of the user agent. Neither the raw
// IP nor the raw user agent is ever used as a cache key.
func LoginFingerprint(ip, userAgent string) string {
	if len(userAgent) > maxUserAgentLen {
		userAgent = userAgent[:maxUserAgentLen]
	}
	uaHash := md5.Sum([]byte(userAgent))
	identifier := fmt.Sprintf("%s:%s", ip, hex.EncodeToString(uaHash[:])[:10])
	sum := sha256.Sum256([]byte(identifier))
	return hex.EncodeToString(sum[:])
}

// APIFingerprint derives the rate-limit key for API requests from the client
// IP, user agent, and authenticated user ID ("anon" when unauthenticated).
func APIFingerprint(ip, userAgent, userID string) string {
	if userID == "" {
		userID = "anon"
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s", ip, userAgent, userID)))
	return hex.EncodeToString(sum[:])
}

// ClientIP extracts the originating client address, preferring the first
// entry of X-Forwarded-For when a proxy is in front of the server.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	if host == "" {
		host = "127.0.0.1"
	}
	return host
}
