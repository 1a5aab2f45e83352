// Package limiter defines interfaces and implementations for login rate limiting.
package limiter

import (
	"context"
	"crypto/sha256"
	"time"
)

// Limiter controls login attempts and temporary lockouts per
// (username, ip hash) pair.
type Limiter interface {
	// Allow reports whether login is currently allowed and optional retry-after.
	Allow(ctx context.Context, username string, ipHash []byte) (bool, time.Duration, error)
	// Success resets counters after a successful login.
	Success(ctx context.Context, username string, ipHash []byte) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, username string, ipHash []byte) (bool, time.Duration, error)
}

// HashIP returns a salted hash for an IP string so raw client
// addresses never reach storage or logs. The salt is per-deployment
// configuration.
func HashIP(salt, ip string) []byte {
	h := sha256.Sum256([]byte(ip + salt))
	return h[:]
}
