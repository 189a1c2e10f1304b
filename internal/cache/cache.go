// Package cache provides the key-value store backing refresh sessions,
// one-time tokens, and rate-limit counters. Implementations offer plain
// read and write with per-key TTLs; callers must not assume atomic
// read-modify-write across instances.
package cache

import (
	"context"
	"time"
)

// Store is a key-value store with per-key expiry.
type Store interface {
	// Get returns the value for key. The second return is false when the
	// key is absent or expired; that is not an error.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set writes value under key. A ttl of zero or less means no expiry.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
