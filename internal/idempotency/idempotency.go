package idempotency

import (
	"context"
	"time"
)

// Store keeps short-lived keys for request idempotency, event dedup and
// small read caches.
type Store interface {
	// Claim sets key only if it is absent. It reports whether this caller
	// now owns the key.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

// Pending is the value held by a claimed key until its result is stored.
const Pending = "pending"
