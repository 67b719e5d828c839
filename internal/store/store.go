// Package store provides the key-value persistence shared by quota counters,
// templates and analytics.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("key not found")

// KV is a string-keyed byte store with optional per-key expiry.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Put stores value under key. A ttl of zero keeps the key until deleted.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// List returns every live key starting with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}
