// Package cache holds short-lived derived values: the system-config snapshot and pending counts.
package cache

import (
	"context"
	"time"
)

// Cache stores string values with a TTL. A miss is reported as ok == false, never as an error.
type Cache interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}
