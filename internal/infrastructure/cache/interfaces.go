package cache

import (
	"context"
	"fmt"
	"time"
)

// Key prefixes
const (
	KeyPrefix       = "insights:"
	RateLimitPrefix = KeyPrefix + "quota:"
)

// Cache stores JSON values with TTLs.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// RateLimiter counts events per key over a sliding window.
type RateLimiter interface {
	// Allow records one event for key and reports whether it fits in limit
	// within window.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)

	// Remaining returns how many events key may still record in window.
	Remaining(ctx context.Context, key string, limit int, window time.Duration) (int, error)
}

// ErrCacheKeyNotFound is returned by GetJSON for a missing key.
type ErrCacheKeyNotFound struct {
	Key string
}

func (e ErrCacheKeyNotFound) Error() string {
	return fmt.Sprintf("cache key not found: %s", e.Key)
}
