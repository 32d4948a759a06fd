package cache

import (
	"context"
	"errors"
	"time"

	"github.com/davidleathers/barangay-insights/internal/domain/insight"
)

// InsightCache keeps validated analysis results so identical prompts are
// not sent to the model twice within the TTL.
type InsightCache struct {
	cache Cache
}

func NewInsightCache(c Cache) *InsightCache {
	return &InsightCache{cache: c}
}

// Get returns nil without error on a miss. A stored value that no longer
// validates is treated as a miss.
func (c *InsightCache) Get(ctx context.Context, key string) (*insight.Result, error) {
	var r insight.Result
	if err := c.cache.GetJSON(ctx, key, &r); err != nil {
		var notFound ErrCacheKeyNotFound
		if errors.As(err, &notFound) {
			return nil, nil
		}
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, nil
	}
	return &r, nil
}

func (c *InsightCache) Set(ctx context.Context, key string, r *insight.Result, ttl time.Duration) error {
	return c.cache.SetJSON(ctx, key, r, ttl)
}
