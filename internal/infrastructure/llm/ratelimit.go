package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/davidleathers/barangay-insights/internal/domain/errors"
)

// RateLimited spaces calls to the wrapped model. Waiting respects ctx, so
// a cancelled analysis never reaches the provider.
type RateLimited struct {
	next    Model
	limiter *rate.Limiter
}

func NewRateLimited(next Model, perMinute int) *RateLimited {
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

func (r *RateLimited) Name() string { return r.next.Name() }

func (r *RateLimited) Generate(ctx context.Context, req Request) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", apperrors.NewRateLimitError("model request budget exhausted").WithCause(err)
	}
	return r.next.Generate(ctx, req)
}
