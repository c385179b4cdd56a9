package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// rateLimited wraps a Client with a shared token-bucket limiter so bursts of
// concurrent criteria batches cannot exceed the provider's request budget.
type rateLimited struct {
	base    Client
	limiter *rate.Limiter
}

// NewRateLimited caps calls to the base client at requestsPerMinute. A zero
// or negative rate returns the base client unchanged.
func NewRateLimited(base Client, requestsPerMinute int) Client {
	if base == nil || requestsPerMinute <= 0 {
		return base
	}
	perSecond := rate.Limit(float64(requestsPerMinute) / 60.0)
	return &rateLimited{
		base:    base,
		limiter: rate.NewLimiter(perSecond, requestsPerMinute),
	}
}

func (r *rateLimited) Complete(ctx context.Context, req Request) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.base.Complete(ctx, req)
}
