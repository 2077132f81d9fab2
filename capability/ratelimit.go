package capability

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedLLM wraps an LLM capability with a client-side token bucket
// so concurrent parallel branches cannot exceed the provider's request
// budget. Waiting respects context cancellation, so a cancelled run
// releases queued invocations immediately.
type RateLimitedLLM struct {
	inner   LLM
	limiter *rate.Limiter
}

// NewRateLimitedLLM wraps inner at rps requests per second with the given
// burst.
func NewRateLimitedLLM(inner LLM, rps float64, burst int) *RateLimitedLLM {
	return &RateLimitedLLM{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Invoke implements LLM.
func (l *RateLimitedLLM) Invoke(ctx context.Context, req *Request) (*Response, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.inner.Invoke(ctx, req)
}

// Name implements LLM.
func (l *RateLimitedLLM) Name() string {
	return l.inner.Name()
}
