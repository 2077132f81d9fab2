package engine

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy bounds retries of one node invocation: transient provider
// failures back off exponentially with jitter, output validation failures
// retry immediately with an amended prompt. MaxAttempts counts the first
// try.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// DefaultRetryPolicy suits most LLM provider behavior.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// normalized clamps out-of-range values to safe defaults.
func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 1 * time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = 2.0
	}
	return p
}

// delay computes the backoff before the given retry (attempt starts at 1
// for the first retry), capped at MaxDelay, with optional ±25% jitter.
func (p RetryPolicy) delay(attempt int) time.Duration {
	d := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter {
		d *= 1 + (rand.Float64()-0.5)*0.5
	}
	return time.Duration(d)
}

// wait sleeps the backoff for the given retry, honoring cancellation.
func (p RetryPolicy) wait(ctx context.Context, attempt int) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry cancelled: %w", ctx.Err())
	case <-time.After(p.delay(attempt)):
		return nil
	}
}
