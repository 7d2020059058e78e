package workflow

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitedExecutor throttles calls to the wrapped executor with a token
// bucket. Useful when a branch fronts a quota-bound backend.
type RateLimitedExecutor struct {
	inner   Executor
	limiter *rate.Limiter
}

// NewRateLimitedExecutor wraps exec with a limiter allowing rps requests
// per second with the given burst.
func NewRateLimitedExecutor(exec Executor, rps float64, burst int) *RateLimitedExecutor {
	return &RateLimitedExecutor{
		inner:   exec,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Execute waits for a token, then runs the wrapped executor.
func (e *RateLimitedExecutor) Execute(ctx context.Context, input any) (any, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed for %s: %w", e.inner.Name(), err)
	}
	return e.inner.Execute(ctx, input)
}

func (e *RateLimitedExecutor) Name() string {
	return e.inner.Name()
}

// Limiter exposes the underlying limiter for inspection.
func (e *RateLimitedExecutor) Limiter() *rate.Limiter {
	return e.limiter
}
