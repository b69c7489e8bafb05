package unifiedllm

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

// RetryPolicy controls how failed requests are retried. Delays grow
// exponentially from BaseDelay, never exceeding MaxDelay.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	// Jitter scales each delay by a random factor in [0.5, 1.5).
	Jitter  bool
	OnRetry func(err error, attempt int, delay time.Duration)
}

// DefaultRetryPolicy retries twice, starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		BaseDelay:  time.Second,
		MaxDelay:   time.Minute,
		Multiplier: 2,
		Jitter:     true,
	}
}

// Delay returns how long to wait before retry attempt n, counting from 0.
func (p RetryPolicy) Delay(n int) time.Duration {
	delay := float64(p.BaseDelay)
	for i := 0; i < n && delay < float64(p.MaxDelay); i++ {
		delay *= p.Multiplier
	}
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if p.Jitter {
		delay *= 0.5 + rand.Float64()
	}
	return time.Duration(delay)
}

// Retry calls fn until it succeeds, fails with a non-retryable error or the
// policy runs out of retries. A provider's Retry-After is honoured unless it
// exceeds MaxDelay, in which case the error is returned at once.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	result, err := fn(ctx)
	for attempt := 0; err != nil && attempt < policy.MaxRetries; attempt++ {
		if !IsRetryable(err) {
			return result, err
		}

		delay := policy.Delay(attempt)
		var e *Error
		if errors.As(err, &e) && e.RetryAfter > 0 {
			if e.RetryAfter > policy.MaxDelay {
				return result, err
			}
			delay = e.RetryAfter
		}
		if policy.OnRetry != nil {
			policy.OnRetry(err, attempt+1, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			var zero T
			return zero, newError(KindAborted, "", "request cancelled during retry", ctx.Err())
		case <-timer.C:
		}

		result, err = fn(ctx)
	}
	return result, err
}

// RetryMiddleware retries provider calls according to policy, logging each
// retry at warn level.
func RetryMiddleware(policy RetryPolicy) Middleware {
	onRetry := policy.OnRetry
	policy.OnRetry = func(err error, attempt int, delay time.Duration) {
		log.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("retrying LLM request")
		if onRetry != nil {
			onRetry(err, attempt, delay)
		}
	}
	return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		return Retry(ctx, policy, func(ctx context.Context) (*Response, error) {
			return next(ctx, req)
		})
	}
}
