package unifiedllm

import (
	"context"
	"math/rand"
	"time"
)

// RetryPolicy decides how often and how long to wait before resending a
// failed completion.
type RetryPolicy struct {
	MaxRetries int           // retries after the first call
	BaseDelay  time.Duration // wait before the first retry
	MaxDelay   time.Duration // cap on any single wait, including Retry-After
	Multiplier float64       // growth of the wait per retry; <= 1 keeps it flat
	Jitter     bool          // scale each wait by a random factor in [0.5, 1.5)

	// OnRetry is called before each wait.
	OnRetry func(err error, attempt int, delay time.Duration)
}

// DefaultRetryPolicy retries twice, waiting about one and then two seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		BaseDelay:  time.Second,
		MaxDelay:   time.Minute,
		Multiplier: 2,
		Jitter:     true,
	}
}

// Delay returns the backoff before retry number attempt, counting from 0.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt && p.Multiplier > 1 && (p.MaxDelay <= 0 || d < p.MaxDelay); i++ {
		d = time.Duration(float64(d) * p.Multiplier)
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter {
		d = time.Duration(float64(d) * (0.5 + rand.Float64()))
	}
	return d
}

// wait returns how long to sleep before retrying err, or false when err is
// final: not retryable, or asking for a Retry-After beyond MaxDelay.
func (p RetryPolicy) wait(err error, attempt int) (time.Duration, bool) {
	if !IsRetryable(err) {
		return 0, false
	}
	if after := retryAfter(err); after != nil {
		d := time.Duration(*after * float64(time.Second))
		if p.MaxDelay > 0 && d > p.MaxDelay {
			return 0, false
		}
		return d, true
	}
	return p.Delay(attempt), true
}

// Retry calls fn until it succeeds, fails with a final error, or the
// policy runs out of retries. The last error is returned unchanged.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	for attempt := 0; ; attempt++ {
		result, err := fn(ctx)
		if err == nil || attempt >= policy.MaxRetries {
			return result, err
		}
		delay, ok := policy.wait(err, attempt)
		if !ok {
			return result, err
		}
		if policy.OnRetry != nil {
			policy.OnRetry(err, attempt+1, delay)
		}
		if err := sleep(ctx, delay); err != nil {
			var zero T
			return zero, &AbortError{SDKError: SDKError{Message: "request cancelled during retry", Cause: err}}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryMiddleware resends requests that fail with a retryable error. It
// belongs innermost so cache hits and logs see one logical call.
func RetryMiddleware(policy RetryPolicy) Middleware {
	return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		return Retry(ctx, policy, func(ctx context.Context) (*Response, error) {
			return next(ctx, req)
		})
	}
}
