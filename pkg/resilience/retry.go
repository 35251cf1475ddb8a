package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy retries failed calls, doubling the delay up to MaxBackoff.
// Rate limit and context errors are not retried unless Retryable says so.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
	// MaxBackoff caps the growing delay; zero keeps the delay fixed.
	MaxBackoff time.Duration
	// Jitter adds up to this fraction of each delay at random.
	Jitter    float64
	Retryable func(error) bool
	// Sleep replaces the timer; tests use it to skip waiting.
	Sleep func(time.Duration)
}

func NewRetryPolicy(maxRetries int, backoff time.Duration) RetryPolicy {
	if maxRetries <= 0 {
		maxRetries = 2
	}
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	return RetryPolicy{MaxRetries: maxRetries, Backoff: backoff}
}

// Retryable is the default classification.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !IsRateLimit(err)
}

func (r RetryPolicy) delay(attempt int) time.Duration {
	d := r.Backoff
	if r.MaxBackoff > r.Backoff {
		d = time.Duration(float64(r.Backoff) * math.Pow(2, float64(attempt)))
		if d > r.MaxBackoff {
			d = r.MaxBackoff
		}
	}
	if r.Jitter > 0 {
		d += time.Duration(float64(d) * r.Jitter * rand.Float64())
	}
	return d
}

// Do runs fn until it succeeds, fails for good, the retries are spent or
// ctx ends. The last error from fn is returned.
func (r RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	retryable := r.Retryable
	if retryable == nil {
		retryable = Retryable
	}
	var err error
	for i := 0; i <= r.MaxRetries; i++ {
		if ctx.Err() != nil {
			if err == nil {
				err = ctx.Err()
			}
			return err
		}
		err = fn(ctx)
		if err == nil || !retryable(err) || i == r.MaxRetries {
			return err
		}
		d := r.delay(i)
		if r.Sleep != nil {
			r.Sleep(d)
			continue
		}
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}
