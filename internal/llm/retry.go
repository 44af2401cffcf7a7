package llm

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy retries transient failures with exponential backoff.
type RetryPolicy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool

	// Classifier decides whether an error is worth another attempt.
	// Defaults to IsTransient.
	Classifier func(error) bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   3,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
	}
}

// Delay returns the wait before the given attempt. Attempt 1 never waits.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 1 || p.InitialDelay <= 0 {
		return 0
	}

	factor := p.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	delay := time.Duration(float64(p.InitialDelay) * math.Pow(factor, float64(attempt-2)))
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	if p.Jitter && delay > 0 {
		// +/-10%
		jitter := time.Duration(float64(delay) * 0.1 * (2*rand.Float64() - 1))
		delay += jitter
	}
	return delay
}

func (p RetryPolicy) retryable(err error) bool {
	if p.Classifier != nil {
		return p.Classifier(err)
	}
	return IsTransient(err)
}

// Do runs fn until it succeeds, fails with a non-retryable error, runs out of
// attempts or ctx is done. onRetry, when set, is told about each failed attempt
// that will be retried.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error, onRetry func(attempt int, err error)) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if d := p.Delay(attempt); d > 0 {
			timer := time.NewTimer(d)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !p.retryable(err) || attempt == attempts {
			return err
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
	}
	return err
}
