package pipeline

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds how the backup pipeline retries transient source
// failures: up to MaxRetries additional attempts, waiting BaseDelay doubled
// per attempt (Multiplier overrides the factor when > 0).
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	Multiplier float64
}

// DefaultRetryPolicy matches the pipeline defaults: three retries starting
// at two seconds, doubling.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		Multiplier: 2,
	}
}

// backOff builds the delay schedule for one pipeline invocation.
func (p RetryPolicy) backOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.BaseDelay
	if bo.InitialInterval <= 0 {
		bo.InitialInterval = 2 * time.Second
	}
	bo.Multiplier = p.Multiplier
	if bo.Multiplier <= 0 {
		bo.Multiplier = 2
	}
	// Deterministic schedule; the pipeline is single-flight per collection
	// so jitter buys nothing.
	bo.RandomizationFactor = 0
	bo.MaxInterval = time.Hour
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

// sleep waits for the next backoff interval, honoring ctx cancellation.
func sleep(ctx context.Context, bo backoff.BackOff) error {
	d := bo.NextBackOff()
	if d == backoff.Stop {
		return context.DeadlineExceeded
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
