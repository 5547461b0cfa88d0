package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/nestwatch/nestwatch/internal/config"
	"github.com/nestwatch/nestwatch/internal/errs"
)

// OperationClass selects the retry policy. Cache, queue and RPC
// dependencies fail differently and get distinct budgets.
type OperationClass string

const (
	ClassCache OperationClass = "cache"
	ClassQueue OperationClass = "queue"
	ClassRPC   OperationClass = "rpc"
)

type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Jitter       float64
}

func policyFromConfig(p config.RetryPolicy) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  p.MaxAttempts,
		InitialDelay: p.InitialDelay,
		MaxDelay:     p.MaxDelay,
		Jitter:       p.Jitter,
	}
}

// backoff returns the delay before the given attempt (zero-based),
// exponential with jitter, capped at MaxDelay.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := float64(p.InitialDelay) * math.Pow(2, float64(attempt))
	if p.Jitter > 0 {
		d += d * p.Jitter * (rand.Float64()*2 - 1)
	}
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// retry runs op up to MaxAttempts times, backing off between attempts.
// Only transient errors are retried; anything else returns straight
// away.
func (p RetryPolicy) retry(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.backoff(attempt - 1)):
			}
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !errs.IsTransient(err) {
			return err
		}
	}

	return lastErr
}
