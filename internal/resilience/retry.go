package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/corewire/taskmesh/internal/corekit"
)

// RetryConfig configures an exponential-backoff retry schedule.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig is a short synchronous schedule: 5 attempts,
// starting at 100ms, doubling up to 5s. Webhook delivery uses its own
// RetryPolicy in pkg/webhook, not this config.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   5,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}
}

func (c *RetryConfig) backOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.InitialDelay
	eb.MaxInterval = c.MaxDelay
	eb.Multiplier = c.BackoffFactor
	eb.Reset()
	return eb
}

// Retry runs fn until it succeeds, ctx is cancelled, or MaxAttempts is
// exhausted, sleeping with exponential backoff (plus jitter, via
// cenkalti/backoff/v5's default randomization factor) between attempts.
func Retry(ctx context.Context, config *RetryConfig, fn func() error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	op := func() (struct{}, error) {
		err := fn()
		if err != nil && corekit.IsTerminal(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}
	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(config.backOff()),
		backoff.WithMaxTries(uint(config.MaxAttempts)),
	)
	return err
}

// RetryWithCircuitBreaker composes Retry with a CircuitBreaker: each
// attempt only runs fn if the breaker is currently closed or trialing,
// and the outcome feeds back into the breaker's window.
func RetryWithCircuitBreaker(ctx context.Context, config *RetryConfig, cb *CircuitBreaker, fn func() error) error {
	return Retry(ctx, config, func() error {
		return cb.Execute(ctx, fn)
	})
}
