// Package recovery retries pipeline stages and sets aside events whose
// processing permanently failed.
package recovery

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/upb/payment-control-plane/config"
	"github.com/upb/payment-control-plane/services"
)

// Defaults used when a Policy field is unset.
const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 200 * time.Millisecond
)

// Policy bounds a retry loop. The delay before attempt n+1 is BaseDelay * 2^(n-1).
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// PolicyFromConfig builds a retry policy from pipeline configuration
func PolicyFromConfig(cfg config.PipelineConfig) Policy {
	return Policy{MaxAttempts: cfg.MaxAttempts, BaseDelay: cfg.BaseDelay}
}

func (p Policy) attempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

func (p Policy) baseDelay() time.Duration {
	if p.BaseDelay <= 0 {
		return DefaultBaseDelay
	}
	return p.BaseDelay
}

func (p Policy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.baseDelay()
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = time.Duration(math.MaxInt64)
	return b
}

// Attempt describes a failed attempt that will be retried after Delay.
type Attempt struct {
	Number int
	Err    error
	Delay  time.Duration
}

// Retry calls fn until it succeeds or the policy's attempts run out, sleeping
// between attempts. Configuration and validation errors are not retried.
// onRetry, when set, is called before each sleep. The error returned is the
// last attempt's.
func Retry[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error), onRetry func(Attempt)) (T, error) {
	attempt := 0
	operation := func() (T, error) {
		attempt++
		v, err := fn(ctx)
		if err != nil && services.IsPermanent(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(uint(p.attempts())),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, delay time.Duration) {
			if onRetry != nil {
				onRetry(Attempt{Number: attempt, Err: err, Delay: delay})
			}
		}),
	)
}
