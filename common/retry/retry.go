// Package retry runs an operation with exponential backoff. Policy is the
// configuration surface; the schedule itself comes from cenkalti/backoff.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy controls how many times an operation is attempted and how long to
// wait between attempts.
type Policy struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	Multiplier     float64       `mapstructure:"multiplier"`
}

// DefaultPolicy makes three attempts starting at 200ms.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2,
	}
}

// NoRetry makes a single attempt.
func NoRetry() Policy {
	return Policy{MaxAttempts: 1}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	if p.InitialBackoff < 0 {
		p.InitialBackoff = 0
	}
	return p
}

// exponential builds a jitter-free backoff for p with no elapsed-time limit.
func (p Policy) exponential() *backoff.ExponentialBackOff {
	p = p.normalized()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialBackoff
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.MaxInterval = p.MaxBackoff
	if b.MaxInterval <= 0 {
		b.MaxInterval = time.Duration(math.MaxInt64)
	}
	b.Reset()
	return b
}

// Backoff returns the wait before attempt n+1, where n starts at 1.
func (p Policy) Backoff(n int) time.Duration {
	b := p.exponential()
	var d time.Duration
	for i := 0; i < n; i++ {
		d = b.NextBackOff()
	}
	return d
}

type options struct {
	retryIf func(error) bool
	notify  func(attempt int, err error, wait time.Duration)
}

// Option customises Do.
type Option func(*options)

// WithRetryIf limits retries to errors for which fn returns true. Other
// errors are returned immediately.
func WithRetryIf(fn func(error) bool) Option {
	return func(o *options) {
		o.retryIf = fn
	}
}

// WithNotify registers a callback invoked after each failed attempt that
// will be retried.
func WithNotify(fn func(attempt int, err error, wait time.Duration)) Option {
	return func(o *options) {
		o.notify = fn
	}
}

// Do calls op until it succeeds, the policy is exhausted, a non-retryable
// error is returned or ctx is done. The returned error wraps the last error
// from op.
func Do(ctx context.Context, p Policy, op func(context.Context) error, opts ...Option) error {
	p = p.normalized()
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	var (
		attempt int
		lastErr error
		stopped bool
	)
	operation := func() error {
		attempt++
		err := op(ctx)
		lastErr = err
		if err != nil && o.retryIf != nil && !o.retryIf(err) {
			stopped = true
			return backoff.Permanent(err)
		}
		return err
	}
	var notify backoff.Notify
	if o.notify != nil {
		notify = func(err error, wait time.Duration) {
			o.notify(attempt, err, wait)
		}
	}

	b := backoff.WithContext(backoff.WithMaxRetries(p.exponential(), uint64(p.MaxAttempts-1)), ctx)
	err := backoff.RetryNotify(operation, b, notify)
	switch {
	case err == nil:
		return nil
	case stopped:
		return lastErr
	case ctx.Err() != nil && lastErr != nil && attempt < p.MaxAttempts:
		return fmt.Errorf("%w (retry aborted: %v)", lastErr, ctx.Err())
	case p.MaxAttempts == 1:
		return lastErr
	}
	return fmt.Errorf("after %d attempts: %w", p.MaxAttempts, lastErr)
}
