package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, Multiplier: 2}
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustedWrapsLastError(t *testing.T) {
	calls := 0
	var notified []int
	err := Do(context.Background(), fastPolicy(3), func(context.Context) error {
		calls++
		return errTransient
	}, WithNotify(func(attempt int, err error, wait time.Duration) {
		notified = append(notified, attempt)
	}))

	require.Error(t, err)
	assert.ErrorIs(t, err, errTransient)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, notified)
}

func TestDo_NonRetryableReturnsImmediately(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	err := Do(context.Background(), fastPolicy(5), func(context.Context) error {
		calls++
		return permanent
	}, WithRetryIf(func(err error) bool { return errors.Is(err, errTransient) }))

	assert.Equal(t, permanent, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 3, InitialBackoff: time.Hour}

	err := Do(ctx, p, func(context.Context) error {
		cancel()
		return errTransient
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, errTransient)
	assert.Contains(t, err.Error(), "retry aborted")
}

func TestDo_SingleAttempt(t *testing.T) {
	err := Do(context.Background(), NoRetry(), func(context.Context) error { return errTransient })
	assert.Equal(t, errTransient, err)
}

func TestDo_NotifyReportsBackoffSchedule(t *testing.T) {
	p := Policy{MaxAttempts: 4, InitialBackoff: time.Millisecond, MaxBackoff: 3 * time.Millisecond, Multiplier: 2}
	var waits []time.Duration
	err := Do(context.Background(), p, func(context.Context) error {
		return errTransient
	}, WithNotify(func(_ int, _ error, wait time.Duration) {
		waits = append(waits, wait)
	}))

	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond}, waits)
}

func TestDo_ZeroPolicyMakesOneAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{}, func(context.Context) error {
		calls++
		return errTransient
	})
	assert.Equal(t, errTransient, err)
	assert.Equal(t, 1, calls)
}

func TestPolicy_Backoff(t *testing.T) {
	p := Policy{MaxAttempts: 5, InitialBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond, Multiplier: 2}

	assert.Equal(t, 100*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(2))
	assert.Equal(t, 300*time.Millisecond, p.Backoff(3))
	assert.Equal(t, 300*time.Millisecond, p.Backoff(4))

	unbounded := Policy{InitialBackoff: time.Second, Multiplier: 3}
	assert.Equal(t, 9*time.Second, unbounded.Backoff(3))
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Greater(t, p.InitialBackoff, time.Duration(0))
}
