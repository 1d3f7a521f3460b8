// Package counter answers how many failed console logins an identity had in
// a trailing window.
package counter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/telhawk-systems/cloudguard/common/logging"
	"github.com/telhawk-systems/cloudguard/common/models"
	"github.com/telhawk-systems/cloudguard/common/retry"
	"github.com/telhawk-systems/cloudguard/signin/internal/store"
)

// DefaultWindow is the trailing window used when none is given.
const DefaultWindow = time.Hour

// Querier is the part of the activity store the counter depends on.
type Querier interface {
	QueryByIdentityAndWindow(ctx context.Context, identity string, from, to int64) ([]models.ActivityEvent, error)
}

// Counter counts failed console logins through a Querier, retrying
// store.ErrUnavailable with backoff.
type Counter struct {
	store  Querier
	policy retry.Policy
	logger *logging.Logger
}

func New(q Querier, policy retry.Policy, logger *logging.Logger) *Counter {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Counter{store: q, policy: policy, logger: logger}
}

// Count returns the number of failed console logins of identity in the
// closed interval [now-window, now]. A window of zero means DefaultWindow.
// Store failures are returned, never reported as a zero count.
func (c *Counter) Count(ctx context.Context, identity string, now int64, window time.Duration) (int, error) {
	if window <= 0 {
		window = DefaultWindow
	}
	from := now - int64(window/time.Second)

	var events []models.ActivityEvent
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		var err error
		events, err = c.store.QueryByIdentityAndWindow(ctx, identity, from, now)
		return err
	},
		retry.WithRetryIf(func(err error) bool { return errors.Is(err, store.ErrUnavailable) }),
		retry.WithNotify(func(attempt int, err error, wait time.Duration) {
			c.logger.WarnContext(ctx, "activity store query failed, retrying",
				logging.Identity(identity),
				logging.Attempt(attempt),
				logging.Error(err),
				"backoff", wait.String(),
			)
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("count failed attempts for %s: %w", identity, err)
	}
	return len(events), nil
}
