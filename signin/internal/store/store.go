// Package store persists activity events and answers the windowed
// failed-login query used by the failed-attempt counter.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/telhawk-systems/cloudguard/common/models"
)

// ErrUnavailable marks transient backend failures such as timeouts,
// throttling or lost connections. Callers may retry.
var ErrUnavailable = errors.New("activity store unavailable")

// DefaultPageSize is the number of records fetched per page by backends that
// paginate.
const DefaultPageSize = 100

// Store is the activity store contract.
type Store interface {
	// Put writes ev, replacing any record with the same id.
	Put(ctx context.Context, ev *models.ActivityEvent) error

	// QueryByIdentityAndWindow returns every failed console login of
	// identity whose timestamp lies in [from, to]. All pages are read
	// before returning.
	QueryByIdentityAndWindow(ctx context.Context, identity string, from, to int64) ([]models.ActivityEvent, error)

	Ping(ctx context.Context) error
	Close() error
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}

// failedInWindow keeps the events that count as failed console logins of
// identity within [from, to].
func failedInWindow(events []models.ActivityEvent, identity string, from, to int64) []models.ActivityEvent {
	out := events[:0]
	for _, ev := range events {
		if ev.InWindow(identity, from, to) && ev.IsFailedConsoleLogin() {
			out = append(out, ev)
		}
	}
	return out
}
