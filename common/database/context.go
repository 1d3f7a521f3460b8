// Package database holds timeout helpers shared by the storage backends.
package database

import (
	"context"
	"time"
)

const (
	// DefaultQueryTimeout bounds a single read, such as one page of a
	// windowed query.
	DefaultQueryTimeout = 5 * time.Second

	// DefaultWriteTimeout bounds a single write.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultBulkTimeout bounds migrations and purges.
	DefaultBulkTimeout = 30 * time.Second
)

// QueryContext derives a context with DefaultQueryTimeout.
func QueryContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultQueryTimeout)
}

// WriteContext derives a context with DefaultWriteTimeout.
func WriteContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultWriteTimeout)
}

// BulkContext derives a context with DefaultBulkTimeout.
func BulkContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultBulkTimeout)
}

// TimeoutContext derives a context bounded by d, or by fallback when d is
// not positive.
func TimeoutContext(parent context.Context, d, fallback time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = fallback
	}
	return context.WithTimeout(parent, d)
}
