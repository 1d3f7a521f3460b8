package store

import (
	"context"
	"time"

	"github.com/telhawk-systems/cloudguard/common/logging"
)

// RunPurger deletes expired events every interval until ctx is done. The
// first pass runs immediately.
func RunPurger(ctx context.Context, p Purger, interval time.Duration, logger *logging.Logger) {
	if logger == nil {
		logger = logging.Discard()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.InfoContext(ctx, "expired event purger started", "interval", interval.String())

	purgeOnce(ctx, p, logger)
	for {
		select {
		case <-ctx.Done():
			logger.InfoContext(context.WithoutCancel(ctx), "expired event purger stopped")
			return
		case <-ticker.C:
			purgeOnce(ctx, p, logger)
		}
	}
}

func purgeOnce(ctx context.Context, p Purger, logger *logging.Logger) {
	n, err := p.PurgeExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.ErrorContext(ctx, "purge of expired events failed", logging.Error(err))
		}
		return
	}
	if n > 0 {
		logger.InfoContext(ctx, "purged expired events", logging.Count(int(n)))
	}
}
