package db

import (
	"context"
	"time"

	"github.com/atinyakov/smsglue/internal/store"
	"go.uber.org/zap"
)

// StartStaleCacheCleaner removes entries of category older than retention
// every interval, until ctx is cancelled.
func StartStaleCacheCleaner(
	ctx context.Context,
	sweeper store.Sweeper,
	category string,
	interval time.Duration,
	retention time.Duration,
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().Add(-retention)
				removed, err := sweeper.Sweep(ctx, category, cutoff)
				if err != nil {
					log.Error("failed to clean stale cache entries", zap.String("category", category), zap.Error(err))
					continue
				}
				if removed > 0 {
					log.Info("cleaned stale cache entries", zap.String("category", category), zap.Int64("removed", removed))
				}
			}
		}
	}()
}
