package worker

import (
	"context"
	"log/slog"
	"time"
)

// CacheInvalidator drops cached account lookups.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// RefreshWorker periodically invalidates the account cache so snapshots refreshed
// by the external sync job become visible.
type RefreshWorker struct {
	cache    CacheInvalidator
	interval time.Duration
}

// NewRefreshWorker creates a new RefreshWorker.
func NewRefreshWorker(cache CacheInvalidator, interval time.Duration) *RefreshWorker {
	return &RefreshWorker{
		cache:    cache,
		interval: interval,
	}
}

// Run starts the refresh loop. It blocks until the context is cancelled.
func (w *RefreshWorker) Run(ctx context.Context) {
	slog.Info("RefreshWorker: starting", "interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("RefreshWorker: shutting down")
			return
		case <-ticker.C:
			if err := w.cache.Invalidate(ctx); err != nil {
				slog.Error("RefreshWorker: invalidation failed", "error", err)
			}
		}
	}
}
