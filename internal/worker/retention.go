package worker

import (
	"context"
	"log/slog"
	"time"
)

// RetentionStore defines the store operations needed by the retention worker.
type RetentionStore interface {
	DeleteTombstonesBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CleanExpiredIdempotency(ctx context.Context) (int64, error)
}

// RetentionWorker periodically removes tombstones past the retention horizon
// and expired push idempotency entries. Tombstones inside the horizon are
// never touched; removing one early would let an old pending write resurrect
// a deleted entity.
type RetentionWorker struct {
	store    RetentionStore
	interval time.Duration
	horizon  time.Duration
}

// NewRetentionWorker creates a worker with the given store, run interval,
// and tombstone retention horizon.
func NewRetentionWorker(store RetentionStore, interval, horizon time.Duration) *RetentionWorker {
	return &RetentionWorker{store: store, interval: interval, horizon: horizon}
}

// Run starts the worker loop. Blocks until ctx is cancelled.
// Does NOT run immediately on start; cleanup is never urgent.
func (w *RetentionWorker) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "retention",
		"interval", w.interval.String(),
		"horizon", w.horizon.String(),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "retention",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			w.runCleanup(ctx)
		}
	}
}

// runCleanup executes a single retention sweep.
func (w *RetentionWorker) runCleanup(ctx context.Context) {
	start := time.Now()
	cutoff := start.Add(-w.horizon)

	tombstones, err := w.store.DeleteTombstonesBefore(ctx, cutoff)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("retention sweep failed",
			"component", "worker",
			"action", "retention_failed",
			"error", err,
		)
		return
	}

	idempotency, err := w.store.CleanExpiredIdempotency(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("idempotency cleanup failed",
			"component", "worker",
			"action", "retention_failed",
			"error", err,
		)
		return
	}

	slog.Info("retention sweep completed",
		"component", "worker",
		"action", "retention_complete",
		"tombstones_removed", tombstones,
		"idempotency_removed", idempotency,
		"cutoff", cutoff.Format(time.RFC3339),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
