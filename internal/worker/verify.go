package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hyperengineering/nutrisync/internal/verify"
)

// VerifyRunner runs one integrity pass. Implemented by verify.Verifier.
type VerifyRunner interface {
	Run(ctx context.Context, ownerID string) (*verify.Report, error)
}

// VerifyMetaStore records the latest pass summary for the status endpoint.
type VerifyMetaStore interface {
	SetSyncMeta(ctx context.Context, key, value string) error
}

// lastVerifyMetaKey mirrors api.LastVerifyMetaKey.
const lastVerifyMetaKey = "last_verify"

// VerifyWorker periodically runs a global integrity pass. Drift is reported,
// never repaired; a failed pass has no effect on the request path.
type VerifyWorker struct {
	verifier VerifyRunner
	meta     VerifyMetaStore
	interval time.Duration
}

// NewVerifyWorker creates a worker with the given verifier and interval.
// meta may be nil to skip summary recording.
func NewVerifyWorker(verifier VerifyRunner, meta VerifyMetaStore, interval time.Duration) *VerifyWorker {
	return &VerifyWorker{verifier: verifier, meta: meta, interval: interval}
}

// Run starts the worker loop. Blocks until ctx is cancelled.
func (w *VerifyWorker) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "verify",
		"interval", w.interval.String(),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "verify",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			w.runPass(ctx)
		}
	}
}

// runPass executes a single global verification pass.
func (w *VerifyWorker) runPass(ctx context.Context) {
	report, err := w.verifier.Run(ctx, "")
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("verification pass failed",
			"component", "worker",
			"action", "verify_failed",
			"error", err,
		)
		return
	}

	slog.Info("verification pass completed",
		"component", "worker",
		"action", "verify_complete",
		"checked", report.Checked,
		"drift", len(report.Drift),
		"duration_ms", report.Duration.Milliseconds(),
	)

	if w.meta == nil {
		return
	}
	summary, err := json.Marshal(map[string]any{
		"at":      report.StartedAt.Format(time.RFC3339),
		"checked": report.Checked,
		"drift":   len(report.Drift),
	})
	if err != nil {
		return
	}
	if err := w.meta.SetSyncMeta(ctx, lastVerifyMetaKey, string(summary)); err != nil {
		slog.Warn("failed to record verify summary", "component", "worker", "error", err)
	}
}
