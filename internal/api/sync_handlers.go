package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	nutrisync "github.com/hyperengineering/nutrisync/internal/sync"
)

// PullChanges handles GET /api/v1/changes?owner_id=...&since=...
func (h *Handler) PullChanges(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		WriteProblem(w, r, http.StatusBadRequest, "missing required query parameter: owner_id")
		return
	}

	since, err := nutrisync.ParseCursor(r.URL.Query().Get("since"))
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.extractor.Changes(ctx, ownerID, since)
	if err != nil {
		slog.Error("pull failed",
			"component", "api",
			"action", "pull_failed",
			"owner_id", ownerID,
			"since", since.String(),
			"error", err,
		)
		WriteProblem(w, r, http.StatusInternalServerError, "Failed to retrieve changes")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)

	slog.Info("pull served",
		"component", "api",
		"action", "pull",
		"owner_id", ownerID,
		"since", since.String(),
		"records", len(resp.Records),
		"tombstones", len(resp.Tombstones),
		"next_cursor", resp.NextCursor,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// PushChanges handles POST /api/v1/changes
func (h *Handler) PushChanges(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	var req nutrisync.PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err))
		return
	}

	if err := h.validatePushRequest(req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, err.Error())
		return
	}

	// Idempotency: an ambiguous network failure makes clients resend the
	// same push_id; replay the recorded response instead of re-applying.
	cachedResp, found, err := h.idempotency.CheckPushIdempotency(ctx, req.PushID, req.OwnerID)
	if err != nil {
		slog.Error("idempotency check failed", "owner_id", req.OwnerID, "error", err)
		WriteProblem(w, r, http.StatusInternalServerError, "Internal error")
		return
	}
	if found {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Idempotent-Replay", "true")
		w.Write(cachedResp)
		slog.Info("push idempotent replay",
			"component", "api",
			"action", "push_replay",
			"owner_id", req.OwnerID,
			"push_id", req.PushID,
		)
		return
	}

	resp, err := h.applier.Apply(ctx, req.OwnerID, req.Changes)
	if err != nil {
		// Whole-batch storage failure: nothing was applied, the checkpoint
		// must not advance, and the client may safely resubmit.
		slog.Error("push transaction failed",
			"component", "api",
			"action", "push_failed",
			"owner_id", req.OwnerID,
			"push_id", req.PushID,
			"error", err,
		)
		WriteProblem(w, r, http.StatusServiceUnavailable, "Push failed; safe to retry")
		return
	}

	respBytes, _ := json.Marshal(resp)

	if err := h.idempotency.RecordPushIdempotency(ctx, req.PushID, req.OwnerID, respBytes, h.idempotencyTTL); err != nil {
		slog.Warn("failed to record idempotency", "owner_id", req.OwnerID, "push_id", req.PushID, "error", err)
	}

	h.recordPushMeta(r, req.OwnerID, resp)

	w.Header().Set("Content-Type", "application/json")
	w.Write(respBytes)

	slog.Info("push completed",
		"component", "api",
		"action", "push",
		"owner_id", req.OwnerID,
		"push_id", req.PushID,
		"source_id", req.SourceID,
		"changes", len(req.Changes),
		"new_cursor", resp.NewCursor,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// validatePushRequest validates the push request structure.
func (h *Handler) validatePushRequest(req nutrisync.PushRequest) error {
	if req.OwnerID == "" {
		return fmt.Errorf("owner_id is required")
	}
	if req.PushID == "" {
		return fmt.Errorf("push_id is required")
	}
	if req.SourceID == "" {
		return fmt.Errorf("source_id is required")
	}
	if len(req.Changes) == 0 {
		return fmt.Errorf("changes array is required")
	}
	if len(req.Changes) > h.maxPushChanges {
		return fmt.Errorf("changes exceeds maximum of %d", h.maxPushChanges)
	}
	return nil
}

// recordPushMeta stores the owner's last push summary for the status
// endpoint. Best effort; failures only lose status detail.
func (h *Handler) recordPushMeta(r *http.Request, ownerID string, resp *nutrisync.PushResponse) {
	var applied, rejected, errored int
	for _, result := range resp.Results {
		switch result.Status {
		case nutrisync.StatusApplied:
			applied++
		case nutrisync.StatusRejected:
			rejected++
		case nutrisync.StatusError:
			errored++
		}
	}

	summary, err := json.Marshal(map[string]any{
		"at":       time.Now().UTC().Format(time.RFC3339),
		"applied":  applied,
		"rejected": rejected,
		"errors":   errored,
	})
	if err != nil {
		return
	}
	if err := h.meta.SetSyncMeta(r.Context(), lastPushMetaKey(ownerID), string(summary)); err != nil {
		slog.Warn("failed to record push meta", "owner_id", ownerID, "error", err)
	}
}
