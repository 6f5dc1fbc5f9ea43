package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/hyperengineering/nutrisync/internal/store"
	nutrisync "github.com/hyperengineering/nutrisync/internal/sync"
)

// MetaStore is the sync metadata surface used by the status endpoint.
type MetaStore interface {
	GetSyncMeta(ctx context.Context, key string) (string, error)
	SetSyncMeta(ctx context.Context, key, value string) error
}

// Handler implements the API handlers.
type Handler struct {
	extractor      *nutrisync.Extractor
	applier        *nutrisync.Applier
	idempotency    IdempotencyStore
	meta           MetaStore
	apiKey         string
	version        string
	maxPushChanges int
	idempotencyTTL time.Duration
}

// IdempotencyStore records processed pushes so retries replay the original
// response instead of re-applying the batch. Replay lookups are scoped to
// the owner; push ids from different owners never collide.
type IdempotencyStore interface {
	CheckPushIdempotency(ctx context.Context, pushID, ownerID string) ([]byte, bool, error)
	RecordPushIdempotency(ctx context.Context, pushID, ownerID string, response []byte, ttl time.Duration) error
}

// HandlerConfig bundles the collaborators a Handler needs.
type HandlerConfig struct {
	Extractor      *nutrisync.Extractor
	Applier        *nutrisync.Applier
	Idempotency    IdempotencyStore
	Meta           MetaStore
	APIKey         string
	Version        string
	MaxPushChanges int
	IdempotencyTTL time.Duration
}

// NewHandler creates a new Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		extractor:      cfg.Extractor,
		applier:        cfg.Applier,
		idempotency:    cfg.Idempotency,
		meta:           cfg.Meta,
		apiKey:         cfg.APIKey,
		version:        cfg.Version,
		maxPushChanges: cfg.MaxPushChanges,
		idempotencyTTL: cfg.IdempotencyTTL,
	}
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Health returns the health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "healthy",
		Version: h.version,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// StatusResponse is the body of GET /sync/status.
type StatusResponse struct {
	OwnerID    string          `json:"owner_id"`
	LastPush   json.RawMessage `json:"last_push,omitempty"`
	LastVerify json.RawMessage `json:"last_verify,omitempty"`
}

// lastPushMetaKey is the sync_meta key holding an owner's last push summary.
func lastPushMetaKey(ownerID string) string {
	return "last_push:" + ownerID
}

// LastVerifyMetaKey is the sync_meta key holding the latest global
// verification summary.
const LastVerifyMetaKey = "last_verify"

// SyncStatus handles GET /api/v1/sync/status.
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		WriteProblem(w, r, http.StatusBadRequest, "missing required query parameter: owner_id")
		return
	}

	resp := StatusResponse{OwnerID: ownerID}

	if lastPush, err := h.meta.GetSyncMeta(ctx, lastPushMetaKey(ownerID)); err == nil {
		resp.LastPush = json.RawMessage(lastPush)
	} else if !errors.Is(err, store.ErrNotFound) {
		MapStoreError(w, r, err)
		return
	}

	if lastVerify, err := h.meta.GetSyncMeta(ctx, LastVerifyMetaKey); err == nil {
		resp.LastVerify = json.RawMessage(lastVerify)
	} else if !errors.Is(err, store.ErrNotFound) {
		MapStoreError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
