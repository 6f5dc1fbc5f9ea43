package sync

import (
	"encoding/json"
	"time"

	"github.com/hyperengineering/nutrisync/internal/types"
)

// Operation constants for incoming changes.
const (
	OperationUpsert = "upsert"
	OperationDelete = "delete"
)

// ChangeStatus is the closed set of per-record push outcomes.
type ChangeStatus string

const (
	StatusApplied  ChangeStatus = "applied"
	StatusRejected ChangeStatus = "rejected"
	StatusError    ChangeStatus = "error"
)

// Rejection reasons reported to clients. A rejection is a resolved, final
// outcome, not a failure; clients drop the pending change for that id.
const (
	ReasonStale   = "stale"
	ReasonDeleted = "deleted"
)

// IncomingChange is one client-submitted mutation in a push batch.
type IncomingChange struct {
	EntityType      types.EntityType `json:"entity_type"`
	EntityID        string           `json:"entity_id,omitempty"`
	Operation       string           `json:"op,omitempty"` // defaults to "upsert"
	Payload         json.RawMessage  `json:"payload,omitempty"`
	ClientUpdatedAt time.Time        `json:"client_updated_at"`
}

// PushRequest is the body of POST /changes. OwnerID is verified upstream by
// the auth layer; tenancy enforcement is not the sync engine's job.
type PushRequest struct {
	OwnerID  string           `json:"owner_id"`
	PushID   string           `json:"push_id"`
	SourceID string           `json:"source_id"`
	Changes  []IncomingChange `json:"changes"`
}

// ChangeResult is the per-record outcome of a push.
type ChangeResult struct {
	EntityType types.EntityType `json:"entity_type"`
	EntityID   string           `json:"entity_id"`
	Status     ChangeStatus     `json:"status"`
	Reason     string           `json:"reason,omitempty"`
}

// PushResponse is the response to POST /changes.
//
// NewCursor is based on the server clock at apply time, so it can sit ahead
// of changes other devices wrote with older timestamps but that this client
// has not pulled yet. Clients must complete a pull round trip before
// persisting it as their pull checkpoint; adopting it directly can skip
// those changes.
type PushResponse struct {
	Results   []ChangeResult `json:"results"`
	NewCursor string         `json:"new_cursor"`
}

// PullResponse is the response to GET /changes.
type PullResponse struct {
	Records    []types.SyncableRecord `json:"records"`
	Tombstones []types.Tombstone      `json:"tombstones"`
	NextCursor string                 `json:"next_cursor"`
}
