package sync

import (
	"time"

	"github.com/hyperengineering/nutrisync/internal/types"
)

// Decision is the closed set of resolver outcomes.
type Decision string

const (
	DecisionCreate        Decision = "create"
	DecisionUpdate        Decision = "update"
	DecisionResurrect     Decision = "resurrect"
	DecisionDelete        Decision = "delete"
	DecisionRejectStale   Decision = "reject_stale"
	DecisionRejectDeleted Decision = "reject_deleted"
)

// Accepted reports whether the decision results in a write.
func (d Decision) Accepted() bool {
	switch d {
	case DecisionCreate, DecisionUpdate, DecisionResurrect, DecisionDelete:
		return true
	}
	return false
}

// RejectReason returns the wire reason for a rejecting decision, or "".
func (d Decision) RejectReason() string {
	switch d {
	case DecisionRejectStale:
		return ReasonStale
	case DecisionRejectDeleted:
		return ReasonDeleted
	}
	return ""
}

// Resolve decides the fate of one incoming change against current server
// state. It is a pure function: current and tomb describe what the store
// holds for the change's entity id (nil when absent), and the returned
// decision carries no side effects.
//
// Policy is last-writer-wins by timestamp with the server winning ties, and
// deletion dominating any write at or before the tombstone's deleted_at. A
// write strictly newer than the tombstone resurrects the entity: under LWW
// the delete is just another write, and an edit made on a device that had
// not yet seen the delete is newer information.
func Resolve(change IncomingChange, current *types.SyncableRecord, tomb *types.Tombstone) Decision {
	if change.Operation == OperationDelete {
		return resolveDelete(change.ClientUpdatedAt, current, tomb)
	}
	return resolveUpsert(change.ClientUpdatedAt, current, tomb)
}

func resolveUpsert(clientUpdatedAt time.Time, current *types.SyncableRecord, tomb *types.Tombstone) Decision {
	if tomb != nil {
		if !clientUpdatedAt.After(tomb.DeletedAt) {
			return DecisionRejectDeleted
		}
		if current == nil {
			return DecisionResurrect
		}
		// Record exists alongside a strictly older tombstone: a previous
		// resurrection already happened, fall through to LWW.
	}

	if current == nil {
		return DecisionCreate
	}
	if clientUpdatedAt.After(current.UpdatedAt) {
		return DecisionUpdate
	}
	return DecisionRejectStale
}

func resolveDelete(clientUpdatedAt time.Time, current *types.SyncableRecord, tomb *types.Tombstone) Decision {
	if tomb != nil && !clientUpdatedAt.After(tomb.DeletedAt) {
		// Already deleted at or after this point; nothing to do.
		return DecisionRejectStale
	}
	if current != nil && !clientUpdatedAt.After(current.UpdatedAt) {
		// A newer (or equally new) write beat the delete.
		return DecisionRejectStale
	}
	// Accepted even when the server never saw the record: the tombstone
	// keeps older pending writes from other devices from creating it later.
	return DecisionDelete
}
