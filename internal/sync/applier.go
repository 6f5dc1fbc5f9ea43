package sync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hyperengineering/nutrisync/internal/cache"
	"github.com/hyperengineering/nutrisync/internal/canonical"
	"github.com/hyperengineering/nutrisync/internal/store"
	"github.com/hyperengineering/nutrisync/internal/types"
)

// ApplierStore is the transactional surface the push path needs.
type ApplierStore interface {
	Begin(ctx context.Context) (*store.Tx, error)
}

// Applier transactionally persists a batch of incoming changes. The whole
// batch commits or none of it does; within the transaction each change is
// resolved against current state, so a per-record rejection never aborts the
// batch and no concurrent writer can slip between check and write.
type Applier struct {
	store ApplierStore
	cache cache.Cache
	now   func() time.Time
}

// NewApplier creates an applier. cache may be nil; invalidation is then a
// no-op.
func NewApplier(s ApplierStore, c cache.Cache) *Applier {
	return &Applier{store: s, cache: c, now: time.Now}
}

// Apply processes one push batch for an owner. Changes are evaluated in
// submitted order. The returned error indicates a whole-batch storage
// failure (retryable, checkpoint not advanced); everything else is reported
// per record.
func (a *Applier) Apply(ctx context.Context, ownerID string, changes []IncomingChange) (*PushResponse, error) {
	start := a.now()
	results := make([]ChangeResult, len(changes))

	// Validation happens before the transaction: a malformed record is a
	// per-record outcome and must not cost the rest of the batch a write
	// lock.
	valid := make([]bool, len(changes))
	for i := range changes {
		if reason := validateChange(&changes[i]); reason != "" {
			results[i] = ChangeResult{
				EntityType: changes[i].EntityType,
				EntityID:   changes[i].EntityID,
				Status:     StatusError,
				Reason:     reason,
			}
			continue
		}
		valid[i] = true
	}

	tx, err := a.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin apply transaction: %w", err)
	}
	defer tx.Rollback()

	cursor := CursorAt(start)
	touched := make(map[types.EntityType]bool)

	for i := range changes {
		if !valid[i] {
			continue
		}
		result, err := a.applyOne(ctx, tx, ownerID, &changes[i])
		if err != nil {
			return nil, err
		}
		results[i] = result

		if result.Status == StatusApplied {
			touched[changes[i].EntityType] = true
			cursor = cursor.Advance(changes[i].ClientUpdatedAt)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit apply transaction: %w", err)
	}

	// Read-after-write consistency: cached reads for this owner are stale
	// the moment the transaction commits, so they are invalidated before
	// the response reaches the caller.
	a.invalidate(ctx, ownerID, touched)

	applied, rejected := tally(results)
	slog.Info("push applied",
		"component", "sync",
		"action", "push",
		"owner_id", ownerID,
		"changes", len(changes),
		"applied", applied,
		"rejected", rejected,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &PushResponse{Results: results, NewCursor: cursor.String()}, nil
}

// applyOne resolves and applies a single change inside the transaction. A
// returned error is a storage failure that aborts the batch.
func (a *Applier) applyOne(ctx context.Context, tx *store.Tx, ownerID string, change *IncomingChange) (ChangeResult, error) {
	entityID := change.EntityID
	if entityID == "" {
		// New entity from a client that lets the server mint ids.
		entityID = ulid.Make().String()
	}

	current, err := tx.GetRecord(ctx, ownerID, change.EntityType, entityID)
	if err != nil {
		return ChangeResult{}, err
	}
	tomb, err := tx.GetTombstone(ctx, ownerID, change.EntityType, entityID)
	if err != nil {
		return ChangeResult{}, err
	}

	decision := Resolve(*change, current, tomb)

	result := ChangeResult{EntityType: change.EntityType, EntityID: entityID}
	if !decision.Accepted() {
		result.Status = StatusRejected
		result.Reason = decision.RejectReason()
		return result, nil
	}

	switch decision {
	case DecisionDelete:
		// Tombstone first: a crash after this write but before the record
		// removal still leaves the deletion discoverable.
		err = tx.WriteTombstone(ctx, &types.Tombstone{
			OwnerID:    ownerID,
			EntityType: change.EntityType,
			EntityID:   entityID,
			DeletedAt:  change.ClientUpdatedAt.UTC(),
		})
		if err != nil {
			return ChangeResult{}, err
		}
		if err := tx.DeleteRecord(ctx, ownerID, change.EntityType, entityID); err != nil {
			return ChangeResult{}, err
		}

	case DecisionCreate, DecisionUpdate, DecisionResurrect:
		// The content hash is always recomputed here from the payload being
		// persisted; a client-supplied hash is never trusted.
		hash, err := canonical.Fingerprint(change.Payload)
		if err != nil {
			result.Status = StatusError
			result.Reason = "validation: payload is not valid JSON"
			return result, nil
		}
		err = tx.UpsertRecord(ctx, &types.SyncableRecord{
			OwnerID:     ownerID,
			EntityType:  change.EntityType,
			EntityID:    entityID,
			Payload:     change.Payload,
			UpdatedAt:   change.ClientUpdatedAt.UTC(),
			ContentHash: hash,
		})
		if err != nil {
			return ChangeResult{}, err
		}
		if decision == DecisionResurrect {
			if err := tx.ClearTombstone(ctx, ownerID, change.EntityType, entityID); err != nil {
				return ChangeResult{}, err
			}
		}
	}

	result.Status = StatusApplied
	return result, nil
}

// invalidate drops cached reads for the owner and the touched entity types.
// Failures degrade silently; the store already holds the truth.
func (a *Applier) invalidate(ctx context.Context, ownerID string, touched map[types.EntityType]bool) {
	if a.cache == nil || len(touched) == 0 {
		return
	}

	prefixes := []string{cache.OwnerPrefix("pull", ownerID)}
	for entityType := range touched {
		prefixes = append(prefixes, "records:"+ownerID+":"+string(entityType)+":")
	}

	for _, prefix := range prefixes {
		if err := a.cache.InvalidateByPrefix(ctx, prefix); err != nil {
			slog.Warn("cache invalidation failed",
				"component", "sync",
				"action", "invalidate",
				"owner_id", ownerID,
				"prefix", prefix,
				"error", err,
			)
		}
	}
}

// validateChange checks a change's structure and payload schema. Returns ""
// when valid, otherwise a per-record reason.
func validateChange(change *IncomingChange) string {
	if change.Operation == "" {
		change.Operation = OperationUpsert
	}
	if change.Operation != OperationUpsert && change.Operation != OperationDelete {
		return fmt.Sprintf("validation: unknown op %q", change.Operation)
	}
	if !change.EntityType.Valid() {
		return fmt.Sprintf("validation: unknown entity type %q", change.EntityType)
	}
	if change.ClientUpdatedAt.IsZero() {
		return "validation: client_updated_at is required"
	}

	if change.Operation == OperationDelete {
		if change.EntityID == "" {
			return "validation: entity_id is required for delete"
		}
		return ""
	}

	if len(change.Payload) == 0 {
		return "validation: payload is required"
	}
	fieldErrs, err := types.ValidatePayload(change.EntityType, change.Payload)
	if err != nil {
		return fmt.Sprintf("validation: %s", err)
	}
	if len(fieldErrs) > 0 {
		msgs := make([]string, len(fieldErrs))
		for i, fe := range fieldErrs {
			msgs[i] = fe.Field + " " + fe.Message
		}
		return "validation: " + strings.Join(msgs, "; ")
	}
	return ""
}

func tally(results []ChangeResult) (applied, rejected int) {
	for _, r := range results {
		switch r.Status {
		case StatusApplied:
			applied++
		case StatusRejected:
			rejected++
		}
	}
	return applied, rejected
}
