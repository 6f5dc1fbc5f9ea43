package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hyperengineering/nutrisync/internal/types"
)

// Tx is a transaction over the sync tables. The apply path reads current
// state and writes its decisions inside a single Tx, so no concurrent writer
// can invalidate a resolver decision between check and write.
type Tx struct {
	tx *sql.Tx
}

// Begin opens a write transaction.
func (s *SQLiteStore) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Rollback aborts the transaction. Safe to call after Commit.
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// GetRecord returns the record for the given id, or nil when absent. A
// missing record is an expected outcome on the apply path, not an error.
func (t *Tx) GetRecord(ctx context.Context, ownerID string, entityType types.EntityType, entityID string) (*types.SyncableRecord, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT owner_id, entity_type, entity_id, payload, updated_at, content_hash
		FROM sync_records
		WHERE owner_id = ? AND entity_type = ? AND entity_id = ?
	`, ownerID, entityType, entityID)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// GetTombstone returns the tombstone for the given id, or nil when absent.
func (t *Tx) GetTombstone(ctx context.Context, ownerID string, entityType types.EntityType, entityID string) (*types.Tombstone, error) {
	var ts types.Tombstone
	var deletedAt int64
	err := t.tx.QueryRowContext(ctx, `
		SELECT owner_id, entity_type, entity_id, deleted_at
		FROM tombstones
		WHERE owner_id = ? AND entity_type = ? AND entity_id = ?
	`, ownerID, entityType, entityID).Scan(&ts.OwnerID, &ts.EntityType, &ts.EntityID, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tombstone: %w", err)
	}
	ts.DeletedAt = time.Unix(0, deletedAt).UTC()
	return &ts, nil
}

// UpsertRecord writes a record, replacing any existing row for its id.
func (t *Tx) UpsertRecord(ctx context.Context, rec *types.SyncableRecord) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sync_records (owner_id, entity_type, entity_id, payload, updated_at, content_hash)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (owner_id, entity_type, entity_id)
		DO UPDATE SET payload = excluded.payload,
		              updated_at = excluded.updated_at,
		              content_hash = excluded.content_hash
	`, rec.OwnerID, rec.EntityType, rec.EntityID, string(rec.Payload),
		rec.UpdatedAt.UnixNano(), rec.ContentHash)
	if err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}

// DeleteRecord removes a record row. Callers must have written the
// tombstone first; a crash between the two writes must leave the deletion
// discoverable.
func (t *Tx) DeleteRecord(ctx context.Context, ownerID string, entityType types.EntityType, entityID string) error {
	_, err := t.tx.ExecContext(ctx, `
		DELETE FROM sync_records
		WHERE owner_id = ? AND entity_type = ? AND entity_id = ?
	`, ownerID, entityType, entityID)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

// WriteTombstone records a deletion marker, replacing any older marker for
// the same id.
func (t *Tx) WriteTombstone(ctx context.Context, ts *types.Tombstone) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO tombstones (owner_id, entity_type, entity_id, deleted_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (owner_id, entity_type, entity_id)
		DO UPDATE SET deleted_at = excluded.deleted_at
	`, ts.OwnerID, ts.EntityType, ts.EntityID, ts.DeletedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("write tombstone: %w", err)
	}
	return nil
}

// ClearTombstone removes the tombstone for a resurrected entity.
func (t *Tx) ClearTombstone(ctx context.Context, ownerID string, entityType types.EntityType, entityID string) error {
	_, err := t.tx.ExecContext(ctx, `
		DELETE FROM tombstones
		WHERE owner_id = ? AND entity_type = ? AND entity_id = ?
	`, ownerID, entityType, entityID)
	if err != nil {
		return fmt.Errorf("clear tombstone: %w", err)
	}
	return nil
}
