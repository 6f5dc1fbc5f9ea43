package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hyperengineering/nutrisync/internal/types"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the SQLite-backed persistent store. It is the single source
// of truth; the cache in front of it is always a disposable derived copy.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath, applies pragmas,
// and runs migrations. Transactions are opened with an immediate write lock
// so the apply path's check-and-write is one atomic unit across writers.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", "file:"+dbPath+"?_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	// Run goose migrations
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// enablePragmas sets SQLite pragmas for optimal performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordsSince returns the owner's records with updated_at >= since, ordered
// by timestamp ascending.
func (s *SQLiteStore) RecordsSince(ctx context.Context, ownerID string, since time.Time) ([]types.SyncableRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT owner_id, entity_type, entity_id, payload, updated_at, content_hash
		FROM sync_records
		WHERE owner_id = ? AND updated_at >= ?
		ORDER BY updated_at ASC, entity_id ASC
	`, ownerID, since.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := make([]types.SyncableRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// TombstonesSince returns the owner's tombstones with deleted_at >= since,
// ordered by timestamp ascending.
func (s *SQLiteStore) TombstonesSince(ctx context.Context, ownerID string, since time.Time) ([]types.Tombstone, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT owner_id, entity_type, entity_id, deleted_at
		FROM tombstones
		WHERE owner_id = ? AND deleted_at >= ?
		ORDER BY deleted_at ASC, entity_id ASC
	`, ownerID, since.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("query tombstones: %w", err)
	}
	defer rows.Close()

	tombstones := make([]types.Tombstone, 0)
	for rows.Next() {
		var t types.Tombstone
		var deletedAt int64
		if err := rows.Scan(&t.OwnerID, &t.EntityType, &t.EntityID, &deletedAt); err != nil {
			return nil, fmt.Errorf("scan tombstone: %w", err)
		}
		t.DeletedAt = time.Unix(0, deletedAt).UTC()
		tombstones = append(tombstones, t)
	}
	return tombstones, rows.Err()
}

// ListRecords returns all records for one owner, or for every owner when
// ownerID is empty. Used by the integrity verifier.
func (s *SQLiteStore) ListRecords(ctx context.Context, ownerID string) ([]types.SyncableRecord, error) {
	query := `
		SELECT owner_id, entity_type, entity_id, payload, updated_at, content_hash
		FROM sync_records`
	args := []any{}
	if ownerID != "" {
		query += ` WHERE owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY owner_id ASC, entity_type ASC, entity_id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := make([]types.SyncableRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// DeleteTombstonesBefore removes tombstones older than the retention cutoff.
// Returns the number of tombstones removed.
func (s *SQLiteStore) DeleteTombstonesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM tombstones WHERE deleted_at < ?
	`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("delete tombstones: %w", err)
	}
	return result.RowsAffected()
}

// scanRecord scans a sync_records row.
func scanRecord(scanner interface{ Scan(...any) error }) (*types.SyncableRecord, error) {
	var rec types.SyncableRecord
	var payload string
	var updatedAt int64

	if err := scanner.Scan(&rec.OwnerID, &rec.EntityType, &rec.EntityID,
		&payload, &updatedAt, &rec.ContentHash); err != nil {
		return nil, err
	}

	rec.Payload = []byte(payload)
	rec.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &rec, nil
}
