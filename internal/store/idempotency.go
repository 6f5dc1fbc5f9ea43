package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CheckPushIdempotency checks if an owner has already processed a push_id.
// Returns the recorded response and true if found, nil and false otherwise.
// Scoped by owner: push ids are client-generated and two owners may collide,
// so one owner's replay must never be served to another.
func (s *SQLiteStore) CheckPushIdempotency(ctx context.Context, pushID, ownerID string) ([]byte, bool, error) {
	var response string
	var expiresAt int64

	err := s.db.QueryRowContext(ctx, `
		SELECT response, expires_at FROM push_idempotency
		WHERE push_id = ? AND owner_id = ?
	`, pushID, ownerID).Scan(&response, &expiresAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("check idempotency: %w", err)
	}

	if time.Now().UnixNano() > expiresAt {
		return nil, false, nil
	}

	return []byte(response), true, nil
}

// RecordPushIdempotency records a processed push for idempotency.
func (s *SQLiteStore) RecordPushIdempotency(ctx context.Context, pushID, ownerID string, response []byte, ttl time.Duration) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO push_idempotency (push_id, owner_id, response, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
	`, pushID, ownerID, string(response), now.UnixNano(), now.Add(ttl).UnixNano())
	if err != nil {
		return fmt.Errorf("record push idempotency: %w", err)
	}
	return nil
}

// CleanExpiredIdempotency removes expired idempotency entries.
// Returns the number of entries removed.
func (s *SQLiteStore) CleanExpiredIdempotency(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM push_idempotency WHERE expires_at < ?
	`, time.Now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("clean expired idempotency: %w", err)
	}
	return result.RowsAffected()
}

// GetSyncMeta retrieves a sync metadata value by key.
func (s *SQLiteStore) GetSyncMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM sync_meta WHERE key = ?
	`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("sync meta key %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get sync meta: %w", err)
	}
	return value, nil
}

// SetSyncMeta sets a sync metadata value.
func (s *SQLiteStore) SetSyncMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sync_meta (key, value) VALUES (?, ?)
	`, key, value)
	if err != nil {
		return fmt.Errorf("set sync meta: %w", err)
	}
	return nil
}
