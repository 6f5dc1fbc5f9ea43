package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperengineering/nutrisync/internal/types"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecord(owner, id string, at time.Time) *types.SyncableRecord {
	return &types.SyncableRecord{
		OwnerID:     owner,
		EntityType:  types.EntityMeal,
		EntityID:    id,
		Payload:     json.RawMessage(`{"food_name":"rice"}`),
		UpdatedAt:   at,
		ContentHash: "deadbeef",
	}
}

func mustUpsert(t *testing.T, s *SQLiteStore, rec *types.SyncableRecord) {
	t.Helper()
	ctx := context.Background()
	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	if err := tx.UpsertRecord(ctx, rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestTx_GetRecordAbsentReturnsNil(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()

	rec, err := tx.GetRecord(ctx, "owner", types.EntityMeal, "missing")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil for absent record, got %+v", rec)
	}

	tomb, err := tx.GetTombstone(ctx, "owner", types.EntityMeal, "missing")
	if err != nil {
		t.Fatalf("get tombstone: %v", err)
	}
	if tomb != nil {
		t.Errorf("expected nil for absent tombstone, got %+v", tomb)
	}
}

func TestTx_UpsertRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 6, 1, 14, 30, 0, 123456789, time.UTC)

	mustUpsert(t, s, testRecord("owner", "meal-1", at))

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()

	rec, err := tx.GetRecord(ctx, "owner", types.EntityMeal, "meal-1")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec == nil {
		t.Fatal("expected record, got nil")
	}
	if !rec.UpdatedAt.Equal(at) {
		t.Errorf("expected nanosecond-exact timestamp %v, got %v", at, rec.UpdatedAt)
	}
	if string(rec.Payload) != `{"food_name":"rice"}` {
		t.Errorf("unexpected payload %s", rec.Payload)
	}
}

func TestTx_UpsertReplacesExisting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 6, 1, 14, 30, 0, 0, time.UTC)

	mustUpsert(t, s, testRecord("owner", "meal-1", base))
	updated := testRecord("owner", "meal-1", base.Add(time.Hour))
	updated.Payload = json.RawMessage(`{"food_name":"beans"}`)
	updated.ContentHash = "cafebabe"
	mustUpsert(t, s, updated)

	records, err := s.RecordsSince(ctx, "owner", time.Time{})
	if err != nil {
		t.Fatalf("records since: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record after replace, got %d", len(records))
	}
	if records[0].ContentHash != "cafebabe" {
		t.Errorf("expected replaced hash, got %q", records[0].ContentHash)
	}
}

func TestTx_RollbackDiscardsWrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := tx.UpsertRecord(ctx, testRecord("owner", "meal-1", time.Now().UTC())); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	records, err := s.RecordsSince(ctx, "owner", time.Time{})
	if err != nil {
		t.Fatalf("records since: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected rollback to discard write, got %d records", len(records))
	}
}

func TestTx_RollbackAfterCommitIsSafe(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Errorf("rollback after commit should be a no-op, got %v", err)
	}
}

func TestTx_TombstoneLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 6, 2, 9, 0, 0, 0, time.UTC)

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	ts := &types.Tombstone{OwnerID: "owner", EntityType: types.EntityMeal, EntityID: "meal-1", DeletedAt: at}
	if err := tx.WriteTombstone(ctx, ts); err != nil {
		t.Fatalf("write tombstone: %v", err)
	}
	// Writing again with a newer time replaces the marker.
	ts.DeletedAt = at.Add(time.Minute)
	if err := tx.WriteTombstone(ctx, ts); err != nil {
		t.Fatalf("rewrite tombstone: %v", err)
	}

	got, err := tx.GetTombstone(ctx, "owner", types.EntityMeal, "meal-1")
	if err != nil {
		t.Fatalf("get tombstone: %v", err)
	}
	if got == nil || !got.DeletedAt.Equal(at.Add(time.Minute)) {
		t.Fatalf("expected updated tombstone, got %+v", got)
	}

	if err := tx.ClearTombstone(ctx, "owner", types.EntityMeal, "meal-1"); err != nil {
		t.Fatalf("clear tombstone: %v", err)
	}
	got, err = tx.GetTombstone(ctx, "owner", types.EntityMeal, "meal-1")
	if err != nil {
		t.Fatalf("get after clear: %v", err)
	}
	if got != nil {
		t.Errorf("expected tombstone cleared, got %+v", got)
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestRecordsSince_FiltersAndOrders(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 6, 3, 8, 0, 0, 0, time.UTC)

	mustUpsert(t, s, testRecord("owner", "old", base.Add(-time.Hour)))
	mustUpsert(t, s, testRecord("owner", "b-newer", base.Add(time.Minute)))
	mustUpsert(t, s, testRecord("owner", "a-boundary", base))
	mustUpsert(t, s, testRecord("other", "foreign", base.Add(time.Minute)))

	records, err := s.RecordsSince(ctx, "owner", base)
	if err != nil {
		t.Fatalf("records since: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	// The boundary row is included (>=) and ordering is timestamp ascending.
	if records[0].EntityID != "a-boundary" || records[1].EntityID != "b-newer" {
		t.Errorf("unexpected order: %s, %s", records[0].EntityID, records[1].EntityID)
	}
}

func TestListRecords_OwnerFilterOptional(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	mustUpsert(t, s, testRecord("owner-a", "meal-1", now))
	mustUpsert(t, s, testRecord("owner-b", "meal-1", now))

	all, err := s.ListRecords(ctx, "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 records across owners, got %d", len(all))
	}

	one, err := s.ListRecords(ctx, "owner-a")
	if err != nil {
		t.Fatalf("list owner-a: %v", err)
	}
	if len(one) != 1 || one[0].OwnerID != "owner-a" {
		t.Errorf("expected only owner-a records, got %+v", one)
	}
}

func TestDeleteTombstonesBefore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	cutoff := time.Date(2026, 6, 4, 0, 0, 0, 0, time.UTC)

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	for id, at := range map[string]time.Time{
		"expired":  cutoff.Add(-time.Hour),
		"boundary": cutoff,
		"live":     cutoff.Add(time.Hour),
	} {
		ts := &types.Tombstone{OwnerID: "owner", EntityType: types.EntityMeal, EntityID: id, DeletedAt: at}
		if err := tx.WriteTombstone(ctx, ts); err != nil {
			t.Fatalf("write tombstone %s: %v", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	removed, err := s.DeleteTombstonesBefore(ctx, cutoff)
	if err != nil {
		t.Fatalf("delete tombstones: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}

	remaining, err := s.TombstonesSince(ctx, "owner", time.Time{})
	if err != nil {
		t.Fatalf("tombstones since: %v", err)
	}
	if len(remaining) != 2 {
		t.Errorf("expected boundary and live tombstones kept, got %d", len(remaining))
	}
}

func TestPushIdempotency(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, found, err := s.CheckPushIdempotency(ctx, "push-1", "owner")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if found {
		t.Fatal("unexpected hit for unseen push_id")
	}

	response := []byte(`{"results":[]}`)
	if err := s.RecordPushIdempotency(ctx, "push-1", "owner", response, time.Hour); err != nil {
		t.Fatalf("record: %v", err)
	}

	got, found, err := s.CheckPushIdempotency(ctx, "push-1", "owner")
	if err != nil {
		t.Fatalf("check after record: %v", err)
	}
	if !found {
		t.Fatal("expected hit for recorded push_id")
	}
	if string(got) != string(response) {
		t.Errorf("expected recorded response, got %s", got)
	}
}

func TestPushIdempotency_ScopedByOwner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.RecordPushIdempotency(ctx, "shared-push-id", "owner-a", []byte(`{"owner":"a"}`), time.Hour); err != nil {
		t.Fatalf("record owner-a: %v", err)
	}

	// A colliding push_id from a different owner is not a replay.
	_, found, err := s.CheckPushIdempotency(ctx, "shared-push-id", "owner-b")
	if err != nil {
		t.Fatalf("check owner-b: %v", err)
	}
	if found {
		t.Fatal("owner-b must not see owner-a's recorded response")
	}

	// Both owners can record under the same push_id without clobbering.
	if err := s.RecordPushIdempotency(ctx, "shared-push-id", "owner-b", []byte(`{"owner":"b"}`), time.Hour); err != nil {
		t.Fatalf("record owner-b: %v", err)
	}
	for owner, want := range map[string]string{"owner-a": `{"owner":"a"}`, "owner-b": `{"owner":"b"}`} {
		got, found, err := s.CheckPushIdempotency(ctx, "shared-push-id", owner)
		if err != nil {
			t.Fatalf("check %s: %v", owner, err)
		}
		if !found || string(got) != want {
			t.Errorf("%s: expected %s, got %s (found=%v)", owner, want, got, found)
		}
	}
}

func TestPushIdempotency_ExpiryAndCleanup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.RecordPushIdempotency(ctx, "push-old", "owner", []byte("{}"), -time.Minute); err != nil {
		t.Fatalf("record expired: %v", err)
	}
	if err := s.RecordPushIdempotency(ctx, "push-new", "owner", []byte("{}"), time.Hour); err != nil {
		t.Fatalf("record live: %v", err)
	}

	_, found, err := s.CheckPushIdempotency(ctx, "push-old", "owner")
	if err != nil {
		t.Fatalf("check expired: %v", err)
	}
	if found {
		t.Error("expired entry should not replay")
	}

	removed, err := s.CleanExpiredIdempotency(ctx)
	if err != nil {
		t.Fatalf("clean: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 entry cleaned, got %d", removed)
	}

	_, found, err = s.CheckPushIdempotency(ctx, "push-new", "owner")
	if err != nil {
		t.Fatalf("check live: %v", err)
	}
	if !found {
		t.Error("live entry should survive cleanup")
	}
}

func TestSyncMeta(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetSyncMeta(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := s.SetSyncMeta(ctx, "last_verify", "v1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.SetSyncMeta(ctx, "last_verify", "v2"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	got, err := s.GetSyncMeta(ctx, "last_verify")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "v2" {
		t.Errorf("expected v2, got %q", got)
	}
}
