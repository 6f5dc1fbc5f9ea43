package verify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hyperengineering/nutrisync/internal/canonical"
	"github.com/hyperengineering/nutrisync/internal/types"
)

type fakeStore struct {
	records []types.SyncableRecord
	err     error
}

func (f *fakeStore) ListRecords(_ context.Context, ownerID string) ([]types.SyncableRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	if ownerID == "" {
		return f.records, nil
	}
	var out []types.SyncableRecord
	for _, rec := range f.records {
		if rec.OwnerID == ownerID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func record(t *testing.T, owner, id string, payload string) types.SyncableRecord {
	t.Helper()
	hash, err := canonical.Fingerprint([]byte(payload))
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	return types.SyncableRecord{
		OwnerID:     owner,
		EntityType:  types.EntityMeal,
		EntityID:    id,
		Payload:     json.RawMessage(payload),
		UpdatedAt:   time.Now().UTC(),
		ContentHash: hash,
	}
}

func TestVerifier_CleanPass(t *testing.T) {
	store := &fakeStore{records: []types.SyncableRecord{
		record(t, "owner-1", "meal-1", `{"food_name":"rice","calories":200}`),
		record(t, "owner-1", "meal-2", `{"food_name":"beans","calories":150}`),
	}}

	report, err := New(store).Run(context.Background(), "")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !report.Clean() {
		t.Errorf("expected clean report, got drift %+v", report.Drift)
	}
	if report.Checked != 2 {
		t.Errorf("expected 2 checked, got %d", report.Checked)
	}
}

func TestVerifier_DetectsDrift(t *testing.T) {
	drifted := record(t, "owner-1", "meal-1", `{"food_name":"rice"}`)
	drifted.ContentHash = "0000000000000000000000000000000000000000000000000000000000000000"

	store := &fakeStore{records: []types.SyncableRecord{
		drifted,
		record(t, "owner-1", "meal-2", `{"food_name":"beans"}`),
	}}

	report, err := New(store).Run(context.Background(), "")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Clean() {
		t.Fatal("expected drift")
	}
	if len(report.Drift) != 1 {
		t.Fatalf("expected 1 drifted record, got %d", len(report.Drift))
	}
	d := report.Drift[0]
	if d.EntityID != "meal-1" {
		t.Errorf("expected meal-1 flagged, got %s", d.EntityID)
	}
	if d.ComputedHash == "" || d.ComputedHash == d.StoredHash {
		t.Errorf("expected differing computed hash, got %+v", d)
	}
}

func TestVerifier_UnparsablePayloadIsDrift(t *testing.T) {
	broken := record(t, "owner-1", "meal-1", `{"food_name":"rice"}`)
	broken.Payload = json.RawMessage(`{corrupt`)

	report, err := New(&fakeStore{records: []types.SyncableRecord{broken}}).Run(context.Background(), "")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.Drift) != 1 {
		t.Fatalf("expected 1 drift entry, got %d", len(report.Drift))
	}
	if report.Drift[0].Detail == "" {
		t.Error("expected detail explaining unparsable payload")
	}
}

func TestVerifier_ScopedToOwner(t *testing.T) {
	store := &fakeStore{records: []types.SyncableRecord{
		record(t, "owner-1", "meal-1", `{"food_name":"rice"}`),
		record(t, "owner-2", "meal-1", `{"food_name":"pasta"}`),
	}}

	report, err := New(store).Run(context.Background(), "owner-2")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.OwnerID != "owner-2" || report.Checked != 1 {
		t.Errorf("expected 1 record for owner-2, got %+v", report)
	}
}

func TestVerifier_StoreErrorSurfaces(t *testing.T) {
	wantErr := errors.New("db locked")
	_, err := New(&fakeStore{err: wantErr}).Run(context.Background(), "")
	if !errors.Is(err, wantErr) {
		t.Errorf("expected store error, got %v", err)
	}
}
