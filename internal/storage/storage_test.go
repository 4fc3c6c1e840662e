package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ragu-manjegowda/tqqq-200-sma/internal/models"
)

func tempStatePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "position_state.json")
}

func TestNewJSONStorageInitializes(t *testing.T) {
	path := tempStatePath(t)

	store, err := NewJSONStorage(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	state := store.GetState()
	if state.Position != models.PositionCash {
		t.Errorf("fresh storage should start in CASH, got %s", state.Position)
	}

	// The default state is written to disk immediately.
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected state file to exist: %v", err)
	}
}

func TestStorageRoundTrip(t *testing.T) {
	path := tempStatePath(t)

	store, err := NewJSONStorage(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := models.SignalRecord{
		ID:           "test-id",
		Timestamp:    time.Now().UTC(),
		Action:       "BUY",
		PositionFrom: models.PositionCash,
		PositionTo:   models.PositionTQQQ,
		Date:         "2024-03-13",
		Close:        445.2,
		SMA:          420.0,
		BuyLevel:     441.0,
		SellLevel:    407.4,
	}
	if err := store.RecordSignal(rec); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	// A new instance over the same file sees the transition.
	reopened, err := NewJSONStorage(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	state := reopened.GetState()
	if state.Position != models.PositionTQQQ {
		t.Errorf("expected TQQQ after buy, got %s", state.Position)
	}
	if state.LastSignalDate != "2024-03-13" {
		t.Errorf("expected last signal date set, got %q", state.LastSignalDate)
	}

	history := reopened.GetHistory()
	if len(history) != 1 {
		t.Fatalf("expected 1 history record, got %d", len(history))
	}
	if history[0].ID != "test-id" || history[0].Action != "BUY" {
		t.Errorf("unexpected history record: %+v", history[0])
	}
}

func TestRecordSignalRejectsInvalidDestination(t *testing.T) {
	store, err := NewJSONStorage(tempStatePath(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = store.RecordSignal(models.SignalRecord{PositionTo: models.Position("SPY")})
	if err == nil {
		t.Error("expected error for invalid destination position")
	}
	if len(store.GetHistory()) != 0 {
		t.Error("invalid record should not be stored")
	}
}

func TestSetStateRejectsInvalid(t *testing.T) {
	store, err := NewJSONStorage(tempStatePath(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := store.SetState(nil); err == nil {
		t.Error("expected error for nil state")
	}
	if err := store.SetState(&models.SignalState{Position: "MARGIN"}); err == nil {
		t.Error("expected error for invalid position")
	}
}

func TestCorruptFileFallsBackToFreshState(t *testing.T) {
	path := tempStatePath(t)
	if err := os.WriteFile(path, []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := NewJSONStorage(path)
	if err != nil {
		t.Fatalf("corrupt file should not fail open: %v", err)
	}
	if store.GetState().Position != models.PositionCash {
		t.Errorf("expected fresh CASH state, got %s", store.GetState().Position)
	}

	// The corrupt file stays on disk until the next successful save.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "{broken" {
		t.Error("corrupt file was clobbered before any save")
	}
}

func TestInvalidPositionInFileIsCorrupt(t *testing.T) {
	path := tempStatePath(t)
	blob := `{"state": {"position": "MARGIN", "created": "2024-01-01T00:00:00Z"}}`
	if err := os.WriteFile(path, []byte(blob), 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := NewJSONStorage(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.GetState().Position != models.PositionCash {
		t.Errorf("expected fallback to CASH, got %s", store.GetState().Position)
	}
}

func TestGetStateReturnsCopy(t *testing.T) {
	store, err := NewJSONStorage(tempStatePath(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	state := store.GetState()
	state.Position = models.PositionTQQQ

	if store.GetState().Position != models.PositionCash {
		t.Error("mutating the returned state leaked into storage")
	}
}

func TestStorageCreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "state.json")
	if _, err := NewJSONStorage(path); err != nil {
		t.Fatalf("expected nested directories to be created: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("state file missing: %v", err)
	}
}
