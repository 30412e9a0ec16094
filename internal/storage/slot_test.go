package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/afroash/hydro-monitor/internal/alerts"
	"github.com/afroash/hydro-monitor/internal/models"
	"github.com/rs/zerolog"
)

// Both slot kinds must satisfy the notification store's persistence contract.
var (
	_ alerts.Slot = (*KVSlot)(nil)
	_ alerts.Slot = (*FileSlot)(nil)
)

type failingKV struct{}

func (failingKV) Get(string) ([]byte, error) { return nil, errors.New("disk I/O error") }
func (failingKV) Put(string, []byte) error   { return errors.New("disk I/O error") }

func TestKVSlot_MissingIsEmpty(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	data, err := NewKVSlot(store, "notifications").Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if data != nil {
		t.Errorf("Load = %s, want nil", data)
	}
}

func TestKVSlot_PropagatesRealErrors(t *testing.T) {
	if _, err := NewKVSlot(failingKV{}, "x").Load(); err == nil {
		t.Error("Load should surface store errors")
	}
	if err := NewKVSlot(failingKV{}, "x").Save([]byte("[]")); err == nil {
		t.Error("Save should surface store errors")
	}
}

func TestKVSlot_NotificationStoreRoundTrip(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	slot := NewKVSlot(store, "hydro_notifications")
	ns := alerts.NewNotificationStore(slot, 0, zerolog.Nop())
	ns.Upsert(models.Notification{
		ID:        "ph_critical",
		Key:       "ph",
		Severity:  models.SeverityCritical,
		Timestamp: time.Now().UTC(),
		Unread:    true,
	})

	restored := alerts.NewNotificationStore(slot, 0, zerolog.Nop())
	restored.Restore()
	if restored.Len() != 1 {
		t.Fatalf("restored Len = %d, want 1", restored.Len())
	}
	if _, ok := restored.Get("ph_critical"); !ok {
		t.Error("ph_critical missing after restore")
	}

	restored.Clear()
	again := alerts.NewNotificationStore(slot, 0, zerolog.Nop())
	again.Restore()
	if again.Len() != 0 {
		t.Errorf("Len after clear = %d, want 0", again.Len())
	}
}

func TestFileSlot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "notifications.json")
	slot := NewFileSlot(path)

	data, err := slot.Load()
	if err != nil || data != nil {
		t.Fatalf("Load on missing file = %s, %v", data, err)
	}

	if err := slot.Save([]byte(`[{"id":"gas_critical"}]`)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	data, err = slot.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(data) != `[{"id":"gas_critical"}]` {
		t.Errorf("Load = %s", data)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should have been renamed away")
	}
}
