package server

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/hydro-monitor/internal/alerts"
	"github.com/afroash/hydro-monitor/internal/models"
	"github.com/afroash/hydro-monitor/internal/storage"
)

var testCatalog = models.RangeCatalog{
	"temperature": {Min: 20, Max: 30, Unit: "°C"},
	"humidity":    {Min: 40, Max: 70, Unit: "%"},
	"ph":          {Min: 5.5, Max: 6.5},
}

type recordingBroadcaster struct {
	mu    sync.Mutex
	views []models.NotificationsMessage
}

func (b *recordingBroadcaster) Broadcast(view models.NotificationsMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.views = append(b.views, view)
}

func (b *recordingBroadcaster) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.views)
}

func (b *recordingBroadcaster) Last() models.NotificationsMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.views[len(b.views)-1]
}

type recordingPublisher struct {
	mu     sync.Mutex
	raised []models.Notification
	calls  int
}

func (p *recordingPublisher) Publish(ctx context.Context, deviceID string, raised []models.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.raised = append(p.raised, raised...)
	return nil
}

type recordingWriter struct {
	readings []*models.Reading
}

func (w *recordingWriter) Write(r *models.Reading) bool {
	w.readings = append(w.readings, r)
	return true
}

type testRig struct {
	dashboard   *Dashboard
	live        *MemoryStore
	broadcaster *recordingBroadcaster
	publisher   *recordingPublisher
	writer      *recordingWriter
	slotPath    string
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()

	slotPath := filepath.Join(t.TempDir(), "notifications.json")
	store := alerts.NewNotificationStore(storage.NewFileSlot(slotPath), 0, zerolog.Nop())
	store.Restore()

	clock := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	engine := alerts.NewEngine(testCatalog, store, zerolog.Nop(), alerts.WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))

	rig := &testRig{
		live:        NewMemoryStore(10),
		broadcaster: &recordingBroadcaster{},
		publisher:   &recordingPublisher{},
		writer:      &recordingWriter{},
		slotPath:    slotPath,
	}
	rig.dashboard = NewDashboard(engine, rig.live, zerolog.Nop())
	rig.dashboard.SetBroadcaster(rig.broadcaster)
	rig.dashboard.SetPublisher(rig.publisher)
	rig.dashboard.SetHistoryWriter(rig.writer)
	return rig
}
