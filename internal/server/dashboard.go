package server

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/hydro-monitor/internal/alerts"
	"github.com/afroash/hydro-monitor/internal/metrics"
	"github.com/afroash/hydro-monitor/internal/models"
)

const publishTimeout = 5 * time.Second

// Dashboard owns the alert engine and serializes every access to it.
// Readings from the poller, device streams and the API, and user actions
// from the dashboard, all pass through its mutex. Broadcasting and alert
// publishing happen after the lock is released.
type Dashboard struct {
	mu     sync.Mutex
	engine *alerts.Engine
	live   ReadingStore
	logger zerolog.Logger

	history     HistoryWriter
	publisher   AlertPublisher
	broadcaster Broadcaster
}

// NewDashboard creates the dashboard service around an engine
func NewDashboard(engine *alerts.Engine, live ReadingStore, logger zerolog.Logger) *Dashboard {
	d := &Dashboard{
		engine: engine,
		live:   live,
		logger: logger,
	}
	d.observe()
	return d
}

// SetHistoryWriter enables persistence of every ingested reading
func (d *Dashboard) SetHistoryWriter(w HistoryWriter) {
	d.history = w
}

// SetPublisher enables forwarding of newly raised alerts
func (d *Dashboard) SetPublisher(p AlertPublisher) {
	d.publisher = p
}

// SetBroadcaster sets where notification views are pushed
func (d *Dashboard) SetBroadcaster(b Broadcaster) {
	d.broadcaster = b
}

// Ingest records a raw batch as a live reading, queues it for history, runs
// the alert engine over it and pushes the resulting view.
func (d *Dashboard) Ingest(ctx context.Context, source, deviceID string, batch models.Batch) alerts.Result {
	reading := models.NewReading(deviceID, batch)
	if reading.IsValid() {
		d.live.Add(reading)
		if d.history != nil {
			d.history.Write(reading)
		}
	}

	d.mu.Lock()
	result := d.engine.GenerateAlerts(batch)
	view := d.viewLocked(result.AnyNew)
	d.observeLocked()
	d.mu.Unlock()

	metrics.BatchesIngestedTotal.WithLabelValues(source).Inc()
	metrics.ReadingsSkippedTotal.Add(float64(result.Skipped))
	metrics.AlertsClearedTotal.Add(float64(len(result.Cleared)))
	for _, n := range result.Raised {
		metrics.AlertsRaisedTotal.WithLabelValues(n.Key, string(n.Severity)).Inc()
	}

	if d.publisher != nil && len(result.Raised) > 0 {
		pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		if err := d.publisher.Publish(pubCtx, deviceID, result.Raised); err != nil {
			d.logger.Error().Err(err).Str("device_id", deviceID).Msg("Failed to publish alerts")
		}
		cancel()
	}

	d.broadcast(view)

	d.logger.Debug().
		Str("source", source).
		Str("device_id", deviceID).
		Int("raised", len(result.Raised)).
		Int("cleared", len(result.Cleared)).
		Int("unread", result.Unread).
		Msg("Batch ingested")
	return result
}

// Dismiss removes one notification. Returns false when the id is absent.
func (d *Dashboard) Dismiss(id string) bool {
	return d.mutate(func(s *alerts.NotificationStore) bool { return s.Remove(id) })
}

// MarkAllRead clears every unread flag
func (d *Dashboard) MarkAllRead() bool {
	return d.mutate(func(s *alerts.NotificationStore) bool { return s.MarkAllRead() })
}

// ClearAll empties the notification list
func (d *Dashboard) ClearAll() bool {
	return d.mutate(func(s *alerts.NotificationStore) bool { return s.Clear() })
}

// View returns the current notification list as the dashboard shows it
func (d *Dashboard) View() models.NotificationsMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.viewLocked(false)
}

// Catalog returns the range catalog the engine classifies against
func (d *Dashboard) Catalog() models.RangeCatalog {
	return d.engine.Catalog()
}

// mutate runs a user operation and broadcasts only if it changed state
func (d *Dashboard) mutate(op func(*alerts.NotificationStore) bool) bool {
	d.mu.Lock()
	changed := op(d.engine.Store())
	var view models.NotificationsMessage
	if changed {
		view = d.viewLocked(false)
		d.observeLocked()
	}
	d.mu.Unlock()

	if changed {
		d.broadcast(view)
	}
	return changed
}

func (d *Dashboard) viewLocked(newAlert bool) models.NotificationsMessage {
	store := d.engine.Store()
	list := store.List()

	views := make([]models.NotificationView, len(list))
	for i, n := range list {
		views[i] = models.NotificationView{
			Notification: n,
			Icon:         alerts.IconFor(n.Key),
		}
	}

	unread := store.UnreadCount()
	return models.NotificationsMessage{
		Notifications: views,
		Unread:        unread,
		Badge:         BadgeText(unread),
		NewAlert:      newAlert,
	}
}

func (d *Dashboard) observe() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observeLocked()
}

func (d *Dashboard) observeLocked() {
	store := d.engine.Store()
	metrics.ActiveNotifications.Set(float64(store.Len()))
	metrics.UnreadNotifications.Set(float64(store.UnreadCount()))
}

func (d *Dashboard) broadcast(view models.NotificationsMessage) {
	if d.broadcaster != nil {
		d.broadcaster.Broadcast(view)
	}
}

// BadgeText is the unread badge label: empty at zero, capped at "9+"
func BadgeText(unread int) string {
	switch {
	case unread <= 0:
		return ""
	case unread > 9:
		return "9+"
	default:
		return strconv.Itoa(unread)
	}
}
