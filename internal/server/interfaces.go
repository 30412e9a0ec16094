package server

import (
	"context"
	"time"

	"github.com/afroash/hydro-monitor/internal/alerts"
	"github.com/afroash/hydro-monitor/internal/models"
	"github.com/afroash/hydro-monitor/internal/storage"
)

// ReadingStore holds the live readings shown on the dashboard.
// MemoryStore implements this interface.
type ReadingStore interface {
	Add(reading *models.Reading)
	GetLatest(deviceID string, n int) []*models.Reading
	GetCurrentReading(deviceID string) *models.Reading
	GetDeviceIDs() []string
	Stats() StoreStats
}

// HistoryStore is the read side of persistent history.
// storage.SQLiteStore implements this interface.
type HistoryStore interface {
	GetMetricHistory(metric string, start, end time.Time, limit int) ([]storage.MetricPoint, error)
	GetMetricHistoryBefore(metric string, before time.Time, limit int) ([]storage.MetricPoint, error)
	GetDailyStats(metric string, start, end time.Time) ([]storage.DailyStat, error)
	GetStorageStats() (*storage.StorageStats, error)
	GetMetrics() ([]string, error)
}

// HistoryWriter queues readings for persistence.
// storage.DBWriter implements this interface.
type HistoryWriter interface {
	Write(reading *models.Reading) bool
}

// AlertPublisher forwards newly raised notifications.
// notify.KafkaPublisher implements this interface.
type AlertPublisher interface {
	Publish(ctx context.Context, deviceID string, raised []models.Notification) error
}

// Broadcaster pushes the notification view to connected dashboards.
// Hub implements this interface.
type Broadcaster interface {
	Broadcast(view models.NotificationsMessage)
}

// Ingester accepts a raw reading batch. Dashboard implements this interface.
type Ingester interface {
	Ingest(ctx context.Context, source, deviceID string, batch models.Batch) alerts.Result
}

var (
	_ ReadingStore  = (*MemoryStore)(nil)
	_ HistoryStore  = (*storage.SQLiteStore)(nil)
	_ HistoryWriter = (*storage.DBWriter)(nil)
	_ Ingester      = (*Dashboard)(nil)
	_ Broadcaster   = (*Hub)(nil)
)
