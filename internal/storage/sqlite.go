package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/afroash/hydro-monitor/internal/models"
)

// ErrNotFound is returned by Get when a key has no value
var ErrNotFound = errors.New("key not found")

const timeLayout = "2006-01-02 15:04:05"

// Store defines the interface for sensor history and the key-value slots
type Store interface {
	Close() error
	Migrate() error
	InsertReading(reading *models.Reading) error
	InsertBatch(readings []*models.Reading) error
	GetMetricHistory(metric string, start, end time.Time, limit int) ([]MetricPoint, error)
	GetMetricHistoryBefore(metric string, before time.Time, limit int) ([]MetricPoint, error)
	GetLatestReading(deviceID string) (*models.Reading, error)
	GetDailyStats(metric string, start, end time.Time) ([]DailyStat, error)
	DeleteOlderThan(days int) (int64, error)
	GetStorageStats() (*StorageStats, error)
	GetMetrics() ([]string, error)
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
}

// Compile-time interface check
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore persists reading history and the notification slot
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// MetricPoint is one stored value of one metric
type MetricPoint struct {
	DeviceID  string    `json:"device_id"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// DailyStat represents aggregated statistics for one metric on one day
type DailyStat struct {
	Date         time.Time `json:"date"`
	Metric       string    `json:"metric"`
	Min          float64   `json:"min"`
	Max          float64   `json:"max"`
	Avg          float64   `json:"avg"`
	ReadingCount int       `json:"reading_count"`
}

// StorageStats contains information about the database
type StorageStats struct {
	TotalPoints    int64     `json:"total_points"`
	OldestReading  time.Time `json:"oldest_reading,omitempty"`
	NewestReading  time.Time `json:"newest_reading,omitempty"`
	UniqueDevices  int       `json:"unique_devices"`
	UniqueMetrics  int       `json:"unique_metrics"`
	DatabaseSizeMB float64   `json:"database_size_mb"`
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(dbPath string, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=10000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	// Single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := store.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info().Str("path", dbPath).Msg("SQLite store initialized")

	return store, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate creates the database schema if it doesn't exist
func (s *SQLiteStore) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS metric_values (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		device_id TEXT NOT NULL,
		metric TEXT NOT NULL,
		value REAL NOT NULL,
		recorded_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_metric_values_metric_time ON metric_values(metric, recorded_at DESC);
	CREATE INDEX IF NOT EXISTS idx_metric_values_device_time ON metric_values(device_id, recorded_at DESC);

	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	s.logger.Debug().Msg("Database schema migrated")
	return nil
}

// InsertReading stores every metric of a reading in a single transaction
func (s *SQLiteStore) InsertReading(reading *models.Reading) error {
	return s.InsertBatch([]*models.Reading{reading})
}

// InsertBatch inserts multiple readings in a single transaction
func (s *SQLiteStore) InsertBatch(readings []*models.Reading) error {
	if len(readings) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO metric_values (device_id, metric, value, recorded_at)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	points := 0
	for _, reading := range readings {
		recordedAt := reading.Timestamp.UTC().Format(timeLayout)
		for metric, value := range reading.Values {
			if _, err := stmt.Exec(reading.DeviceID, metric, value, recordedAt); err != nil {
				return fmt.Errorf("failed to insert %s value: %w", metric, err)
			}
			points++
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug().Int("readings", len(readings)).Int("points", points).Msg("Batch insert completed")
	return nil
}

// GetMetricHistory returns values of one metric within a time range, newest first
func (s *SQLiteStore) GetMetricHistory(metric string, start, end time.Time, limit int) ([]MetricPoint, error) {
	rows, err := s.db.Query(`
		SELECT device_id, metric, value, recorded_at
		FROM metric_values
		WHERE metric = ? AND recorded_at BETWEEN ? AND ?
		ORDER BY recorded_at DESC
		LIMIT ?
	`,
		metric,
		start.UTC().Format(timeLayout),
		end.UTC().Format(timeLayout),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	return s.scanPoints(rows)
}

// GetMetricHistoryBefore returns values recorded before a timestamp (for scrolling back)
func (s *SQLiteStore) GetMetricHistoryBefore(metric string, before time.Time, limit int) ([]MetricPoint, error) {
	rows, err := s.db.Query(`
		SELECT device_id, metric, value, recorded_at
		FROM metric_values
		WHERE metric = ? AND recorded_at < ?
		ORDER BY recorded_at DESC
		LIMIT ?
	`,
		metric,
		before.UTC().Format(timeLayout),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	return s.scanPoints(rows)
}

// GetLatestReading rebuilds the most recent reading of a device
func (s *SQLiteStore) GetLatestReading(deviceID string) (*models.Reading, error) {
	rows, err := s.db.Query(`
		SELECT device_id, metric, value, recorded_at
		FROM metric_values
		WHERE device_id = ? AND recorded_at = (
			SELECT MAX(recorded_at) FROM metric_values WHERE device_id = ?
		)
	`, deviceID, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest reading: %w", err)
	}
	defer rows.Close()

	points, err := s.scanPoints(rows)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, nil
	}

	reading := &models.Reading{
		DeviceID:  deviceID,
		Timestamp: points[0].Timestamp,
		Values:    make(map[string]float64, len(points)),
	}
	for _, p := range points {
		reading.Values[p.Metric] = p.Value
	}
	return reading, nil
}

// GetDailyStats returns aggregated daily statistics for a metric
func (s *SQLiteStore) GetDailyStats(metric string, start, end time.Time) ([]DailyStat, error) {
	rows, err := s.db.Query(`
		SELECT
			date(recorded_at) as date,
			metric,
			MIN(value),
			MAX(value),
			AVG(value),
			COUNT(*)
		FROM metric_values
		WHERE metric = ? AND recorded_at BETWEEN ? AND ?
		GROUP BY date(recorded_at), metric
		ORDER BY date DESC
	`,
		metric,
		start.UTC().Format(timeLayout),
		end.UTC().Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily stats: %w", err)
	}
	defer rows.Close()

	var stats []DailyStat
	for rows.Next() {
		var stat DailyStat
		var dateStr string

		err := rows.Scan(&dateStr, &stat.Metric, &stat.Min, &stat.Max, &stat.Avg, &stat.ReadingCount)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily stat: %w", err)
		}

		stat.Date, err = time.Parse("2006-01-02", dateStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse date: %w", err)
		}

		stats = append(stats, stat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return stats, nil
}

// DeleteOlderThan removes values recorded more than days ago
func (s *SQLiteStore) DeleteOlderThan(days int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	result, err := s.db.Exec(
		"DELETE FROM metric_values WHERE recorded_at < ?",
		cutoff.Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old values: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	s.logger.Info().
		Int("days", days).
		Int64("deleted", deleted).
		Time("cutoff", cutoff).
		Msg("Deleted old metric values")

	return deleted, nil
}

// GetStorageStats returns statistics about the database
func (s *SQLiteStore) GetStorageStats() (*StorageStats, error) {
	stats := &StorageStats{}

	err := s.db.QueryRow("SELECT COUNT(*) FROM metric_values").Scan(&stats.TotalPoints)
	if err != nil {
		return nil, fmt.Errorf("failed to count values: %w", err)
	}

	if stats.TotalPoints == 0 {
		return stats, nil
	}

	var oldestStr, newestStr string
	err = s.db.QueryRow("SELECT MIN(recorded_at), MAX(recorded_at) FROM metric_values").
		Scan(&oldestStr, &newestStr)
	if err != nil {
		return nil, fmt.Errorf("failed to get timestamp range: %w", err)
	}

	stats.OldestReading, _ = parseTimestamp(oldestStr)
	stats.NewestReading, _ = parseTimestamp(newestStr)

	err = s.db.QueryRow("SELECT COUNT(DISTINCT device_id), COUNT(DISTINCT metric) FROM metric_values").
		Scan(&stats.UniqueDevices, &stats.UniqueMetrics)
	if err != nil {
		return nil, fmt.Errorf("failed to count devices: %w", err)
	}

	var pageCount, pageSize int64
	s.db.QueryRow("PRAGMA page_count").Scan(&pageCount)
	s.db.QueryRow("PRAGMA page_size").Scan(&pageSize)
	stats.DatabaseSizeMB = float64(pageCount*pageSize) / (1024 * 1024)

	return stats, nil
}

// GetMetrics returns the distinct metric keys in the database
func (s *SQLiteStore) GetMetrics() ([]string, error) {
	rows, err := s.db.Query("SELECT DISTINCT metric FROM metric_values ORDER BY metric")
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer rows.Close()

	var metrics []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}
		metrics = append(metrics, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return metrics, nil
}

// Get returns the value stored under key, or ErrNotFound
func (s *SQLiteStore) Get(key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key %q: %w", key, err)
	}
	return value, nil
}

// Put stores value under key, replacing any previous value
func (s *SQLiteStore) Put(key string, value []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write key %q: %w", key, err)
	}
	return nil
}

// scanPoints scans rows of (device_id, metric, value, recorded_at)
func (s *SQLiteStore) scanPoints(rows *sql.Rows) ([]MetricPoint, error) {
	var points []MetricPoint

	for rows.Next() {
		var p MetricPoint
		var recordedAt string

		if err := rows.Scan(&p.DeviceID, &p.Metric, &p.Value, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan value: %w", err)
		}

		ts, err := parseTimestamp(recordedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse timestamp: %w", err)
		}
		p.Timestamp = ts

		points = append(points, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return points, nil
}

// parseTimestamp tries the formats SQLite may hand back for a DATETIME
func parseTimestamp(ts string) (time.Time, error) {
	formats := []string{
		timeLayout,
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02 15:04:05.000",
		time.RFC3339,
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, ts); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse timestamp: %s", ts)
}
