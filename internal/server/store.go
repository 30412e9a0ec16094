package server

import (
	"sort"
	"sync"
	"time"

	"github.com/afroash/hydro-monitor/internal/models"
)

// MemoryStore is an in-memory ring buffer of live readings per device
type MemoryStore struct {
	capacity      int
	data          map[string][]*models.Reading
	mutex         sync.RWMutex
	totalReadings int64
}

// NewMemoryStore creates a new in-memory store keeping capacity readings
// per device
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 100
	}
	return &MemoryStore{
		capacity: capacity,
		data:     make(map[string][]*models.Reading),
	}
}

// Add adds a reading to the store, dropping the device's oldest when full
func (ms *MemoryStore) Add(reading *models.Reading) {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	readings := ms.data[reading.DeviceID]
	if len(readings) >= ms.capacity {
		readings = readings[1:]
	}
	readings = append(readings, reading.Copy())
	ms.data[reading.DeviceID] = readings
	ms.totalReadings++
}

// GetLatest returns the n most recent readings for a device, newest first
func (ms *MemoryStore) GetLatest(deviceID string, n int) []*models.Reading {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	readings := ms.data[deviceID]
	if len(readings) == 0 {
		return nil
	}

	start := len(readings) - n
	if start < 0 {
		start = 0
	}

	result := make([]*models.Reading, len(readings)-start)
	for i, j := len(readings)-1, 0; i >= start; i, j = i-1, j+1 {
		result[j] = readings[i].Copy()
	}
	return result
}

// GetCurrentReading returns the most recent reading for a device
func (ms *MemoryStore) GetCurrentReading(deviceID string) *models.Reading {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	readings := ms.data[deviceID]
	if len(readings) == 0 {
		return nil
	}
	return readings[len(readings)-1].Copy()
}

// GetDeviceIDs returns the ids of every device that has sent data, sorted
func (ms *MemoryStore) GetDeviceIDs() []string {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	ids := make([]string, 0, len(ms.data))
	for id := range ms.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Stats returns statistics about the store
func (ms *MemoryStore) Stats() StoreStats {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	stats := StoreStats{
		TotalReadings: ms.totalReadings,
		UniqueDevices: len(ms.data),
	}
	for _, readings := range ms.data {
		stats.CurrentReadings += len(readings)
		for _, r := range readings {
			if stats.OldestReading.IsZero() || r.Timestamp.Before(stats.OldestReading) {
				stats.OldestReading = r.Timestamp
			}
			if r.Timestamp.After(stats.NewestReading) {
				stats.NewestReading = r.Timestamp
			}
		}
	}
	return stats
}

// StoreStats contains statistics about the memory store
type StoreStats struct {
	TotalReadings   int64     `json:"total_readings"`
	UniqueDevices   int       `json:"unique_devices"`
	CurrentReadings int       `json:"current_readings"` // in memory now
	OldestReading   time.Time `json:"oldest_reading,omitempty"`
	NewestReading   time.Time `json:"newest_reading,omitempty"`
}

// Clear removes all data from the store
func (ms *MemoryStore) Clear() {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	ms.data = make(map[string][]*models.Reading)
	ms.totalReadings = 0
}
