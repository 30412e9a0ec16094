package alerts

import (
	"encoding/json"
	"fmt"

	"github.com/afroash/hydro-monitor/internal/models"
	"github.com/rs/zerolog"
)

// DefaultCapacity is the retention cap for the notification list
const DefaultCapacity = 20

// Slot is a single durable key-value slot holding the serialized list.
// Load returns nil data when nothing has been stored yet.
type Slot interface {
	Load() ([]byte, error)
	Save(data []byte) error
}

// NotificationStore owns the active notification list, newest first.
// It is not safe for concurrent use; callers serialize access.
type NotificationStore struct {
	capacity      int
	notifications []models.Notification
	slot          Slot
	logger        zerolog.Logger
}

// NewNotificationStore creates a store persisting to slot. A capacity <= 0
// uses DefaultCapacity. Call Restore to rehydrate.
func NewNotificationStore(slot Slot, capacity int, logger zerolog.Logger) *NotificationStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &NotificationStore{
		capacity:      capacity,
		notifications: make([]models.Notification, 0, capacity),
		slot:          slot,
		logger:        logger,
	}
}

// Upsert inserts n at the front, or refreshes value and timestamp of the
// record with the same id. Returns true only when a new record was added.
func (s *NotificationStore) Upsert(n models.Notification) bool {
	if i := s.indexOf(n.ID); i >= 0 {
		s.notifications[i].Value = n.Value
		s.notifications[i].Timestamp = n.Timestamp
		s.save()
		return false
	}

	s.notifications = append(s.notifications, models.Notification{})
	copy(s.notifications[1:], s.notifications)
	s.notifications[0] = n
	if len(s.notifications) > s.capacity {
		evicted := s.notifications[s.capacity:]
		for _, e := range evicted {
			s.logger.Debug().Str("id", e.ID).Msg("Notification evicted")
		}
		s.notifications = s.notifications[:s.capacity]
	}
	s.save()
	return true
}

// Remove drops the record with the given id. Absent ids are a no-op and
// report false.
func (s *NotificationStore) Remove(id string) bool {
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.notifications = append(s.notifications[:i], s.notifications[i+1:]...)
	s.save()
	return true
}

// MarkAllRead clears the unread flag on every record
func (s *NotificationStore) MarkAllRead() bool {
	changed := false
	for i := range s.notifications {
		if s.notifications[i].Unread {
			s.notifications[i].Unread = false
			changed = true
		}
	}
	if changed {
		s.save()
	}
	return changed
}

// Clear empties the list
func (s *NotificationStore) Clear() bool {
	if len(s.notifications) == 0 {
		return false
	}
	s.notifications = s.notifications[:0]
	s.save()
	return true
}

// Persist writes the full list to the slot
func (s *NotificationStore) Persist() error {
	data, err := json.Marshal(s.notifications)
	if err != nil {
		return fmt.Errorf("failed to encode notifications: %w", err)
	}
	if err := s.slot.Save(data); err != nil {
		return fmt.Errorf("failed to save notifications: %w", err)
	}
	return nil
}

// Restore replaces the in-memory list with the slot contents. Missing or
// malformed data yields an empty list.
func (s *NotificationStore) Restore() {
	s.notifications = s.notifications[:0]

	data, err := s.slot.Load()
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to load notifications, starting empty")
		return
	}
	if len(data) == 0 {
		return
	}

	var restored []models.Notification
	if err := json.Unmarshal(data, &restored); err != nil {
		s.logger.Warn().Err(err).Msg("Stored notifications unreadable, starting empty")
		return
	}
	if len(restored) > s.capacity {
		restored = restored[:s.capacity]
	}
	s.notifications = append(s.notifications, restored...)
	s.logger.Info().Int("count", len(s.notifications)).Msg("Notifications restored")
}

// List returns a copy of the list, newest first
func (s *NotificationStore) List() []models.Notification {
	out := make([]models.Notification, len(s.notifications))
	copy(out, s.notifications)
	return out
}

// Get returns the record with the given id
func (s *NotificationStore) Get(id string) (models.Notification, bool) {
	if i := s.indexOf(id); i >= 0 {
		return s.notifications[i], true
	}
	return models.Notification{}, false
}

// UnreadCount returns the number of unread records
func (s *NotificationStore) UnreadCount() int {
	count := 0
	for _, n := range s.notifications {
		if n.Unread {
			count++
		}
	}
	return count
}

// Len returns the number of records
func (s *NotificationStore) Len() int {
	return len(s.notifications)
}

// Capacity returns the retention cap
func (s *NotificationStore) Capacity() int {
	return s.capacity
}

func (s *NotificationStore) indexOf(id string) int {
	for i, n := range s.notifications {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// save persists after a mutation; failures are logged, not returned
func (s *NotificationStore) save() {
	if err := s.Persist(); err != nil {
		s.logger.Error().Err(err).Msg("Failed to persist notifications")
	}
}
