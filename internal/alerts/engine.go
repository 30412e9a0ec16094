package alerts

import (
	"fmt"
	"strings"
	"time"

	"github.com/afroash/hydro-monitor/internal/models"
	"github.com/rs/zerolog"
)

// Result summarizes one GenerateAlerts pass
type Result struct {
	// AnyNew is true when at least one notification was created (not
	// just refreshed) by the batch.
	AnyNew  bool
	Raised  []models.Notification
	Cleared []string
	Unread  int
	Skipped int
}

// Engine classifies reading batches against a range catalog and drives the
// notification store. Like the store, it expects one call at a time.
type Engine struct {
	catalog models.RangeCatalog
	store   *NotificationStore
	logger  zerolog.Logger
	now     func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides the time source used for notification timestamps
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an alert engine
func NewEngine(catalog models.RangeCatalog, store *NotificationStore, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		catalog: catalog,
		store:   store,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the notification store the engine mutates
func (e *Engine) Store() *NotificationStore {
	return e.store
}

// Catalog returns the range catalog
func (e *Engine) Catalog() models.RangeCatalog {
	return e.catalog
}

// GenerateAlerts processes a reading batch. Keys without a range and values
// that do not parse are skipped. A reading back inside its safe band clears
// both the critical and the warning record for that metric; a critical
// reading also clears the warning record.
func (e *Engine) GenerateAlerts(batch models.Batch) Result {
	var res Result
	now := e.now().UTC()

	for _, key := range batch.Keys() {
		r, ok := e.catalog.Lookup(key)
		if !ok {
			res.Skipped++
			continue
		}
		value, ok := models.ParseValue(batch[key])
		if !ok {
			e.logger.Debug().Str("metric", key).Interface("value", batch[key]).Msg("Skipping non-numeric reading")
			res.Skipped++
			continue
		}

		verdict := Classify(value, r)
		if !verdict.IsAlert() {
			for _, sev := range []models.Severity{models.SeverityCritical, models.SeverityWarning} {
				id := models.NotificationID(key, sev)
				if e.store.Remove(id) {
					res.Cleared = append(res.Cleared, id)
					e.logger.Info().Str("id", id).Float64("value", value).Msg("Alert cleared")
				}
			}
			continue
		}

		// Escalation supersedes the trending record for the same metric.
		if verdict.Severity == models.SeverityCritical {
			id := models.NotificationID(key, models.SeverityWarning)
			if e.store.Remove(id) {
				res.Cleared = append(res.Cleared, id)
			}
		}

		n := buildNotification(key, value, r, verdict, now)
		if e.store.Upsert(n) {
			res.AnyNew = true
			res.Raised = append(res.Raised, n)
			e.logger.Warn().
				Str("id", n.ID).
				Str("title", n.Title).
				Str("value", n.Value).
				Str("action", n.Action).
				Msg("Alert raised")
		}
	}

	res.Unread = e.store.UnreadCount()
	if err := e.store.Persist(); err != nil {
		e.logger.Error().Err(err).Msg("Failed to persist notifications")
	}
	return res
}

func buildNotification(key string, value float64, r models.IdealRange, v Verdict, ts time.Time) models.Notification {
	return models.Notification{
		ID:        models.NotificationID(key, v.Severity),
		Key:       key,
		Title:     strings.ToUpper(key) + " " + v.Label,
		Value:     fmt.Sprintf("%.1f%s", value, r.Unit),
		Range:     r.String(),
		Severity:  v.Severity,
		Action:    Action(key, v),
		Timestamp: ts,
		Unread:    true,
	}
}
