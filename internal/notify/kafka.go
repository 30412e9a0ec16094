// Package notify publishes newly raised alerts to Kafka for downstream
// consumers (pagers, chat bots, audit).
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/afroash/hydro-monitor/internal/config"
	"github.com/afroash/hydro-monitor/internal/metrics"
	"github.com/afroash/hydro-monitor/internal/models"
)

// ErrPublisherClosed is returned by Publish after Close
var ErrPublisherClosed = errors.New("publisher is closed")

// AlertEvent is the JSON value of each Kafka message
type AlertEvent struct {
	DeviceID     string              `json:"device_id"`
	Notification models.Notification `json:"notification"`
	PublishedAt  time.Time           `json:"published_at"`
}

// messageWriter is the part of kafka.Writer the publisher uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher sends one message per raised notification, keyed by the
// notification id so repeats of the same alert land on one partition.
type KafkaPublisher struct {
	writer messageWriter
	logger zerolog.Logger
	now    func() time.Time
	closed atomic.Bool

	sent   atomic.Uint64
	failed atomic.Uint64
}

// NewKafkaPublisher creates a synchronous publisher for cfg.Topic
func NewKafkaPublisher(cfg config.KafkaSettings, logger zerolog.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("topic is required")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	logger.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.Topic).
		Msg("Kafka alert publisher created")

	return newPublisher(writer, logger), nil
}

func newPublisher(writer messageWriter, logger zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: writer,
		logger: logger,
		now:    time.Now,
	}
}

// Publish sends the raised notifications in one batch. An empty slice is a
// no-op.
func (p *KafkaPublisher) Publish(ctx context.Context, deviceID string, raised []models.Notification) error {
	if p.closed.Load() {
		return ErrPublisherClosed
	}
	if len(raised) == 0 {
		return nil
	}

	now := p.now().UTC()
	messages := make([]kafka.Message, 0, len(raised))
	for _, n := range raised {
		data, err := json.Marshal(AlertEvent{
			DeviceID:     deviceID,
			Notification: n,
			PublishedAt:  now,
		})
		if err != nil {
			p.failed.Add(1)
			metrics.AlertPublishTotal.WithLabelValues("failed").Inc()
			p.logger.Error().Err(err).Str("id", n.ID).Msg("Failed to serialize alert")
			continue
		}

		messages = append(messages, kafka.Message{
			Key:   []byte(n.ID),
			Value: data,
			Headers: []kafka.Header{
				{Key: "metric", Value: []byte(n.Key)},
				{Key: "severity", Value: []byte(n.Severity)},
				{Key: "device_id", Value: []byte(deviceID)},
			},
			Time: n.Timestamp,
		})
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		p.failed.Add(uint64(len(messages)))
		metrics.AlertPublishTotal.WithLabelValues("failed").Add(float64(len(messages)))
		return fmt.Errorf("failed to publish %d alerts: %w", len(messages), err)
	}

	p.sent.Add(uint64(len(messages)))
	metrics.AlertPublishTotal.WithLabelValues("success").Add(float64(len(messages)))
	p.logger.Debug().Int("count", len(messages)).Msg("Alerts published")
	return nil
}

// Close flushes and closes the writer
func (p *KafkaPublisher) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.writer.Close()
}

// PublisherStats holds publish counters
type PublisherStats struct {
	Sent   uint64 `json:"sent"`
	Failed uint64 `json:"failed"`
}

// Stats returns publish counters
func (p *KafkaPublisher) Stats() PublisherStats {
	return PublisherStats{
		Sent:   p.sent.Load(),
		Failed: p.failed.Load(),
	}
}
