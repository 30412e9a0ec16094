// Package poller fetches reading batches on a fixed interval and hands them
// to the dashboard.
package poller

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/hydro-monitor/internal/alerts"
	"github.com/afroash/hydro-monitor/internal/metrics"
	"github.com/afroash/hydro-monitor/internal/models"
)

// Source produces one raw reading batch per call
type Source interface {
	Name() string
	Fetch(ctx context.Context) (models.Batch, error)
}

// Sink receives every successfully fetched batch
type Sink interface {
	Ingest(ctx context.Context, source, deviceID string, batch models.Batch) alerts.Result
}

// Poller drives one Source from a single goroutine, so the sink never sees
// concurrent calls from it.
type Poller struct {
	source   Source
	sink     Sink
	deviceID string
	interval time.Duration
	logger   zerolog.Logger
}

// New creates a poller; a non-positive interval falls back to 5s
func New(source Source, sink Sink, deviceID string, interval time.Duration, logger zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{
		source:   source,
		sink:     sink,
		deviceID: deviceID,
		interval: interval,
		logger:   logger.With().Str("source", source.Name()).Logger(),
	}
}

// Start polls immediately and then on every tick until ctx is cancelled
func (p *Poller) Start(ctx context.Context) error {
	p.logger.Info().Dur("interval", p.interval).Msg("Poller started")

	p.PollOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("Poller stopped")
			return ctx.Err()
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce fetches one batch and forwards it. A failed fetch is logged and
// counted; nothing reaches the sink, so notification state is untouched.
func (p *Poller) PollOnce(ctx context.Context) (alerts.Result, error) {
	start := time.Now()
	batch, err := p.source.Fetch(ctx)
	metrics.PollDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.PollsTotal.WithLabelValues("failed").Inc()
		p.logger.Warn().Err(err).Msg("Failed to fetch readings")
		return alerts.Result{}, err
	}
	metrics.PollsTotal.WithLabelValues("ok").Inc()

	result := p.sink.Ingest(ctx, p.source.Name(), p.deviceID, batch)
	p.logger.Debug().
		Int("keys", len(batch)).
		Int("raised", len(result.Raised)).
		Int("cleared", len(result.Cleared)).
		Msg("Batch polled")
	return result, nil
}
