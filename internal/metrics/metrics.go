// Package metrics holds the Prometheus collectors for the monitor.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingest
	BatchesIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hydro_batches_ingested_total",
			Help: "Total number of reading batches processed by the alert engine",
		},
		[]string{"source"}, // poller, stream, api
	)

	ReadingsSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hydro_readings_skipped_total",
			Help: "Readings skipped for an unknown metric or a non-numeric value",
		},
	)

	// Alerts
	AlertsRaisedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hydro_alerts_raised_total",
			Help: "Total number of new notifications created",
		},
		[]string{"metric", "severity"},
	)

	AlertsClearedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hydro_alerts_cleared_total",
			Help: "Total number of notifications cleared by a reading",
		},
	)

	ActiveNotifications = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hydro_active_notifications",
			Help: "Current number of notifications in the list",
		},
	)

	UnreadNotifications = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hydro_unread_notifications",
			Help: "Current number of unread notifications",
		},
	)

	// Poller
	PollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hydro_polls_total",
			Help: "Total number of reading fetches",
		},
		[]string{"status"}, // ok, failed
	)

	PollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hydro_poll_duration_seconds",
			Help:    "Time taken to fetch a reading batch",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// History
	HistoryWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hydro_history_writes_total",
			Help: "Readings handled by the history writer",
		},
		[]string{"status"}, // written, failed, dropped
	)

	// Alert publishing
	AlertPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hydro_alert_publish_total",
			Help: "Alert events published to Kafka",
		},
		[]string{"status"}, // success, failed
	)

	// Presenter stream
	StreamClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hydro_stream_clients",
			Help: "Dashboards connected to the notification stream",
		},
	)
)
