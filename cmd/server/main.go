package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/afroash/hydro-monitor/internal/alerts"
	"github.com/afroash/hydro-monitor/internal/config"
	"github.com/afroash/hydro-monitor/internal/logging"
	"github.com/afroash/hydro-monitor/internal/notify"
	"github.com/afroash/hydro-monitor/internal/poller"
	"github.com/afroash/hydro-monitor/internal/sensor"
	"github.com/afroash/hydro-monitor/internal/server"
	"github.com/afroash/hydro-monitor/internal/storage"
)

const version = "v0.3.0"

func main() {
	configPath := flag.String("config", "configs/server.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)
	logger.Info().
		Str("version", version).
		Int("port", cfg.Server.Port).
		Msg("Starting hydro monitor")
	logger.Debug().Msg(cfg.String())

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
	logger.Info().Msg("Server stopped")
}

func run(cfg *config.AppConfig, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		sqliteStore      *storage.SQLiteStore
		dbWriter         *storage.DBWriter
		retentionCleaner *storage.RetentionCleaner
		slot             alerts.Slot
	)

	if cfg.Database.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
		var err error
		sqliteStore, err = storage.NewSQLiteStore(cfg.Database.Path, logging.WithComponent(logger, "sqlite"))
		if err != nil {
			return fmt.Errorf("failed to create SQLite store: %w", err)
		}
		defer sqliteStore.Close()

		dbWriter = storage.NewDBWriter(sqliteStore, storage.DBWriterConfig{
			BatchSize:   cfg.Database.BatchSize,
			FlushPeriod: cfg.Database.FlushPeriod,
			ChannelSize: cfg.Database.ChannelSize,
		}, logging.WithComponent(logger, "dbwriter"))
		defer dbWriter.Stop()

		retentionCleaner = storage.NewRetentionCleaner(sqliteStore, storage.RetentionCleanerConfig{
			RetentionDays: cfg.Database.RetentionDays,
			CleanupPeriod: cfg.Database.CleanupPeriod,
		}, logging.WithComponent(logger, "retention"))
		defer retentionCleaner.Stop()

		slot = storage.NewKVSlot(sqliteStore, cfg.Notifications.StorageKey)
	} else {
		slot = storage.NewFileSlot(cfg.Notifications.FilePath)
	}

	alertLogger := logging.WithComponent(logger, "alerts")
	notifications := alerts.NewNotificationStore(slot, cfg.Notifications.Capacity, alertLogger)
	notifications.Restore()
	logger.Info().Int("restored", notifications.Len()).Msg("Notifications restored")

	engine := alerts.NewEngine(cfg.Ranges, notifications, alertLogger)
	live := server.NewMemoryStore(cfg.Server.LiveBuffer)
	dashboard := server.NewDashboard(engine, live, logging.WithComponent(logger, "dashboard"))

	if dbWriter != nil {
		dashboard.SetHistoryWriter(dbWriter)
	}

	if cfg.Kafka.Enabled {
		publisher, err := notify.NewKafkaPublisher(cfg.Kafka, logging.WithComponent(logger, "kafka"))
		if err != nil {
			return fmt.Errorf("failed to create alert publisher: %w", err)
		}
		defer publisher.Close()
		dashboard.SetPublisher(publisher)
	}

	hub := server.NewHub(dashboard.View, logging.WithComponent(logger, "hub"), cfg.Server.AllowedOrigins...)
	dashboard.SetBroadcaster(hub)

	mux := http.NewServeMux()

	var history server.HistoryStore
	if sqliteStore != nil {
		history = sqliteStore
	}
	server.NewAPIHandler(dashboard, live, history, logging.WithComponent(logger, "api")).Register(mux)

	deviceStream := server.NewHandler(
		cfg.Server.AuthToken,
		dashboard,
		logging.WithComponent(logger, "stream"),
		cfg.Server.AllowedOrigins...,
	)
	mux.Handle("/sensor-stream", deviceStream)
	mux.Handle("/notifications-stream", hub)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok","version":"%s","notifications":%d,"dashboards":%d}`,
			version, len(dashboard.View().Notifications), hub.ClientCount())
	})

	if cfg.Poller.Enabled {
		source := poller.NewHTTPSource(cfg.Poller.URL, cfg.Poller.Timeout)
		p := poller.New(source, dashboard, cfg.Poller.DeviceID, cfg.Poller.Interval, logging.WithComponent(logger, "poller"))
		go p.Start(ctx)
	}

	if cfg.Sensor.Enabled {
		reader, err := sensor.NewDHT11Reader(cfg.Sensor.GPIOPin)
		if err != nil {
			return err
		}
		source := sensor.NewDHTSource(reader)
		defer source.Close()
		p := poller.New(source, dashboard, cfg.Sensor.DeviceID, cfg.Sensor.ReadInterval, logging.WithComponent(logger, "sensor"))
		go p.Start(ctx)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info().Msg("Shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown error")
	}
	stop()

	// Deferred stops run next: retention cleaner, writer flush, then the
	// database close.
	return nil
}
