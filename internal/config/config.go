package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/afroash/hydro-monitor/internal/models"
)

// AppConfig holds all configuration for the monitor server
type AppConfig struct {
	Server        ServerSettings       `yaml:"server"`
	Database      DatabaseSettings     `yaml:"database"`
	Notifications NotificationSettings `yaml:"notifications"`
	Poller        PollerSettings       `yaml:"poller"`
	Sensor        SensorSettings       `yaml:"sensor"`
	Kafka         KafkaSettings        `yaml:"kafka"`
	Logging       LoggingConfig        `yaml:"logging"`
	Ranges        models.RangeCatalog  `yaml:"ranges"`
}

// ServerSettings contains HTTP server configuration
type ServerSettings struct {
	Port           int           `yaml:"port"`
	Host           string        `yaml:"host"`
	AuthToken      string        `yaml:"auth_token"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	LiveBuffer     int           `yaml:"live_buffer"` // readings kept in memory per device
}

// DatabaseSettings contains SQLite history configuration
type DatabaseSettings struct {
	Enabled       bool          `yaml:"enabled"`
	Path          string        `yaml:"path"`
	BatchSize     int           `yaml:"batch_size"`
	FlushPeriod   time.Duration `yaml:"flush_period"`
	ChannelSize   int           `yaml:"channel_size"`
	RetentionDays int           `yaml:"retention_days"`
	CleanupPeriod time.Duration `yaml:"cleanup_period"`
}

// NotificationSettings controls the notification list and where it is kept
type NotificationSettings struct {
	Capacity   int    `yaml:"capacity"`
	StorageKey string `yaml:"storage_key"` // kv key when the database is enabled
	FilePath   string `yaml:"file_path"`   // used when the database is disabled
}

// PollerSettings configures the HTTP reading fetch
type PollerSettings struct {
	Enabled  bool          `yaml:"enabled"`
	URL      string        `yaml:"url"`
	DeviceID string        `yaml:"device_id"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// SensorSettings configures a locally attached DHT11
type SensorSettings struct {
	Enabled      bool          `yaml:"enabled"`
	DeviceID     string        `yaml:"device_id"`
	GPIOPin      int           `yaml:"gpio_pin"`
	ReadInterval time.Duration `yaml:"read_interval"`
}

// KafkaSettings configures the alert event publisher
type KafkaSettings struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // json or text
	FilePath   string `yaml:"file_path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// DefaultRanges is the plant profile used when the config names no ranges
func DefaultRanges() models.RangeCatalog {
	return models.RangeCatalog{
		"temperature": {Min: 20, Max: 30, Unit: "°C"},
		"humidity":    {Min: 40, Max: 70, Unit: "%"},
		"ph":          {Min: 5.5, Max: 6.5, Unit: ""},
		"tds":         {Min: 800, Max: 1200, Unit: "ppm"},
		"water_level": {Min: 20, Max: 100, Unit: "%"},
		"gas":         {Min: 0, Max: 1, Unit: ""},
	}
}

// LoadAppConfig loads configuration from a YAML file. A .env file next to
// the working directory is loaded first so its values reach OverrideFromEnv.
func LoadAppConfig(path string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	yamlData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config AppConfig
	if err := yaml.Unmarshal(yamlData, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyDefaults()
	if err := config.OverrideFromEnv(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

// ApplyDefaults sets default values for any unset fields
func (ac *AppConfig) ApplyDefaults() {
	if ac.Server.Port == 0 {
		ac.Server.Port = 8081
	}
	if ac.Server.Host == "" {
		ac.Server.Host = "localhost"
	}
	if ac.Server.ReadTimeout == 0 {
		ac.Server.ReadTimeout = 60 * time.Second
	}
	if ac.Server.WriteTimeout == 0 {
		ac.Server.WriteTimeout = 10 * time.Second
	}
	if ac.Server.LiveBuffer == 0 {
		ac.Server.LiveBuffer = 100
	}

	if ac.Database.Path == "" {
		ac.Database.Path = "./data/hydro-monitor.db"
	}
	if ac.Database.BatchSize == 0 {
		ac.Database.BatchSize = 50
	}
	if ac.Database.FlushPeriod == 0 {
		ac.Database.FlushPeriod = 5 * time.Second
	}
	if ac.Database.ChannelSize == 0 {
		ac.Database.ChannelSize = 500
	}
	if ac.Database.RetentionDays == 0 {
		ac.Database.RetentionDays = 30
	}
	if ac.Database.CleanupPeriod == 0 {
		ac.Database.CleanupPeriod = 1 * time.Hour
	}

	if ac.Notifications.Capacity == 0 {
		ac.Notifications.Capacity = 20
	}
	if ac.Notifications.StorageKey == "" {
		ac.Notifications.StorageKey = "hydro_notifications"
	}
	if ac.Notifications.FilePath == "" {
		ac.Notifications.FilePath = "./data/notifications.json"
	}

	if ac.Poller.Interval == 0 {
		ac.Poller.Interval = 5 * time.Second
	}
	if ac.Poller.Timeout == 0 {
		ac.Poller.Timeout = 3 * time.Second
	}
	if ac.Poller.DeviceID == "" {
		ac.Poller.DeviceID = "hydro-controller"
	}

	if ac.Sensor.DeviceID == "" {
		ac.Sensor.DeviceID = "pi-dht11"
	}
	if ac.Sensor.ReadInterval == 0 {
		ac.Sensor.ReadInterval = 30 * time.Second
	}

	if ac.Kafka.Topic == "" {
		ac.Kafka.Topic = "hydro.alerts"
	}
	if ac.Kafka.WriteTimeout == 0 {
		ac.Kafka.WriteTimeout = 5 * time.Second
	}

	if ac.Logging.Level == "" {
		ac.Logging.Level = "info"
	}
	if ac.Logging.Format == "" {
		ac.Logging.Format = "json"
	}
	if ac.Logging.MaxSizeMB == 0 {
		ac.Logging.MaxSizeMB = 100
	}
	if ac.Logging.MaxBackups == 0 {
		ac.Logging.MaxBackups = 10
	}

	if len(ac.Ranges) == 0 {
		ac.Ranges = DefaultRanges()
	}
}

// OverrideFromEnv overrides config values from environment variables
func (ac *AppConfig) OverrideFromEnv() error {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SERVER_PORT: %w", err)
		}
		ac.Server.Port = port
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		ac.Server.Host = v
	}
	if v := os.Getenv("SERVER_AUTH_TOKEN"); v != "" {
		ac.Server.AuthToken = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		ac.Database.Path = v
	}
	if v := os.Getenv("POLLER_URL"); v != "" {
		ac.Poller.URL = v
		ac.Poller.Enabled = true
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		ac.Kafka.Brokers = strings.Split(v, ",")
		ac.Kafka.Enabled = true
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		ac.Logging.Level = v
	}
	return nil
}

// Validate checks if the configuration is valid
func (ac *AppConfig) Validate() error {
	if ac.Server.Port < 1 || ac.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if ac.Server.AuthToken == "" {
		return fmt.Errorf("auth token is required")
	}
	if ac.Notifications.Capacity < 1 {
		return fmt.Errorf("notification capacity must be at least 1")
	}
	if ac.Database.Enabled && ac.Database.RetentionDays < 1 {
		return fmt.Errorf("retention days must be at least 1")
	}
	if ac.Poller.Enabled {
		if !strings.HasPrefix(ac.Poller.URL, "http://") && !strings.HasPrefix(ac.Poller.URL, "https://") {
			return fmt.Errorf("poller URL must start with http:// or https://")
		}
		if ac.Poller.Interval < 100*time.Millisecond {
			return fmt.Errorf("poll interval must be at least 100ms")
		}
	}
	if ac.Sensor.Enabled {
		if ac.Sensor.GPIOPin <= 0 {
			return fmt.Errorf("GPIO pin must be greater than 0")
		}
		if ac.Sensor.ReadInterval < 1*time.Second {
			return fmt.Errorf("read interval must be at least 1 second")
		}
	}
	if ac.Kafka.Enabled && len(ac.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required when kafka is enabled")
	}
	for key, r := range ac.Ranges {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("range %q: %w", key, err)
		}
	}
	return nil
}

// String returns a safe string representation (hides auth token)
func (ac *AppConfig) String() string {
	return fmt.Sprintf("AppConfig{Server: [Addr=%s:%d, Token=%s], Database: %+v, Notifications: %+v, Poller: %+v, Sensor: %+v, Kafka: %+v, Logging: %+v, Ranges: %d}",
		ac.Server.Host,
		ac.Server.Port,
		maskToken(ac.Server.AuthToken),
		ac.Database,
		ac.Notifications,
		ac.Poller,
		ac.Sensor,
		ac.Kafka,
		ac.Logging,
		len(ac.Ranges),
	)
}

// maskToken masks all but first 4 characters of a token
func maskToken(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return token[:4] + "****"
}
