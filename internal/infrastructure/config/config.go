package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// envPrefix is prepended to every environment override, e.g. HOMECORE_DATABASE_PATH.
const envPrefix = "HOMECORE_"

// Config is the root configuration structure for homecore.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site        SiteConfig        `yaml:"site"`
	Database    DatabaseConfig    `yaml:"database"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Logging     LoggingConfig     `yaml:"logging"`
	Runtime     RuntimeConfig     `yaml:"runtime"`
	Sensors     SensorsConfig     `yaml:"sensors"`
	Alerts      AlertsConfig      `yaml:"alerts"`
	Persistence PersistenceConfig `yaml:"persistence"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string         `yaml:"id" env:"SITE_ID"`
	Name     string         `yaml:"name"`
	Timezone string         `yaml:"timezone" env:"SITE_TIMEZONE"`
	Location LocationConfig `yaml:"location"`
}

// LocationConfig contains geographic coordinates for solar calculations.
type LocationConfig struct {
	Latitude  float64 `yaml:"latitude" env:"SITE_LATITUDE"`
	Longitude float64 `yaml:"longitude" env:"SITE_LONGITUDE"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path" env:"DATABASE_PATH"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
	TopicPrefix string              `yaml:"topic_prefix"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host" env:"MQTT_HOST"`
	Port     int    `yaml:"port" env:"MQTT_PORT"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username" env:"MQTT_USERNAME"`
	Password string `yaml:"password" env:"MQTT_PASSWORD"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled" env:"INFLUXDB_ENABLED"`
	URL           string `yaml:"url" env:"INFLUXDB_URL"`
	Token         string `yaml:"token" env:"INFLUXDB_TOKEN"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
	Output string `yaml:"output"`
}

// RuntimeConfig controls the tick loop and worker pools.
type RuntimeConfig struct {
	// TickInterval is the delay between orchestrator ticks.
	TickInterval time.Duration `yaml:"tick_interval" env:"TICK_INTERVAL"`

	// Workers bounds concurrent device updates, action evaluations and
	// event-triggered executions.
	Workers int `yaml:"workers"`

	// QueueSize is the backlog of event-triggered executions waiting for a worker.
	QueueSize int `yaml:"queue_size"`

	// ExecutorTimeout bounds a single Call/Set execution.
	ExecutorTimeout time.Duration `yaml:"executor_timeout"`

	// DeviceTimeout bounds a single device Update.
	DeviceTimeout time.Duration `yaml:"device_timeout"`
}

// SensorsConfig controls time-series retention and compaction.
type SensorsConfig struct {
	CheckIntervalMinutes int  `yaml:"check_interval_minutes"`
	RetentionDays        int  `yaml:"retention_days"`
	ResetDetection       bool `yaml:"reset_detection"`
}

// AlertsConfig controls escalation of persistent conditions.
type AlertsConfig struct {
	InactiveValidity time.Duration `yaml:"inactive_validity"`
	Topic            string        `yaml:"topic"`
}

// PersistenceConfig controls periodic snapshots of the entity graph.
type PersistenceConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule" env:"SNAPSHOT_SCHEDULE"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables use the HOMECORE_ prefix, for example
// HOMECORE_DATABASE_PATH or HOMECORE_MQTT_PASSWORD.
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "home",
			Name:     "Home",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/homecore.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "homecore",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			TopicPrefix: "homecore",
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Runtime: RuntimeConfig{
			TickInterval:    3 * time.Second,
			Workers:         8,
			QueueSize:       64,
			ExecutorTimeout: 10 * time.Second,
			DeviceTimeout:   10 * time.Second,
		},
		Sensors: SensorsConfig{
			CheckIntervalMinutes: 15,
			RetentionDays:        365,
		},
		Alerts: AlertsConfig{
			InactiveValidity: 24 * time.Hour,
			Topic:            "alerts",
		},
		Persistence: PersistenceConfig{
			Enabled:  true,
			Schedule: "*/5 * * * *",
		},
	}
}

// applyEnvOverrides applies HOMECORE_* environment variables on top of the file values.
// Unset variables leave the loaded values untouched.
func applyEnvOverrides(cfg *Config) error {
	return env.ParseWithOptions(cfg, env.Options{Prefix: envPrefix})
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if _, err := time.LoadLocation(c.Site.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("site.timezone %q is not a valid IANA zone", c.Site.Timezone))
	}
	if c.Site.Location.Latitude < -90 || c.Site.Location.Latitude > 90 {
		errs = append(errs, "site.location.latitude must be between -90 and 90")
	}
	if c.Site.Location.Longitude < -180 || c.Site.Location.Longitude > 180 {
		errs = append(errs, "site.location.longitude must be between -180 and 180")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	if c.Runtime.TickInterval <= 0 {
		errs = append(errs, "runtime.tick_interval must be positive")
	}
	if c.Runtime.Workers < 1 {
		errs = append(errs, "runtime.workers must be at least 1")
	}
	if c.Runtime.QueueSize < 1 {
		errs = append(errs, "runtime.queue_size must be at least 1")
	}
	if c.Runtime.ExecutorTimeout <= 0 || c.Runtime.DeviceTimeout <= 0 {
		errs = append(errs, "runtime.executor_timeout and runtime.device_timeout must be positive")
	}

	// Buckets are aligned to the hour, so the interval has to divide it.
	if c.Sensors.CheckIntervalMinutes < 1 || 60%c.Sensors.CheckIntervalMinutes != 0 {
		errs = append(errs, "sensors.check_interval_minutes must divide 60")
	}
	if c.Sensors.RetentionDays < 2 {
		errs = append(errs, "sensors.retention_days must be at least 2")
	}

	if c.Persistence.Enabled && c.Persistence.Schedule == "" {
		errs = append(errs, "persistence.schedule is required when persistence is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// CheckInterval returns the sensor check interval as a Duration.
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.Sensors.CheckIntervalMinutes) * time.Minute
}

// Retention returns the sensor data retention window as a Duration.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Sensors.RetentionDays) * 24 * time.Hour
}

// TimeLocation returns the site time zone, falling back to UTC.
func (c *Config) TimeLocation() *time.Location {
	loc, err := time.LoadLocation(c.Site.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
