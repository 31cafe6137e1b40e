// Package config loads contentver settings from an optional file and
// CONTENTVER_* environment variables
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable
const EnvPrefix = "CONTENTVER"

// Store backends
const (
	BackendMemory    = "memory"
	BackendSQLite    = "sqlite"
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
)

type Config struct {
	Log       LogSettings       `mapstructure:"log"`
	Store     StoreSettings     `mapstructure:"store"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	Versions  VersionSettings   `mapstructure:"versions"`
	Outbox    OutboxSettings    `mapstructure:"outbox"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
}

type LogSettings struct {
	Level      string `mapstructure:"level"`
	Pretty     bool   `mapstructure:"pretty"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// StoreSettings selects and configures the document store backend
type StoreSettings struct {
	Backend    string            `mapstructure:"backend"`
	Collection string            `mapstructure:"collection"`
	SQLite     SQLiteSettings    `mapstructure:"sqlite"`
	Postgres   PostgresSettings  `mapstructure:"postgres"`
	Firestore  FirestoreSettings `mapstructure:"firestore"`
}

type SQLiteSettings struct {
	Path string `mapstructure:"path"`
}

type PostgresSettings struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MigrateOnStart  bool          `mapstructure:"migrate_on_start"`
}

type FirestoreSettings struct {
	ProjectID string `mapstructure:"project_id"`
}

// RedisSettings configures the optional Redis sequence source; empty Addr
// leaves sequencing to the document store
type RedisSettings struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// Enabled reports whether a Redis address is configured
func (r RedisSettings) Enabled() bool {
	return r.Addr != ""
}

// KafkaSettings configures the change-event producer; no brokers disables it
type KafkaSettings struct {
	Brokers  []string `mapstructure:"brokers"`
	Topic    string   `mapstructure:"topic"`
	ClientID string   `mapstructure:"client_id"`
}

// Enabled reports whether any broker is configured
func (k KafkaSettings) Enabled() bool {
	return len(k.Brokers) > 0
}

type VersionSettings struct {
	MaxPerField    int    `mapstructure:"max_per_field"`
	OverflowBuffer int    `mapstructure:"overflow_buffer"`
	AsyncRetention bool   `mapstructure:"async_retention"`
	DiffMode       string `mapstructure:"diff_mode"`
}

// OutboxSettings configures the local queue for saves made while the store
// is unavailable
type OutboxSettings struct {
	Enabled        bool   `mapstructure:"enabled"`
	Dir            string `mapstructure:"dir"`
	ReplaySchedule string `mapstructure:"replay_schedule"`
	MaxSegmentMB   int    `mapstructure:"max_segment_mb"`
}

type TelemetrySettings struct {
	MetricsPort  int     `mapstructure:"metrics_port"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

var keys = []string{
	"log.level",
	"log.pretty",
	"log.file",
	"log.max_size_mb",
	"log.max_backups",
	"log.max_age_days",
	"store.backend",
	"store.collection",
	"store.sqlite.path",
	"store.postgres.dsn",
	"store.postgres.max_conns",
	"store.postgres.min_conns",
	"store.postgres.max_conn_lifetime",
	"store.postgres.migrate_on_start",
	"store.firestore.project_id",
	"redis.addr",
	"redis.password",
	"redis.db",
	"redis.key_prefix",
	"kafka.brokers",
	"kafka.topic",
	"kafka.client_id",
	"versions.max_per_field",
	"versions.overflow_buffer",
	"versions.async_retention",
	"versions.diff_mode",
	"outbox.enabled",
	"outbox.dir",
	"outbox.replay_schedule",
	"outbox.max_segment_mb",
	"telemetry.metrics_port",
	"telemetry.otlp_endpoint",
	"telemetry.service_name",
	"telemetry.sampling_rate",
}

// Load reads defaults, then file (when non-empty), then the environment
func Load(file string) (*Config, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(EnvPrefix)

	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	if err := bindEnvs(v, keys); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 28)

	v.SetDefault("store.backend", BackendSQLite)
	v.SetDefault("store.collection", "content_versions")
	v.SetDefault("store.sqlite.path", "./data/contentver.db")
	v.SetDefault("store.postgres.max_conns", 10)
	v.SetDefault("store.postgres.min_conns", 2)
	v.SetDefault("store.postgres.max_conn_lifetime", "60m")
	v.SetDefault("store.postgres.migrate_on_start", true)

	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "contentver:seq")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "contentver.versions")
	v.SetDefault("kafka.client_id", "contentver")

	v.SetDefault("versions.max_per_field", 50)
	v.SetDefault("versions.overflow_buffer", 10)
	v.SetDefault("versions.async_retention", false)
	v.SetDefault("versions.diff_mode", "shallow")

	v.SetDefault("outbox.enabled", true)
	v.SetDefault("outbox.dir", "./data/outbox")
	v.SetDefault("outbox.replay_schedule", "@every 30s")
	v.SetDefault("outbox.max_segment_mb", 16)

	v.SetDefault("telemetry.metrics_port", 9090)
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "contentver")
	v.SetDefault("telemetry.sampling_rate", 1.0)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, EnvPrefix+"_"+envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}

// Validate reports every setting that cannot work
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Store.SQLite.Path == "" {
			errs = append(errs, errors.New("store.sqlite.path is required for the sqlite backend"))
		}
	case BackendPostgres:
		if c.Store.Postgres.DSN == "" {
			errs = append(errs, errors.New("store.postgres.dsn is required for the postgres backend"))
		}
	case BackendFirestore:
		if c.Store.Firestore.ProjectID == "" {
			errs = append(errs, errors.New("store.firestore.project_id is required for the firestore backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend %q is not one of memory, sqlite, postgres, firestore", c.Store.Backend))
	}

	if c.Versions.MaxPerField <= 0 {
		errs = append(errs, fmt.Errorf("versions.max_per_field must be positive, got %d", c.Versions.MaxPerField))
	}
	if c.Versions.OverflowBuffer < 0 {
		errs = append(errs, fmt.Errorf("versions.overflow_buffer must not be negative, got %d", c.Versions.OverflowBuffer))
	}
	if c.Versions.DiffMode != "shallow" && c.Versions.DiffMode != "deep" {
		errs = append(errs, fmt.Errorf("versions.diff_mode %q is not shallow or deep", c.Versions.DiffMode))
	}

	if c.Outbox.Enabled {
		if c.Outbox.Dir == "" {
			errs = append(errs, errors.New("outbox.dir is required when the outbox is enabled"))
		}
		if _, err := cron.ParseStandard(c.Outbox.ReplaySchedule); err != nil {
			errs = append(errs, fmt.Errorf("outbox.replay_schedule: %w", err))
		}
	}

	if c.Telemetry.SamplingRate < 0 || c.Telemetry.SamplingRate > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sampling_rate must be within [0, 1], got %v", c.Telemetry.SamplingRate))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
