// Package config loads pantry settings: defaults, then an optional YAML file,
// then environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
	DriverS3       = "s3"
)

// Sync modes.
const (
	SyncFull  = "full"
	SyncLocal = "local"
)

// Config is the full process configuration.
type Config struct {
	Service string        `yaml:"service"`
	HTTP    HTTPConfig    `yaml:"http"`
	Log     LogConfig     `yaml:"log"`
	Tracing TracingConfig `yaml:"tracing"`
	Store   StoreConfig   `yaml:"store"`
	Sync    SyncConfig    `yaml:"sync"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	CertFile        string        `yaml:"cert_file"`
	KeyFile         string        `yaml:"key_file"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TLS reports whether a certificate pair is configured.
func (h HTTPConfig) TLS() bool { return h.CertFile != "" && h.KeyFile != "" }

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Host        string  `yaml:"host"`
	Probability float64 `yaml:"probability"`
	Stdout      bool    `yaml:"stdout"`
}

// StoreConfig selects and configures the backing store.
type StoreConfig struct {
	Driver     string         `yaml:"driver"`
	Collection string         `yaml:"collection"`
	Postgres   PostgresConfig `yaml:"postgres"`
	SQLite     SQLiteConfig   `yaml:"sqlite"`
	Redis      RedisConfig    `yaml:"redis"`
	S3         S3Config       `yaml:"s3"`
}

// PostgresConfig configures the postgres driver.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
	// SQLDriver is the database/sql driver name: "postgres" (lib/pq) or "pgx".
	SQLDriver string `yaml:"sql_driver"`
}

// SQLiteConfig configures the sqlite driver.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig configures the redis driver.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// S3Config configures the s3 driver.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	PathStyle       bool   `yaml:"path_style"`
	Prefix          string `yaml:"prefix"`
}

// SyncConfig tunes the inventory service.
type SyncConfig struct {
	Mode          string        `yaml:"mode"`
	Interval      time.Duration `yaml:"interval"`
	KeepZero      bool          `yaml:"keep_zero"`
	MaxAttempts   uint          `yaml:"max_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Service: "pantry",
		HTTP: HTTPConfig{
			Addr:            ":8443",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log:     LogConfig{Level: "info"},
		Tracing: TracingConfig{Probability: 1.0},
		Store: StoreConfig{
			Driver:     DriverMemory,
			Collection: "inventory",
			Postgres:   PostgresConfig{SQLDriver: "postgres"},
			SQLite:     SQLiteConfig{Path: "pantry.db"},
			S3:         S3Config{Region: "us-east-1"},
		},
		Sync: SyncConfig{
			Mode:          SyncFull,
			Interval:      30 * time.Second,
			MaxAttempts:   5,
			RetryInterval: 10 * time.Millisecond,
		},
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty or missing path yields defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				*dst = v
			}
		}
	}
	str(&c.HTTP.Addr, "PANTRY_HTTP_ADDR")
	str(&c.HTTP.CertFile, "PANTRY_TLS_CERT")
	str(&c.HTTP.KeyFile, "PANTRY_TLS_KEY")
	str(&c.Log.Level, "PANTRY_LOG_LEVEL")
	str(&c.Tracing.Host, "OTEL_HOST", "PANTRY_OTEL_HOST")
	str(&c.Store.Driver, "PANTRY_STORE_DRIVER")
	str(&c.Store.Collection, "PANTRY_STORE_COLLECTION")
	str(&c.Store.Postgres.DSN, "DATABASE_URL", "PANTRY_POSTGRES_DSN")
	str(&c.Store.Postgres.SQLDriver, "PANTRY_POSTGRES_SQL_DRIVER")
	str(&c.Store.SQLite.Path, "PANTRY_SQLITE_PATH")
	str(&c.Store.Redis.Addr, "REDIS_ADDR", "PANTRY_REDIS_ADDR")
	str(&c.Store.Redis.Password, "PANTRY_REDIS_PASSWORD")
	str(&c.Store.S3.Bucket, "PANTRY_S3_BUCKET")
	str(&c.Store.S3.Region, "PANTRY_S3_REGION")
	str(&c.Store.S3.Endpoint, "PANTRY_S3_ENDPOINT")
	str(&c.Store.S3.AccessKeyID, "PANTRY_S3_ACCESS_KEY_ID")
	str(&c.Store.S3.SecretAccessKey, "PANTRY_S3_SECRET_ACCESS_KEY")
	str(&c.Store.S3.Prefix, "PANTRY_S3_PREFIX")
	str(&c.Sync.Mode, "PANTRY_SYNC_MODE")

	var errs []error
	boolean := func(dst *bool, key string) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	boolean(&c.Store.S3.PathStyle, "PANTRY_S3_PATH_STYLE")
	boolean(&c.Sync.KeepZero, "PANTRY_KEEP_ZERO")
	boolean(&c.Tracing.Stdout, "PANTRY_TRACE_STDOUT")

	if v := os.Getenv("PANTRY_REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("PANTRY_REDIS_DB: %w", err))
		} else {
			c.Store.Redis.DB = n
		}
	}
	if v := os.Getenv("PANTRY_SYNC_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("PANTRY_SYNC_INTERVAL: %w", err))
		} else {
			c.Sync.Interval = d
		}
	}
	return errors.Join(errs...)
}

// Validate reports every missing or inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("log.level: unknown level %q", c.Log.Level)
	}
	if c.Tracing.Probability < 0 || c.Tracing.Probability > 1 {
		add("tracing.probability: %v outside [0,1]", c.Tracing.Probability)
	}
	if (c.HTTP.CertFile == "") != (c.HTTP.KeyFile == "") {
		add("http: cert_file and key_file must be set together")
	}
	if c.Store.Collection == "" {
		add("store.collection: required")
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Store.Postgres.DSN == "" {
			add("store.postgres.dsn: required for the postgres driver")
		}
		if d := c.Store.Postgres.SQLDriver; d != "postgres" && d != "pgx" {
			add("store.postgres.sql_driver: want postgres or pgx, got %q", d)
		}
	case DriverSQLite:
		if c.Store.SQLite.Path == "" {
			add("store.sqlite.path: required for the sqlite driver")
		}
	case DriverRedis:
		if c.Store.Redis.Addr == "" {
			add("store.redis.addr: required for the redis driver")
		}
	case DriverS3:
		if c.Store.S3.Bucket == "" {
			add("store.s3.bucket: required for the s3 driver")
		}
		if (c.Store.S3.AccessKeyID == "") != (c.Store.S3.SecretAccessKey == "") {
			add("store.s3: access_key_id and secret_access_key must be set together")
		}
	default:
		add("store.driver: unknown driver %q", c.Store.Driver)
	}

	switch c.Sync.Mode {
	case SyncFull, SyncLocal:
	default:
		add("sync.mode: want %s or %s, got %q", SyncFull, SyncLocal, c.Sync.Mode)
	}
	if c.Sync.Mode == SyncLocal && c.Sync.Interval <= 0 {
		add("sync.interval: must be positive in local mode")
	}
	if c.Sync.MaxAttempts == 0 {
		add("sync.max_attempts: must be at least 1")
	}
	return errors.Join(errs...)
}
