package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pantry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, SyncFull, cfg.Sync.Mode)
	assert.NoError(t, cfg.Validate())
}

func TestMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	def := DefaultConfig()
	assert.Equal(t, def.HTTP, cfg.HTTP)
	assert.Equal(t, def.Sync, cfg.Sync)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, `
http:
  addr: ":9000"
store:
  driver: redis
  collection: kitchen
  redis:
    addr: "localhost:6379"
sync:
  mode: local
  interval: 5s
  keep_zero: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, DriverRedis, cfg.Store.Driver)
	assert.Equal(t, "kitchen", cfg.Store.Collection)
	assert.Equal(t, "localhost:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, SyncLocal, cfg.Sync.Mode)
	assert.Equal(t, 5*time.Second, cfg.Sync.Interval)
	assert.True(t, cfg.Sync.KeepZero)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ShutdownTimeout, "unset fields keep defaults")
	assert.NoError(t, cfg.Validate())
}

func TestBadYAML(t *testing.T) {
	_, err := Load(writeFile(t, "store: [unclosed"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PANTRY_STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/pantry")
	t.Setenv("OTEL_HOST", "collector:4317")
	t.Setenv("PANTRY_KEEP_ZERO", "true")
	t.Setenv("PANTRY_SYNC_INTERVAL", "1m")
	t.Setenv("PANTRY_REDIS_DB", "3")

	cfg, err := Load(writeFile(t, "store:\n  driver: sqlite\n"))
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/pantry", cfg.Store.Postgres.DSN)
	assert.Equal(t, "collector:4317", cfg.Tracing.Host)
	assert.True(t, cfg.Sync.KeepZero)
	assert.Equal(t, time.Minute, cfg.Sync.Interval)
	assert.Equal(t, 3, cfg.Store.Redis.DB)
	assert.NoError(t, cfg.Validate())
}

func TestBadEnvValues(t *testing.T) {
	t.Setenv("PANTRY_KEEP_ZERO", "maybe")
	t.Setenv("PANTRY_SYNC_INTERVAL", "soon")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PANTRY_KEEP_ZERO")
	assert.Contains(t, err.Error(), "PANTRY_SYNC_INTERVAL")
}

func TestValidateFailsFast(t *testing.T) {
	cases := map[string]func(c *Config){
		"postgres dsn":   func(c *Config) { c.Store.Driver = DriverPostgres },
		"redis addr":     func(c *Config) { c.Store.Driver = DriverRedis },
		"s3 bucket":      func(c *Config) { c.Store.Driver = DriverS3 },
		"s3 key pair":    func(c *Config) { c.Store.Driver = DriverS3; c.Store.S3.Bucket = "b"; c.Store.S3.AccessKeyID = "id" },
		"unknown driver": func(c *Config) { c.Store.Driver = "mongo" },
		"sync mode":      func(c *Config) { c.Sync.Mode = "eventual" },
		"local interval": func(c *Config) { c.Sync.Mode = SyncLocal; c.Sync.Interval = 0 },
		"tls pair":       func(c *Config) { c.HTTP.CertFile = "cert.pem" },
		"log level":      func(c *Config) { c.Log.Level = "loud" },
		"probability":    func(c *Config) { c.Tracing.Probability = 2 },
		"pg sql driver":  func(c *Config) { c.Store.Driver = DriverPostgres; c.Store.Postgres.DSN = "x"; c.Store.Postgres.SQLDriver = "odbc" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
