// Package app assembles a store and an inventory service from configuration.
// Both binaries build on it.
package app

import (
	"context"
	"fmt"

	"pantry/pkg/config"
	"pantry/pkg/inventory"
	"pantry/pkg/inventory/memory"
	"pantry/pkg/inventory/postgres"
	"pantry/pkg/inventory/redis"
	"pantry/pkg/inventory/s3"
	"pantry/pkg/inventory/sqlite"
	"pantry/pkg/logger"
	"pantry/pkg/metrics"
)

// OpenStore connects the configured backend. The returned close func is
// never nil.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (inventory.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Driver {
	case config.DriverMemory, "":
		return memory.New(), noop, nil
	case config.DriverPostgres:
		s, err := postgres.Open(ctx, cfg.Postgres.SQLDriver, cfg.Postgres.DSN, cfg.Collection)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLite.Path, cfg.Collection)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	case config.DriverRedis:
		s, err := redis.Open(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Collection)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	case config.DriverS3:
		prefix := cfg.S3.Prefix
		if prefix == "" {
			prefix = cfg.Collection + "/"
		}
		s, err := s3.New(ctx, s3.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			PathStyle:       cfg.S3.PathStyle,
			Prefix:          prefix,
		})
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	}
	return nil, noop, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

// NewService opens the store from cfg and builds a service over it. The
// store is instrumented when m is not nil. The caller must call close.
func NewService(ctx context.Context, cfg *config.Config, log *logger.Logger, m *metrics.Metrics) (*inventory.Service, func() error, error) {
	store, closeFn, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, closeFn, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	opts := Options(cfg.Sync, log)
	if m != nil {
		store = metrics.InstrumentStore(store, m, cfg.Store.Driver)
		opts.Recorder = m
	}
	return inventory.NewService(store, opts), closeFn, nil
}

// Options maps sync settings onto service options.
func Options(cfg config.SyncConfig, log *logger.Logger) inventory.Options {
	return inventory.Options{
		KeepZero:      cfg.KeepZero,
		LocalApply:    cfg.Mode == config.SyncLocal,
		MaxAttempts:   cfg.MaxAttempts,
		RetryInterval: cfg.RetryInterval,
		Logger:        log,
	}
}
