package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pantry/pkg/config"
	"pantry/pkg/inventory"
	"pantry/pkg/inventory/memory"
	"pantry/pkg/inventory/redis"
	"pantry/pkg/inventory/sqlite"
	"pantry/pkg/logger"
	"pantry/pkg/metrics"
)

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	cases := []struct {
		name  string
		cfg   config.StoreConfig
		check func(t *testing.T, s inventory.Store)
	}{
		{"memory", config.StoreConfig{Driver: config.DriverMemory, Collection: "inventory"}, func(t *testing.T, s inventory.Store) {
			assert.IsType(t, &memory.Store{}, s)
		}},
		{"sqlite", config.StoreConfig{Driver: config.DriverSQLite, Collection: "inventory", SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "p.db")}}, func(t *testing.T, s inventory.Store) {
			assert.IsType(t, &sqlite.Store{}, s)
		}},
		{"redis", config.StoreConfig{Driver: config.DriverRedis, Collection: "inventory", Redis: config.RedisConfig{Addr: mr.Addr()}}, func(t *testing.T, s inventory.Store) {
			assert.IsType(t, &redis.Store{}, s)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, closeFn, err := OpenStore(ctx, tc.cfg)
			require.NoError(t, err)
			defer closeFn()
			tc.check(t, s)
			_, err = s.Create(ctx, inventory.Record{Name: "Tea", Quantity: 1})
			assert.NoError(t, err)
		})
	}
}

func TestOpenStoreErrors(t *testing.T) {
	_, closeFn, err := OpenStore(context.Background(), config.StoreConfig{Driver: "mongo"})
	assert.Error(t, err)
	assert.NoError(t, closeFn())

	_, _, err = OpenStore(context.Background(), config.StoreConfig{Driver: config.DriverS3})
	assert.ErrorIs(t, err, inventory.ErrValidation)
}

func TestNewServiceFromConfig(t *testing.T) {
	ctx := context.Background()
	cfg := config.DefaultConfig()
	cfg.Sync.Mode = config.SyncLocal
	cfg.Sync.KeepZero = true

	svc, closeFn, err := NewService(ctx, cfg, logger.NewNop(), metrics.New(false))
	require.NoError(t, err)
	defer closeFn()
	require.NoError(t, svc.Refresh(ctx))

	_, _, err = svc.SetQuantity(ctx, "rice", 0)
	require.NoError(t, err)
	assert.Equal(t, []inventory.Item{{Name: "Rice", Quantity: 0}}, svc.Items())
}
