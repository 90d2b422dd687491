package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pantry/pkg/inventory"
	"pantry/pkg/inventory/storetest"
)

func open(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(context.Background(), path, inventory.DefaultCollection)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) inventory.Store {
		return open(t, filepath.Join(t.TempDir(), "pantry.db"))
	})
}

func TestDataSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "pantry.db")

	s, err := Open(ctx, path, inventory.DefaultCollection)
	require.NoError(t, err)
	created, err := s.Create(ctx, inventory.Record{Name: "Flour", Quantity: 2})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	again := open(t, path)
	got, err := again.Get(ctx, "Flour")
	require.NoError(t, err)
	assert.Equal(t, created, got)
}

func TestServiceOverSQLite(t *testing.T) {
	ctx := context.Background()
	svc := inventory.NewService(open(t, filepath.Join(t.TempDir(), "pantry.db")), inventory.Options{})
	require.NoError(t, svc.Refresh(ctx))

	_, err := svc.Increment(ctx, "apple")
	require.NoError(t, err)
	_, err = svc.Increment(ctx, "apple")
	require.NoError(t, err)
	_, _, err = svc.SetQuantity(ctx, "bread", 4)
	require.NoError(t, err)
	_, removed, err := svc.Decrement(ctx, "apple")
	require.NoError(t, err)
	assert.False(t, removed)

	assert.Equal(t, []inventory.Item{{Name: "Apple", Quantity: 1}, {Name: "Bread", Quantity: 4}}, svc.Items())
	assert.Equal(t, "Item,Quantity\nApple,1\nBread,4", svc.CSV())
}
