// Package storetest holds the behavioural contract every inventory.Store
// implementation is tested against.
package storetest

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pantry/pkg/inventory"
)

// Factory returns an empty store. Cleanup is registered on t.
type Factory func(t *testing.T) inventory.Store

// Run exercises store semantics shared by all backends.
func Run(t *testing.T, newStore Factory) {
	t.Helper()
	cases := []struct {
		name string
		fn   func(t *testing.T, s inventory.Store)
	}{
		{"GetMissing", testGetMissing},
		{"CreateAndGet", testCreateAndGet},
		{"CreateDuplicate", testCreateDuplicate},
		{"UpdateChecksRevision", testUpdateChecksRevision},
		{"UpdateUnconditional", testUpdateUnconditional},
		{"UpdateMissing", testUpdateMissing},
		{"DeleteChecksRevision", testDeleteChecksRevision},
		{"DeleteMissingIsNoop", testDeleteMissing},
		{"RecreateGetsFreshRevision", testRecreate},
		{"ListReturnsEverything", testList},
		{"NamesAreCaseSensitive", testCaseSensitive},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newStore(t))
		})
	}
}

func testGetMissing(t *testing.T, s inventory.Store) {
	_, err := s.Get(context.Background(), "Nothing")
	assert.ErrorIs(t, err, inventory.ErrNotFound)
}

func testCreateAndGet(t *testing.T, s inventory.Store) {
	ctx := context.Background()
	created, err := s.Create(ctx, inventory.Record{Name: "Apple", Quantity: 3})
	require.NoError(t, err)
	assert.Equal(t, "Apple", created.Name)
	assert.Equal(t, 3, created.Quantity)
	assert.NotEmpty(t, created.Revision)

	got, err := s.Get(ctx, "Apple")
	require.NoError(t, err)
	assert.Equal(t, created, got)
}

func testCreateDuplicate(t *testing.T, s inventory.Store) {
	ctx := context.Background()
	_, err := s.Create(ctx, inventory.Record{Name: "Apple", Quantity: 1})
	require.NoError(t, err)
	_, err = s.Create(ctx, inventory.Record{Name: "Apple", Quantity: 7})
	assert.ErrorIs(t, err, inventory.ErrExists)

	got, err := s.Get(ctx, "Apple")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Quantity)
}

func testUpdateChecksRevision(t *testing.T, s inventory.Store) {
	ctx := context.Background()
	first, err := s.Create(ctx, inventory.Record{Name: "Milk", Quantity: 1})
	require.NoError(t, err)

	first.Quantity = 2
	second, err := s.Update(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Quantity)
	assert.NotEqual(t, first.Revision, second.Revision)

	first.Quantity = 9
	_, err = s.Update(ctx, first)
	assert.ErrorIs(t, err, inventory.ErrConflict)

	got, err := s.Get(ctx, "Milk")
	require.NoError(t, err)
	assert.Equal(t, second, got)
}

func testUpdateUnconditional(t *testing.T, s inventory.Store) {
	ctx := context.Background()
	_, err := s.Create(ctx, inventory.Record{Name: "Milk", Quantity: 1})
	require.NoError(t, err)

	updated, err := s.Update(ctx, inventory.Record{Name: "Milk", Quantity: 5})
	require.NoError(t, err)
	assert.Equal(t, 5, updated.Quantity)

	got, err := s.Get(ctx, "Milk")
	require.NoError(t, err)
	assert.Equal(t, 5, got.Quantity)
}

func testUpdateMissing(t *testing.T, s inventory.Store) {
	_, err := s.Update(context.Background(), inventory.Record{Name: "Ghost", Quantity: 1})
	assert.ErrorIs(t, err, inventory.ErrNotFound)

	_, err = s.Update(context.Background(), inventory.Record{Name: "Ghost", Quantity: 1, Revision: "stale"})
	assert.ErrorIs(t, err, inventory.ErrNotFound)
}

func testDeleteChecksRevision(t *testing.T, s inventory.Store) {
	ctx := context.Background()
	first, err := s.Create(ctx, inventory.Record{Name: "Bread", Quantity: 1})
	require.NoError(t, err)
	second, err := s.Update(ctx, inventory.Record{Name: "Bread", Quantity: 2, Revision: first.Revision})
	require.NoError(t, err)

	assert.ErrorIs(t, s.Delete(ctx, "Bread", first.Revision), inventory.ErrConflict)
	_, err = s.Get(ctx, "Bread")
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "Bread", second.Revision))
	_, err = s.Get(ctx, "Bread")
	assert.ErrorIs(t, err, inventory.ErrNotFound)
}

func testDeleteMissing(t *testing.T, s inventory.Store) {
	ctx := context.Background()
	assert.NoError(t, s.Delete(ctx, "Ghost", ""))
	assert.NoError(t, s.Delete(ctx, "Ghost", "some-revision"))

	created, err := s.Create(ctx, inventory.Record{Name: "Egg", Quantity: 1})
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "Egg", ""))
	assert.NoError(t, s.Delete(ctx, "Egg", created.Revision))
}

func testRecreate(t *testing.T, s inventory.Store) {
	ctx := context.Background()
	old, err := s.Create(ctx, inventory.Record{Name: "Salt", Quantity: 1})
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "Salt", old.Revision))

	fresh, err := s.Create(ctx, inventory.Record{Name: "Salt", Quantity: 1})
	require.NoError(t, err)
	assert.NotEqual(t, old.Revision, fresh.Revision)

	_, err = s.Update(ctx, inventory.Record{Name: "Salt", Quantity: 4, Revision: old.Revision})
	assert.ErrorIs(t, err, inventory.ErrConflict)
}

func testList(t *testing.T, s inventory.Store) {
	ctx := context.Background()
	recs, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)

	want := map[string]int{"Apple": 3, "Bread": 1, "Rice, long grain": 2, `Chili "hot"`: 5}
	for name, q := range want {
		_, err := s.Create(ctx, inventory.Record{Name: name, Quantity: q})
		require.NoError(t, err)
	}

	recs, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, len(want))
	sort.Slice(recs, func(i, j int) bool { return recs[i].Name < recs[j].Name })
	for _, r := range recs {
		assert.Equal(t, want[r.Name], r.Quantity, r.Name)
		assert.NotEmpty(t, r.Revision, r.Name)
	}
}

func testCaseSensitive(t *testing.T, s inventory.Store) {
	ctx := context.Background()
	_, err := s.Create(ctx, inventory.Record{Name: "Apple", Quantity: 1})
	require.NoError(t, err)
	_, err = s.Create(ctx, inventory.Record{Name: "APPLE", Quantity: 2})
	require.NoError(t, err)

	recs, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}
