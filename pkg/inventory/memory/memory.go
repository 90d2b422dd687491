// Package memory implements an in-memory inventory store.
package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"pantry/pkg/inventory"
)

type entry struct {
	quantity int
	version  uint64
}

// Store provides an in-memory implementation of inventory.Store. List
// returns records ordered by name.
type Store struct {
	mu      sync.RWMutex
	items   map[string]entry
	version uint64
}

var _ inventory.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{items: make(map[string]entry)}
}

// List returns all records.
func (s *Store) List(ctx context.Context) ([]inventory.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]inventory.Record, 0, len(s.items))
	for name, e := range s.items {
		out = append(out, record(name, e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Get retrieves a record by name.
func (s *Store) Get(ctx context.Context, name string) (inventory.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.items[name]
	if !ok {
		return inventory.Record{}, inventory.ErrNotFound
	}
	return record(name, e), nil
}

// Create stores a new record.
func (s *Store) Create(ctx context.Context, r inventory.Record) (inventory.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[r.Name]; ok {
		return inventory.Record{}, inventory.ErrExists
	}
	e := entry{quantity: r.Quantity, version: s.next()}
	s.items[r.Name] = e
	return record(r.Name, e), nil
}

// Update replaces the quantity of an existing record.
func (s *Store) Update(ctx context.Context, r inventory.Record) (inventory.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[r.Name]
	if !ok {
		return inventory.Record{}, inventory.ErrNotFound
	}
	if r.Revision != "" && r.Revision != revision(e.version) {
		return inventory.Record{}, inventory.ErrConflict
	}
	e = entry{quantity: r.Quantity, version: s.next()}
	s.items[r.Name] = e
	return record(r.Name, e), nil
}

// Delete removes a record by name.
func (s *Store) Delete(ctx context.Context, name, rev string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[name]
	if !ok {
		return nil
	}
	if rev != "" && rev != revision(e.version) {
		return inventory.ErrConflict
	}
	delete(s.items, name)
	return nil
}

// next must be called with mu held. Versions are global so a recreated key
// never reuses an old revision.
func (s *Store) next() uint64 {
	s.version++
	return s.version
}

func record(name string, e entry) inventory.Record {
	return inventory.Record{Name: name, Quantity: e.quantity, Revision: revision(e.version)}
}

func revision(v uint64) string {
	return strconv.FormatUint(v, 10)
}
