// Package inventory keeps a local replica of a named collection of item
// counters in sync with a backing document store.
package inventory

import (
	"context"
	"errors"
)

// DefaultCollection is the collection name used when none is configured.
const DefaultCollection = "inventory"

// Item is a named counter as shown to callers.
type Item struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// Record is an Item as held by a Store. Revision is an opaque token that
// changes on every write; an empty Revision disables the precondition.
type Record struct {
	Name     string
	Quantity int
	Revision string
}

// Item drops the store metadata.
func (r Record) Item() Item {
	return Item{Name: r.Name, Quantity: r.Quantity}
}

// Store is the document store capability the service depends on. All
// records of one collection are keyed by item name.
type Store interface {
	// List returns every record in store order.
	List(ctx context.Context) ([]Record, error)
	// Get returns ErrNotFound when the key is absent.
	Get(ctx context.Context, name string) (Record, error)
	// Create returns ErrExists when the key is already present.
	Create(ctx context.Context, r Record) (Record, error)
	// Update overwrites the quantity of an existing record. It returns
	// ErrNotFound when the key is absent and ErrConflict when r.Revision is
	// set and no longer current.
	Update(ctx context.Context, r Record) (Record, error)
	// Delete succeeds when the key is absent. It returns ErrConflict when
	// revision is set and no longer current.
	Delete(ctx context.Context, name, revision string) error
}

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("inventory item not found")
	// ErrExists indicates a create raced with another writer.
	ErrExists = errors.New("inventory item already exists")
	// ErrConflict indicates a revision-checked write lost a race.
	ErrConflict = errors.New("inventory item was modified concurrently")
	// ErrValidation indicates caller input was rejected before any write.
	ErrValidation = errors.New("invalid inventory input")
	// ErrUnavailable indicates the backing store could not be reached or
	// refused the call.
	ErrUnavailable = errors.New("inventory store unavailable")
)
