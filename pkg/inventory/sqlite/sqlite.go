// Package sqlite persists inventory records in a SQLite file using the pure
// Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"pantry/pkg/inventory"
	"pantry/pkg/inventory/sqlstore"
)

// DefaultPath is used when Open receives an empty path.
const DefaultPath = "pantry.db"

// Store is a SQLite-backed inventory.Store.
type Store struct {
	*sqlstore.Store
}

var _ inventory.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and its table.
func Open(ctx context.Context, path, table string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer at a time; avoids SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)
	s, err := sqlstore.New(db, table, sqlstore.Question)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: s}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.DB().Close() }
