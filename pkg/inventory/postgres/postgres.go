// Package postgres persists inventory records in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	_ "github.com/lib/pq"              // registers "postgres"

	"pantry/pkg/inventory"
	"pantry/pkg/inventory/sqlstore"
)

// Drivers accepted by Open.
const (
	DriverPQ  = "postgres"
	DriverPGX = "pgx"
)

// Store is a PostgreSQL-backed inventory.Store.
type Store struct {
	*sqlstore.Store
}

var _ inventory.Store = (*Store)(nil)

// New wraps an open database. The caller owns db.
func New(db *sql.DB, table string) (*Store, error) {
	s, err := sqlstore.New(db, table, sqlstore.Dollar)
	if err != nil {
		return nil, err
	}
	return &Store{Store: s}, nil
}

// Open connects with driver (DriverPQ when empty), pings the server and
// creates the table if needed.
func Open(ctx context.Context, driver, dsn, table string) (*Store, error) {
	if driver == "" {
		driver = DriverPQ
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s, err := New(db, table)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.DB().Close() }
