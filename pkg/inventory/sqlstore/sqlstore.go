// Package sqlstore implements inventory.Store on top of database/sql. Each
// record carries a random revision token that every write replaces, so a
// deleted and recreated row never matches an old revision.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"

	"pantry/pkg/inventory"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Placeholder renders the n-th (1-based) bind parameter of a dialect.
type Placeholder func(n int) string

// Dollar is the Postgres placeholder style.
func Dollar(n int) string { return fmt.Sprintf("$%d", n) }

// Question is the SQLite placeholder style.
func Question(int) string { return "?" }

type queries struct {
	schema   string
	list     string
	get      string
	insert   string
	update   string
	updateIf string
	delete   string
	deleteIf string
}

func buildQueries(table string, p Placeholder) queries {
	return queries{
		schema: fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	name TEXT PRIMARY KEY,
	quantity INTEGER NOT NULL,
	revision TEXT NOT NULL
)`, table),
		list:     fmt.Sprintf("SELECT name, quantity, revision FROM %s ORDER BY name", table),
		get:      fmt.Sprintf("SELECT name, quantity, revision FROM %s WHERE name=%s", table, p(1)),
		insert:   fmt.Sprintf("INSERT INTO %s (name, quantity, revision) VALUES (%s,%s,%s) ON CONFLICT (name) DO NOTHING", table, p(1), p(2), p(3)),
		update:   fmt.Sprintf("UPDATE %s SET quantity=%s, revision=%s WHERE name=%s", table, p(1), p(2), p(3)),
		updateIf: fmt.Sprintf("UPDATE %s SET quantity=%s, revision=%s WHERE name=%s AND revision=%s", table, p(1), p(2), p(3), p(4)),
		delete:   fmt.Sprintf("DELETE FROM %s WHERE name=%s", table, p(1)),
		deleteIf: fmt.Sprintf("DELETE FROM %s WHERE name=%s AND revision=%s", table, p(1), p(2)),
	}
}

// Store persists records in one SQL table.
type Store struct {
	db *sql.DB
	q  queries
}

var _ inventory.Store = (*Store)(nil)

// New returns a Store over table. The table name must be a plain identifier.
func New(db *sql.DB, table string, p Placeholder) (*Store, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("%w: invalid table name %q", inventory.ErrValidation, table)
	}
	return &Store{db: db, q: buildQueries(table, p)}, nil
}

// EnsureSchema creates the table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.q.schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// List fetches all records ordered by name.
func (s *Store) List(ctx context.Context) ([]inventory.Record, error) {
	rows, err := s.db.QueryContext(ctx, s.q.list)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []inventory.Record
	for rows.Next() {
		var r inventory.Record
		if err := rows.Scan(&r.Name, &r.Quantity, &r.Revision); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Get retrieves a record by name.
func (s *Store) Get(ctx context.Context, name string) (inventory.Record, error) {
	var r inventory.Record
	err := s.db.QueryRowContext(ctx, s.q.get, name).Scan(&r.Name, &r.Quantity, &r.Revision)
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.Record{}, inventory.ErrNotFound
	}
	if err != nil {
		return inventory.Record{}, fmt.Errorf("get %q: %w", name, err)
	}
	return r, nil
}

// Create inserts a new record.
func (s *Store) Create(ctx context.Context, r inventory.Record) (inventory.Record, error) {
	r.Revision = uuid.NewString()
	res, err := s.db.ExecContext(ctx, s.q.insert, r.Name, r.Quantity, r.Revision)
	if err != nil {
		return inventory.Record{}, fmt.Errorf("insert %q: %w", r.Name, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return inventory.Record{}, fmt.Errorf("insert %q: %w", r.Name, err)
	} else if n == 0 {
		return inventory.Record{}, inventory.ErrExists
	}
	return r, nil
}

// Update overwrites the quantity of an existing record. A non-empty revision
// must match the stored one.
func (s *Store) Update(ctx context.Context, r inventory.Record) (inventory.Record, error) {
	next := uuid.NewString()
	var (
		res sql.Result
		err error
	)
	if r.Revision == "" {
		res, err = s.db.ExecContext(ctx, s.q.update, r.Quantity, next, r.Name)
	} else {
		res, err = s.db.ExecContext(ctx, s.q.updateIf, r.Quantity, next, r.Name, r.Revision)
	}
	if err != nil {
		return inventory.Record{}, fmt.Errorf("update %q: %w", r.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return inventory.Record{}, fmt.Errorf("update %q: %w", r.Name, err)
	}
	if n == 0 {
		return inventory.Record{}, s.missOrConflict(ctx, r.Name)
	}
	r.Revision = next
	return r, nil
}

// Delete removes a record by name. Deleting an absent record is not an error.
func (s *Store) Delete(ctx context.Context, name, revision string) error {
	if revision == "" {
		if _, err := s.db.ExecContext(ctx, s.q.delete, name); err != nil {
			return fmt.Errorf("delete %q: %w", name, err)
		}
		return nil
	}
	res, err := s.db.ExecContext(ctx, s.q.deleteIf, name, revision)
	if err != nil {
		return fmt.Errorf("delete %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %q: %w", name, err)
	}
	if n > 0 {
		return nil
	}
	if err := s.missOrConflict(ctx, name); !errors.Is(err, inventory.ErrNotFound) {
		return err
	}
	return nil
}

// missOrConflict explains a write that touched no rows.
func (s *Store) missOrConflict(ctx context.Context, name string) error {
	_, err := s.Get(ctx, name)
	if err == nil {
		return inventory.ErrConflict
	}
	return err
}
