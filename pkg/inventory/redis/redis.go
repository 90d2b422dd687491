// Package redis persists inventory records in a single Redis hash. Each field
// is a record name and its value is "<revision> <quantity>". Writes run as Lua
// scripts so the revision check and the write are atomic.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"pantry/pkg/inventory"
)

// KeyPrefix namespaces collection hashes.
const KeyPrefix = "pantry:"

var createScript = goredis.NewScript(`
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
return 1
`)

// ARGV: name, new value, expected revision (may be empty)
var updateScript = goredis.NewScript(`
local cur = redis.call('HGET', KEYS[1], ARGV[1])
if not cur then
	return -1
end
if ARGV[3] ~= '' and string.sub(cur, 1, string.find(cur, ' ', 1, true) - 1) ~= ARGV[3] then
	return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
return 1
`)

// ARGV: name, expected revision (may be empty)
var deleteScript = goredis.NewScript(`
local cur = redis.call('HGET', KEYS[1], ARGV[1])
if not cur then
	return 1
end
if ARGV[2] ~= '' and string.sub(cur, 1, string.find(cur, ' ', 1, true) - 1) ~= ARGV[2] then
	return 0
end
redis.call('HDEL', KEYS[1], ARGV[1])
return 1
`)

// Store is a Redis-backed inventory.Store.
type Store struct {
	rdb goredis.UniversalClient
	key string
}

var _ inventory.Store = (*Store)(nil)

// New returns a Store keeping collection in rdb.
func New(rdb goredis.UniversalClient, collection string) *Store {
	if collection == "" {
		collection = inventory.DefaultCollection
	}
	return &Store{rdb: rdb, key: KeyPrefix + collection}
}

// Open connects to addr and checks the server answers.
func Open(ctx context.Context, addr, password string, db int, collection string) (*Store, error) {
	rdb := goredis.NewClient(&goredis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(rdb, collection), nil
}

// Close closes the client.
func (s *Store) Close() error { return s.rdb.Close() }

// List returns every record in the collection.
func (s *Store) List(ctx context.Context) ([]inventory.Record, error) {
	all, err := s.rdb.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall: %w", err)
	}
	out := make([]inventory.Record, 0, len(all))
	for name, v := range all {
		r, err := decode(name, v)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Get retrieves a record by name.
func (s *Store) Get(ctx context.Context, name string) (inventory.Record, error) {
	v, err := s.rdb.HGet(ctx, s.key, name).Result()
	if errors.Is(err, goredis.Nil) {
		return inventory.Record{}, inventory.ErrNotFound
	}
	if err != nil {
		return inventory.Record{}, fmt.Errorf("hget %q: %w", name, err)
	}
	return decode(name, v)
}

// Create stores a new record.
func (s *Store) Create(ctx context.Context, r inventory.Record) (inventory.Record, error) {
	r.Revision = uuid.NewString()
	n, err := createScript.Run(ctx, s.rdb, []string{s.key}, r.Name, encode(r)).Int()
	if err != nil {
		return inventory.Record{}, fmt.Errorf("create %q: %w", r.Name, err)
	}
	if n == 0 {
		return inventory.Record{}, inventory.ErrExists
	}
	return r, nil
}

// Update overwrites an existing record's quantity.
func (s *Store) Update(ctx context.Context, r inventory.Record) (inventory.Record, error) {
	next := inventory.Record{Name: r.Name, Quantity: r.Quantity, Revision: uuid.NewString()}
	n, err := updateScript.Run(ctx, s.rdb, []string{s.key}, r.Name, encode(next), r.Revision).Int()
	if err != nil {
		return inventory.Record{}, fmt.Errorf("update %q: %w", r.Name, err)
	}
	switch n {
	case -1:
		return inventory.Record{}, inventory.ErrNotFound
	case 0:
		return inventory.Record{}, inventory.ErrConflict
	}
	return next, nil
}

// Delete removes a record; absent records are ignored.
func (s *Store) Delete(ctx context.Context, name, revision string) error {
	n, err := deleteScript.Run(ctx, s.rdb, []string{s.key}, name, revision).Int()
	if err != nil {
		return fmt.Errorf("delete %q: %w", name, err)
	}
	if n == 0 {
		return inventory.ErrConflict
	}
	return nil
}

func encode(r inventory.Record) string {
	return r.Revision + " " + strconv.Itoa(r.Quantity)
}

func decode(name, v string) (inventory.Record, error) {
	rev, qty, ok := strings.Cut(v, " ")
	if !ok {
		return inventory.Record{}, fmt.Errorf("malformed value for %q", name)
	}
	q, err := strconv.Atoi(qty)
	if err != nil {
		return inventory.Record{}, fmt.Errorf("malformed quantity for %q: %w", name, err)
	}
	return inventory.Record{Name: name, Quantity: q, Revision: rev}, nil
}
