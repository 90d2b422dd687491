package inventory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"

	"pantry/pkg/logger"
	"pantry/pkg/otel"
)

// Mutation names reported to a Recorder.
const (
	OpIncrement   = "increment"
	OpDecrement   = "decrement"
	OpSetQuantity = "set_quantity"
)

const (
	defaultMaxAttempts = 5
	defaultRunInterval = 30 * time.Second
)

// Recorder receives operation outcomes, typically for metrics.
type Recorder interface {
	ObserveMutation(op string, err error)
	ObserveRefresh(err error, items int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveMutation(string, error) {}
func (nopRecorder) ObserveRefresh(error, int)     {}

// Options tunes a Service.
type Options struct {
	// KeepZero lets SetQuantity persist 0 instead of deleting the record.
	KeepZero bool
	// LocalApply patches the snapshot with each mutation's result instead
	// of listing the whole collection again. Pair it with Run.
	LocalApply bool
	// MaxAttempts bounds read-check-write attempts per mutation when a
	// write loses a revision race. Zero means 5.
	MaxAttempts uint
	// RetryInterval is the first backoff between attempts. Zero means 10ms.
	RetryInterval time.Duration

	Logger   *logger.Logger
	Recorder Recorder
}

// Service owns the in-memory inventory list and every mutation path to the
// store. It is safe for concurrent use.
type Service struct {
	store Store
	opts  Options
	log   *logger.Logger
	rec   Recorder

	// gen orders snapshot producers; a snapshot is only installed when its
	// generation is newer than the one currently held.
	gen atomic.Uint64

	// keys serializes mutations per item so their effects on the list are
	// applied in the order they were written.
	keysMu sync.Mutex
	keys   map[string]*keyLock

	mu      sync.RWMutex
	items   []Item
	applied uint64
	loaded  bool
}

// NewService returns a Service over store. The list is empty until the first
// Refresh.
func NewService(store Store, opts Options) *Service {
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 10 * time.Millisecond
	}
	s := &Service{store: store, opts: opts, log: opts.Logger, rec: opts.Recorder, keys: make(map[string]*keyLock)}
	if s.log == nil {
		s.log = logger.NewNop()
	}
	if s.rec == nil {
		s.rec = nopRecorder{}
	}
	return s
}

// Items returns a copy of the current list.
func (s *Service) Items() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

// Loaded reports whether at least one Refresh has succeeded.
func (s *Service) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Filter returns the current items whose name contains query, ignoring case.
func (s *Service) Filter(query string) []Item {
	return FilterItems(s.Items(), query)
}

// CSV renders the current list.
func (s *Service) CSV() string {
	return ToCSV(s.Items())
}

// Refresh replaces the list with the store's current contents. On failure
// the previous list is kept.
func (s *Service) Refresh(ctx context.Context) error {
	ctx, span := otel.AddSpan(ctx, "inventory.Refresh")
	defer span.End()

	gen := s.gen.Add(1)
	recs, err := s.store.List(ctx)
	if err != nil {
		err = fmt.Errorf("%w: list: %w", ErrUnavailable, err)
		span.RecordError(err)
		s.rec.ObserveRefresh(err, 0)
		return err
	}
	items := make([]Item, 0, len(recs))
	for _, r := range recs {
		items = append(items, r.Item())
	}

	s.mu.Lock()
	stale := gen <= s.applied
	if !stale {
		s.items = items
		s.applied = gen
		s.loaded = true
	}
	s.mu.Unlock()

	if stale {
		s.log.Debug(ctx, "discarded stale snapshot", "generation", gen)
	}
	s.rec.ObserveRefresh(nil, len(items))
	return nil
}

// Run refreshes every interval until ctx is done. Errors are logged and the
// loop keeps going. A non-positive interval means 30s.
func (s *Service) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = defaultRunInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn(ctx, "reconcile inventory", "error", err)
			}
		}
	}
}

// Increment adds one to the named item, creating it at 1 when absent.
func (s *Service) Increment(ctx context.Context, name string) (Item, error) {
	key, err := NormalizeName(name)
	if err != nil {
		s.rec.ObserveMutation(OpIncrement, err)
		return Item{}, err
	}
	res, err := s.mutate(ctx, OpIncrement, key, func(cur Record, found bool) (int, bool) {
		if !found {
			return 1, false
		}
		return cur.Quantity + 1, false
	})
	return res.rec.Item(), err
}

// Decrement subtracts one from the named item. An item at 1 or below, or an
// absent one, ends up deleted; removed reports that outcome.
func (s *Service) Decrement(ctx context.Context, name string) (item Item, removed bool, err error) {
	key, err := NormalizeName(name)
	if err != nil {
		s.rec.ObserveMutation(OpDecrement, err)
		return Item{}, false, err
	}
	res, err := s.mutate(ctx, OpDecrement, key, func(cur Record, found bool) (int, bool) {
		if found && cur.Quantity > 1 {
			return cur.Quantity - 1, false
		}
		return 0, true
	})
	return res.rec.Item(), res.removed, err
}

// SetQuantity overwrites the named item's quantity, creating it when absent.
// A quantity of 0 deletes the record unless Options.KeepZero is set.
func (s *Service) SetQuantity(ctx context.Context, name string, quantity int) (item Item, removed bool, err error) {
	key, err := NormalizeName(name)
	if err == nil {
		err = ValidateQuantity(quantity)
	}
	if err != nil {
		s.rec.ObserveMutation(OpSetQuantity, err)
		return Item{}, false, err
	}
	remove := quantity <= 0 && !s.opts.KeepZero
	res, err := s.mutate(ctx, OpSetQuantity, key, func(Record, bool) (int, bool) {
		return quantity, remove
	})
	return res.rec.Item(), res.removed, err
}

// decision picks the next quantity for a key, or asks for its removal.
type decision func(cur Record, found bool) (quantity int, remove bool)

type outcome struct {
	rec     Record
	removed bool
}

func (s *Service) mutate(ctx context.Context, op, key string, decide decision) (outcome, error) {
	ctx, span := otel.AddSpan(ctx, "inventory."+op, attribute.String("item", key))
	defer span.End()

	unlock := s.lockKey(key)
	defer unlock()

	attempt := func() (outcome, error) {
		cur, err := s.store.Get(ctx, key)
		found := err == nil
		if err != nil && !errors.Is(err, ErrNotFound) {
			return outcome{}, backoff.Permanent(fmt.Errorf("%w: get %q: %w", ErrUnavailable, key, err))
		}
		quantity, remove := decide(cur, found)

		var rec Record
		switch {
		case remove && !found:
			// Nothing to delete; issuing an unconditional delete here could
			// remove a record created since the read.
			return outcome{rec: Record{Name: key}, removed: true}, nil
		case remove:
			err = s.store.Delete(ctx, key, cur.Revision)
			rec = Record{Name: key}
		case found:
			cur.Quantity = quantity
			rec, err = s.store.Update(ctx, cur)
		default:
			rec, err = s.store.Create(ctx, Record{Name: key, Quantity: quantity})
		}
		switch {
		case err == nil:
			return outcome{rec: rec, removed: remove}, nil
		case errors.Is(err, ErrConflict), errors.Is(err, ErrExists), errors.Is(err, ErrNotFound):
			s.log.Debug(ctx, "write lost race, retrying", "op", op, "item", key, "error", err)
			return outcome{}, fmt.Errorf("%s %q: %w", op, key, ErrConflict)
		default:
			return outcome{}, backoff.Permanent(fmt.Errorf("%w: %s %q: %w", ErrUnavailable, op, key, err))
		}
	}

	res, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxTries(s.opts.MaxAttempts),
		backoff.WithMaxElapsedTime(0),
	)
	if err != nil && !errors.Is(err, ErrConflict) && !errors.Is(err, ErrUnavailable) {
		// cancelled while waiting to retry
		err = fmt.Errorf("%w: %s %q: %w", ErrUnavailable, op, key, err)
	}
	s.rec.ObserveMutation(op, err)
	if err != nil {
		span.RecordError(err)
		s.log.Warn(ctx, "inventory mutation failed", "op", op, "item", key, "error", err)
		return outcome{}, err
	}

	s.sync(ctx, res)
	return res, nil
}

// sync brings the list in line with a successful mutation.
func (s *Service) sync(ctx context.Context, res outcome) {
	if !s.opts.LocalApply {
		err := s.Refresh(ctx)
		if err == nil {
			return
		}
		s.log.Warn(ctx, "refresh after mutation failed, patching locally", "item", res.rec.Name, "error", err)
	}
	s.patch(res)
}

func (s *Service) patch(res outcome) {
	gen := s.gen.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]Item, 0, len(s.items)+1)
	replaced := false
	for _, it := range s.items {
		if it.Name != res.rec.Name {
			items = append(items, it)
			continue
		}
		replaced = true
		if !res.removed {
			items = append(items, res.rec.Item())
		}
	}
	if !replaced && !res.removed {
		items = append(items, res.rec.Item())
	}
	s.items = items
	s.applied = gen
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// lockKey holds key's lock until the returned func is called.
func (s *Service) lockKey(key string) func() {
	s.keysMu.Lock()
	l, ok := s.keys[key]
	if !ok {
		l = &keyLock{}
		s.keys[key] = l
	}
	l.refs++
	s.keysMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.keysMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.keys, key)
		}
		s.keysMu.Unlock()
	}
}

func (s *Service) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.RetryInterval
	b.MaxInterval = 20 * s.opts.RetryInterval
	b.Multiplier = 2
	return b
}
