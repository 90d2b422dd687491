package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"pantry/pkg/inventory"
	"pantry/pkg/otel"
)

// InstrumentStore wraps s so every call is timed and traced. backend names
// the span attribute, e.g. "postgres".
func InstrumentStore(s inventory.Store, m *Metrics, backend string) inventory.Store {
	return &store{next: s, m: m, backend: backend}
}

type store struct {
	next    inventory.Store
	m       *Metrics
	backend string
}

func (s *store) start(ctx context.Context, method string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	attrs = append(attrs, attribute.String("store.backend", s.backend))
	ctx, span := otel.AddSpan(ctx, "store."+method, attrs...)
	return ctx, span, time.Now()
}

func (s *store) finish(span trace.Span, method string, start time.Time, err error) {
	if err != nil {
		span.RecordError(err)
	}
	span.End()
	s.m.observeStore(method, start, err)
}

func (s *store) List(ctx context.Context) ([]inventory.Record, error) {
	ctx, span, start := s.start(ctx, "List")
	recs, err := s.next.List(ctx)
	span.SetAttributes(attribute.Int("store.records", len(recs)))
	s.finish(span, "List", start, err)
	return recs, err
}

func (s *store) Get(ctx context.Context, name string) (inventory.Record, error) {
	ctx, span, start := s.start(ctx, "Get", attribute.String("item", name))
	r, err := s.next.Get(ctx, name)
	s.finish(span, "Get", start, err)
	return r, err
}

func (s *store) Create(ctx context.Context, r inventory.Record) (inventory.Record, error) {
	ctx, span, start := s.start(ctx, "Create", attribute.String("item", r.Name))
	out, err := s.next.Create(ctx, r)
	s.finish(span, "Create", start, err)
	return out, err
}

func (s *store) Update(ctx context.Context, r inventory.Record) (inventory.Record, error) {
	ctx, span, start := s.start(ctx, "Update", attribute.String("item", r.Name))
	out, err := s.next.Update(ctx, r)
	s.finish(span, "Update", start, err)
	return out, err
}

func (s *store) Delete(ctx context.Context, name, revision string) error {
	ctx, span, start := s.start(ctx, "Delete", attribute.String("item", name))
	err := s.next.Delete(ctx, name, revision)
	s.finish(span, "Delete", start, err)
	return err
}
