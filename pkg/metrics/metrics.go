// Package metrics exposes Prometheus instrumentation for the inventory
// service: mutation outcomes, refreshes, store call latency and HTTP
// requests.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pantry/pkg/inventory"
)

const namespace = "pantry"

// Outcome labels.
const (
	OutcomeOK          = "ok"
	OutcomeValidation  = "validation"
	OutcomeConflict    = "conflict"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
	OutcomeNotFound    = "not_found"
)

// Metrics holds the collectors registered for one process.
type Metrics struct {
	reg *prometheus.Registry

	mutations    *prometheus.CounterVec
	refreshes    *prometheus.CounterVec
	items        prometheus.Gauge
	storeLatency *prometheus.HistogramVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

var _ inventory.Recorder = (*Metrics)(nil)

// New registers every collector on a fresh registry. Go runtime and process
// collectors are included when withRuntime is set.
func New(withRuntime bool) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Inventory mutations by operation and outcome.",
		}, []string{"op", "outcome"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "Inventory refreshes by outcome.",
		}, []string{"outcome"}),
		items: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "items",
			Help:      "Number of items in the last successful refresh.",
		}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_call_duration_seconds",
			Help:      "Store call latency by method and outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	m.reg.MustRegister(m.mutations, m.refreshes, m.items, m.storeLatency, m.httpRequests, m.httpDuration)
	if withRuntime {
		m.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// ObserveMutation implements inventory.Recorder.
func (m *Metrics) ObserveMutation(op string, err error) {
	m.mutations.WithLabelValues(op, Outcome(err)).Inc()
}

// ObserveRefresh implements inventory.Recorder.
func (m *Metrics) ObserveRefresh(err error, items int) {
	m.refreshes.WithLabelValues(Outcome(err)).Inc()
	if err == nil {
		m.items.Set(float64(items))
	}
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(route, method string, code int, d time.Duration) {
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

func (m *Metrics) observeStore(method string, start time.Time, err error) {
	outcome := OutcomeOK
	switch {
	case err == nil:
	case errors.Is(err, inventory.ErrNotFound):
		outcome = OutcomeNotFound
	case errors.Is(err, inventory.ErrExists), errors.Is(err, inventory.ErrConflict):
		outcome = OutcomeConflict
	default:
		outcome = OutcomeError
	}
	m.storeLatency.WithLabelValues(method, outcome).Observe(time.Since(start).Seconds())
}

// Outcome classifies err into a label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, inventory.ErrValidation):
		return OutcomeValidation
	case errors.Is(err, inventory.ErrConflict):
		return OutcomeConflict
	case errors.Is(err, inventory.ErrUnavailable):
		return OutcomeUnavailable
	default:
		return OutcomeError
	}
}
