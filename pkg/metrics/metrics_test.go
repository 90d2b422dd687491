package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pantry/pkg/inventory"
	"pantry/pkg/inventory/memory"
)

func TestOutcome(t *testing.T) {
	assert.Equal(t, OutcomeOK, Outcome(nil))
	assert.Equal(t, OutcomeValidation, Outcome(fmt.Errorf("x: %w", inventory.ErrValidation)))
	assert.Equal(t, OutcomeConflict, Outcome(inventory.ErrConflict))
	assert.Equal(t, OutcomeUnavailable, Outcome(fmt.Errorf("%w: boom", inventory.ErrUnavailable)))
	assert.Equal(t, OutcomeError, Outcome(errors.New("other")))
}

func TestServiceRecordsMutations(t *testing.T) {
	ctx := context.Background()
	m := New(false)
	svc := inventory.NewService(InstrumentStore(memory.New(), m, "memory"), inventory.Options{Recorder: m})
	require.NoError(t, svc.Refresh(ctx))

	_, err := svc.Increment(ctx, "apple")
	require.NoError(t, err)
	_, err = svc.Increment(ctx, "apple")
	require.NoError(t, err)
	_, err = svc.Increment(ctx, " ")
	require.Error(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.mutations.WithLabelValues(inventory.OpIncrement, OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.mutations.WithLabelValues(inventory.OpIncrement, OutcomeValidation)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.refreshes.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.items))
	assert.Positive(t, testutil.CollectAndCount(m.storeLatency))
}

// storeCalls returns the sample count of the store latency series for
// method and outcome.
func storeCalls(t *testing.T, m *Metrics, method, outcome string) uint64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "pantry_store_call_duration_seconds" {
			continue
		}
		for _, metric := range f.GetMetric() {
			labels := map[string]string{}
			for _, l := range metric.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["method"] == method && labels["outcome"] == outcome {
				return metric.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func TestStoreMissIsNotAConflict(t *testing.T) {
	ctx := context.Background()
	m := New(false)
	svc := inventory.NewService(InstrumentStore(memory.New(), m, "memory"), inventory.Options{})

	_, err := svc.Increment(ctx, "apple")
	require.NoError(t, err)

	assert.Equal(t, uint64(1), storeCalls(t, m, "Get", OutcomeNotFound))
	assert.Zero(t, storeCalls(t, m, "Get", OutcomeConflict))
	assert.Equal(t, uint64(1), storeCalls(t, m, "Create", OutcomeOK))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New(true)
	m.ObserveHTTP("/items", http.MethodGet, http.StatusOK, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `pantry_http_requests_total{code="200",method="GET",route="/items"} 1`), body)
	assert.Contains(t, body, "go_goroutines")
}
