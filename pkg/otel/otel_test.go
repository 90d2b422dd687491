package otel

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pantry/pkg/logger"
)

func TestAddSpanCarriesTraceID(t *testing.T) {
	var out bytes.Buffer
	tp, shutdown, err := InitTracing(logger.NewNop(), Config{ServiceName: "pantry-test", Probability: 1, Writer: &out})
	require.NoError(t, err)

	ctx := InjectTracing(context.Background(), tp.Tracer("test"))
	ctx, span := AddSpan(ctx, "unit")
	id := GetTraceID(ctx)
	span.End()

	assert.Len(t, id, 32)
	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, out.String(), "unit")
}

func TestGetTraceIDWithoutSpan(t *testing.T) {
	assert.Empty(t, GetTraceID(context.Background()))
}
