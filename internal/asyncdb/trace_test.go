package asyncdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/roach88/asyncdb/internal/record"
	"github.com/roach88/asyncdb/internal/testutil"
)

func TestOperations_RecordSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	h, err := New(testutil.StartEngine(t), WithTracerProvider(tp))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = await(t, h.Open(ctx, "CustomersDB", 1, customersTables))
	require.NoError(t, err)
	_, err = await(t, h.DeleteByKey(ctx, "customers", record.Int(1)))
	require.Error(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "asyncdb.open", spans[0].Name)
	assert.Equal(t, codes.Unset, spans[0].Status.Code)
	assert.Equal(t, "asyncdb.deleteByKey", spans[1].Name)
	assert.Equal(t, codes.Error, spans[1].Status.Code)
	assert.Equal(t, string(KindNotFound), spans[1].Status.Description)
}
