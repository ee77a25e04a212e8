package tracing

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap/zaptest"
)

func TestDisabledTracingIsNoop(t *testing.T) {
	shutdown, err := Initialize(Config{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	ctx, span := StartSpan(context.Background(), "noop")
	defer span.End()
	assert.Equal(t, "", W3CTraceparent(ctx))
}

func TestTraceparentInjection(t *testing.T) {
	tp := trace.NewTracerProvider()
	defer tp.Shutdown(context.Background())

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	req, err := http.NewRequest(http.MethodGet, "http://example.com", nil)
	require.NoError(t, err)
	InjectTraceparent(ctx, req)

	h := req.Header.Get("traceparent")
	require.NotEmpty(t, h)
	assert.Contains(t, h, span.SpanContext().TraceID().String())
	assert.Len(t, h, 55)
}
