package tracing

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fieldline/copilot/internal/config"
)

func TestInitializeDisabledStillStartsSpans(t *testing.T) {
	require.NoError(t, Initialize(config.TracingConfig{Enabled: false}, zap.NewNop()))

	ctx, span := StartQuerySpan(context.Background(), "q-1", "customers", "get_customer")
	require.NotNil(t, span)
	span.End()

	_, span = StartAdapterSpan(ctx, "tickets", "list_tickets")
	require.NotNil(t, span)
	span.End()
}

func TestParseTraceparent(t *testing.T) {
	traceID, spanID, flags, ok := ParseTraceparent("00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01")
	require.True(t, ok)
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", traceID)
	assert.Equal(t, "b7ad6b7169203331", spanID)
	assert.Equal(t, byte(1), flags)

	for _, bad := range []string{
		"",
		"00-abc",
		"01-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01",
		"00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-zz",
	} {
		_, _, _, ok := ParseTraceparent(bad)
		assert.False(t, ok, "traceparent %q", bad)
	}
}

func TestExtractTraceparentContinuesTrace(t *testing.T) {
	ctx := ExtractTraceparent(context.Background(), "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01")

	sc := oteltrace.SpanContextFromContext(ctx)
	require.True(t, sc.IsValid())
	assert.True(t, sc.IsRemote())
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", sc.TraceID().String())
	assert.Equal(t, "b7ad6b7169203331", sc.SpanID().String())
}

func TestExtractTraceparentIgnoresMalformed(t *testing.T) {
	ctx := ExtractTraceparent(context.Background(), "not-a-traceparent")
	assert.False(t, oteltrace.SpanContextFromContext(ctx).IsValid())
}

func TestInjectTraceparentRoundTrip(t *testing.T) {
	ctx := ExtractTraceparent(context.Background(), "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://backing/health", nil)
	require.NoError(t, err)

	InjectTraceparent(ctx, req)
	assert.Equal(t, "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01", req.Header.Get("traceparent"))
}
