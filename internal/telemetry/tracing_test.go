package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracerProviderRecordsSpansAndPropagates(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp, err := InitTracerProvider(context.Background(), "progresswatch-test", sdktrace.WithSpanProcessor(rec))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := otel.Tracer("test").Start(context.Background(), "watch")
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	span.End()

	require.NotEmpty(t, carrier.Get("traceparent"))
	ended := rec.Ended()
	require.Len(t, ended, 1)
	require.Equal(t, "watch", ended[0].Name())

	var found bool
	for _, attr := range ended[0].Resource().Attributes() {
		if attr.Key == "service.name" && attr.Value.AsString() == "progresswatch-test" {
			found = true
		}
	}
	require.True(t, found, "service.name resource attribute missing")
}
