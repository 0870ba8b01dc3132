package otelcol

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"watchearn/pkg/config"
)

func TestNewResource(t *testing.T) {
	res := NewResource(&config.Config{AppName: "watchearn", AppVersion: "1.2.3", AppEnv: "test"})

	attrs := map[attribute.Key]string{}
	for _, kv := range res.Attributes() {
		attrs[kv.Key] = kv.Value.Emit()
	}
	require.Equal(t, "watchearn", attrs["service.name"])
	require.Equal(t, "1.2.3", attrs["service.version"])
}

func TestProvideTraceExportsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := ProvideTrace(exporter, trace.WithResource(NewResource(&config.Config{AppName: "watchearn"})))

	_, span := tp.Tracer("test").Start(context.Background(), "work")
	span.End()
	require.NoError(t, tp.ForceFlush(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.Equal(t, "work", spans[0].Name)
}
