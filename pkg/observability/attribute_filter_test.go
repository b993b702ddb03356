package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/mapset-verifier/server/pkg/observability"
)

func filteredProvider(t *testing.T, logger *slog.Logger) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter) {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	filter := observability.NewAttributeFilter(sdktrace.NewSimpleSpanProcessor(exporter), logger)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(filter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	t.Cleanup(func() { require.NoError(t, tp.Shutdown(context.Background())) })

	return tp, exporter
}

func TestAttributeFilter_AllowsDomainKeys(t *testing.T) {
	t.Parallel()

	tp, exporter := filteredProvider(t, nil)

	_, span := tp.Tracer("test").Start(context.Background(), "orchestrator.task")
	span.SetAttributes(
		attribute.String("analysis.kind", "Checks"),
		attribute.String("beatmapset.path", "/maps/A"),
		attribute.Int64("beatmapset.epoch", 3),
		attribute.String("hub.conn_id", "abc"),
	)
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)

	attrs := spanAttrMap(spans[0])
	assert.Equal(t, "Checks", attrs["analysis.kind"])
	assert.Equal(t, "/maps/A", attrs["beatmapset.path"])
	assert.Equal(t, int64(3), attrs["beatmapset.epoch"])
	assert.Equal(t, "abc", attrs["hub.conn_id"])
}

func TestAttributeFilter_DropsForeignKeys(t *testing.T) {
	t.Parallel()

	tp, exporter := filteredProvider(t, nil)

	_, span := tp.Tracer("test").Start(context.Background(), "hub.message")
	span.SetAttributes(
		attribute.String("user.email", "alice@example.com"),
		attribute.String("request.body", "{}"),
		attribute.String("osu.file", "[General]"),
		attribute.String("beatmapsetpath", "/maps/A"),
		attribute.Bool("error", true),
		attribute.String("error.type", "internal"),
		attribute.String("hub.key", "RequestOverlay"),
	)
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)

	assert.Equal(t, map[string]any{
		"error":      true,
		"error.type": "internal",
		"hub.key":    "RequestOverlay",
	}, spanAttrMap(spans[0]))
}

func TestAttributeFilter_WarnsOncePerKey(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	tp, _ := filteredProvider(t, logger)

	for range 3 {
		_, span := tp.Tracer("test").Start(context.Background(), "orchestrator.load")
		span.SetAttributes(attribute.String("user.secret", "val"), attribute.String("beatmapset.path", "/maps/A"))
		span.End()
	}

	assert.Equal(t, 1, strings.Count(buf.String(), "user.secret"))
	assert.Contains(t, buf.String(), "span attribute dropped")
	assert.NotContains(t, buf.String(), "beatmapset.path")
}

func TestFilteringTracerProvider_DropsHotPathSpans(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	t.Cleanup(func() { require.NoError(t, tp.Shutdown(context.Background())) })

	tracer := observability.NewFilteringTracerProvider(tp).Tracer("test")

	_, kept := tracer.Start(context.Background(), "orchestrator.task")
	kept.End()

	_, dropped := tracer.Start(context.Background(), observability.SpanCheckCategory)
	dropped.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "orchestrator.task", spans[0].Name)
}

func spanAttrMap(s tracetest.SpanStub) map[string]any {
	m := make(map[string]any, len(s.Attributes))
	for _, a := range s.Attributes {
		m[string(a.Key)] = a.Value.AsInterface()
	}

	return m
}
