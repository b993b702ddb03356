package observability

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// spanNamespaces are the first segments of the attribute keys the server's
// spans carry. "error" covers both the bare key and error.* keys.
var spanNamespaces = map[string]bool{
	"beatmapset": true,
	"analysis":   true,
	"checks":     true,
	"snapshot":   true,
	"hub":        true,
	"mcp":        true,
	"http":       true,
	"error":      true,
}

// attributeFilter exports only attributes in spanNamespaces. Anything else,
// such as a file body or a user name picked up by a collaborator, is dropped
// before it reaches the exporter.
type attributeFilter struct {
	delegate sdktrace.SpanProcessor
	logger   *slog.Logger

	// warned records keys already reported, so a hot span logs a dropped
	// key once.
	warned sync.Map
}

// NewAttributeFilter wraps delegate so exported spans only carry the
// server's own attribute namespaces. A non-nil logger is told about each
// dropped key once.
func NewAttributeFilter(delegate sdktrace.SpanProcessor, logger *slog.Logger) sdktrace.SpanProcessor {
	return &attributeFilter{delegate: delegate, logger: logger}
}

func (f *attributeFilter) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {
	f.delegate.OnStart(parent, s)
}

func (f *attributeFilter) OnEnd(s sdktrace.ReadOnlySpan) {
	f.delegate.OnEnd(&filteredSpan{ReadOnlySpan: s, attrs: f.filter(s.Attributes())})
}

func (f *attributeFilter) Shutdown(ctx context.Context) error {
	if err := f.delegate.Shutdown(ctx); err != nil {
		return fmt.Errorf("attribute filter shutdown: %w", err)
	}

	return nil
}

func (f *attributeFilter) ForceFlush(ctx context.Context) error {
	if err := f.delegate.ForceFlush(ctx); err != nil {
		return fmt.Errorf("attribute filter flush: %w", err)
	}

	return nil
}

func (f *attributeFilter) filter(attrs []attribute.KeyValue) []attribute.KeyValue {
	kept := attrs[:0:0]

	for _, kv := range attrs {
		key := string(kv.Key)

		namespace, _, _ := strings.Cut(key, ".")
		if spanNamespaces[namespace] {
			kept = append(kept, kv)

			continue
		}

		if _, seen := f.warned.LoadOrStore(key, struct{}{}); !seen && f.logger != nil {
			f.logger.Warn("span attribute dropped", "key", key)
		}
	}

	return kept
}

// filteredSpan is a ReadOnlySpan whose attributes were filtered at OnEnd.
type filteredSpan struct {
	sdktrace.ReadOnlySpan

	attrs []attribute.KeyValue
}

func (s *filteredSpan) Attributes() []attribute.KeyValue {
	return s.attrs
}
