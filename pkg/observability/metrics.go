package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricRequestsTotal    = "mapsetverifier.requests.total"
	metricRequestDuration  = "mapsetverifier.request.duration.seconds"
	metricErrorsTotal      = "mapsetverifier.errors.total"
	metricInflightRequests = "mapsetverifier.inflight.requests"

	attrOp     = "op"
	attrStatus = "status"

	statusError = "error"
)

// durationBucketBoundaries covers 10ms to 600s: documentation lookups finish
// in milliseconds, snapshot histories of large sets take minutes.
var durationBucketBoundaries = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600}

// REDMetrics counts handled requests per op, where op is an inbound message
// key (RequestBeatmapset, RequestOverlay, ...) or an MCP tool span name.
// A nil *REDMetrics records nothing.
type REDMetrics struct {
	requests metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram
	inflight metric.Int64UpDownCounter
}

// NewREDMetrics creates the request instruments on mt.
func NewREDMetrics(mt metric.Meter) (*REDMetrics, error) {
	var errs []error

	check := func(name string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("create %s: %w", name, err))
		}
	}

	var (
		rm  REDMetrics
		err error
	)

	rm.requests, err = mt.Int64Counter(metricRequestsTotal,
		metric.WithDescription("Handled requests by op and status"),
		metric.WithUnit("{request}"))
	check(metricRequestsTotal, err)

	rm.failures, err = mt.Int64Counter(metricErrorsTotal,
		metric.WithDescription("Requests that ended in an error, by op"),
		metric.WithUnit("{error}"))
	check(metricErrorsTotal, err)

	rm.duration, err = mt.Float64Histogram(metricRequestDuration,
		metric.WithDescription("Time from receiving a request to its last reply"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...))
	check(metricRequestDuration, err)

	rm.inflight, err = mt.Int64UpDownCounter(metricInflightRequests,
		metric.WithDescription("Requests currently being handled"),
		metric.WithUnit("{request}"))
	check(metricInflightRequests, err)

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return &rm, nil
}

// RecordRequest records one handled request. A status of "error" also
// counts towards the error total.
func (rm *REDMetrics) RecordRequest(ctx context.Context, op, status string, duration time.Duration) {
	if rm == nil {
		return
	}

	opAttr := attribute.String(attrOp, op)
	withStatus := metric.WithAttributeSet(attribute.NewSet(opAttr, attribute.String(attrStatus, status)))

	rm.requests.Add(ctx, 1, withStatus)
	rm.duration.Record(ctx, duration.Seconds(), withStatus)

	if status == statusError {
		rm.failures.Add(ctx, 1, metric.WithAttributes(opAttr))
	}
}

// TrackInflight counts op as in flight until the returned func is called.
func (rm *REDMetrics) TrackInflight(ctx context.Context, op string) (done func()) {
	if rm == nil {
		return func() {}
	}

	opt := metric.WithAttributes(attribute.String(attrOp, op))
	rm.inflight.Add(ctx, 1, opt)

	return func() { rm.inflight.Add(ctx, -1, opt) }
}
