package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricTasksTotal        = "mapsetverifier.tasks.total"
	metricTaskDuration      = "mapsetverifier.task.duration.seconds"
	metricLoadsTotal        = "mapsetverifier.loads.total"
	metricLoadDuration      = "mapsetverifier.load.duration.seconds"
	metricSendFailuresTotal = "mapsetverifier.send.failures.total"

	attrKind    = "kind"
	attrOutcome = "outcome"
	attrKey     = "key"
)

// TaskMetrics holds OTel instruments for analysis tasks and set loads.
// All methods are safe to call on a nil receiver (no-op).
type TaskMetrics struct {
	tasksTotal   metric.Int64Counter
	taskDuration metric.Float64Histogram
	loadsTotal   metric.Int64Counter
	loadDuration metric.Float64Histogram
	sendFailures metric.Int64Counter
}

// NewTaskMetrics creates task metric instruments from the given meter.
func NewTaskMetrics(mt metric.Meter) (*TaskMetrics, error) {
	tasks, err := mt.Int64Counter(metricTasksTotal,
		metric.WithDescription("Analysis tasks by kind and outcome"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricTasksTotal, err)
	}

	taskDur, err := mt.Float64Histogram(metricTaskDuration,
		metric.WithDescription("Analysis task duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricTaskDuration, err)
	}

	loads, err := mt.Int64Counter(metricLoadsTotal,
		metric.WithDescription("Beatmap set load attempts by outcome"),
		metric.WithUnit("{load}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricLoadsTotal, err)
	}

	loadDur, err := mt.Float64Histogram(metricLoadDuration,
		metric.WithDescription("Beatmap set load duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricLoadDuration, err)
	}

	sendFailures, err := mt.Int64Counter(metricSendFailuresTotal,
		metric.WithDescription("Outbound messages that could not be delivered"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricSendFailuresTotal, err)
	}

	return &TaskMetrics{
		tasksTotal:   tasks,
		taskDuration: taskDur,
		loadsTotal:   loads,
		loadDuration: loadDur,
		sendFailures: sendFailures,
	}, nil
}

// RecordTask records a finished analysis task.
func (tm *TaskMetrics) RecordTask(ctx context.Context, kind, outcome string, duration time.Duration) {
	if tm == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrKind, kind),
		attribute.String(attrOutcome, outcome),
	)

	tm.tasksTotal.Add(ctx, 1, attrs)
	tm.taskDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordLoad records one EnsureLoaded call.
func (tm *TaskMetrics) RecordLoad(ctx context.Context, outcome string, duration time.Duration) {
	if tm == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(attrOutcome, outcome))

	tm.loadsTotal.Add(ctx, 1, attrs)
	tm.loadDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordSendFailure counts an outbound message that was not delivered.
func (tm *TaskMetrics) RecordSendFailure(ctx context.Context, key string) {
	if tm == nil {
		return
	}

	tm.sendFailures.Add(ctx, 1, metric.WithAttributes(attribute.String(attrKey, key)))
}
