package orchestrator

import (
	"context"
	"html"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/mapset-verifier/server/pkg/observability"
)

const (
	statusOK    = "ok"
	statusError = "error"
)

// Deps holds the dispatcher's collaborators. Zero-value optional fields use
// production defaults.
type Deps struct {
	// Store and Loader are shared by every dispatcher of the process. Required.
	Store  *Store
	Loader *Loader

	// Sender delivers outbound messages. Required.
	Sender Sender

	// Analyses run for every loaded set.
	Analyses []Analysis

	// Documentation renders the check documentation page.
	Documentation func() (string, error)

	// Overlay renders the documentation of the check with the given message.
	Overlay func(message string) (string, error)

	// RenderException formats errors as HTML. Nil escapes err.Error().
	RenderException func(err error) string

	// TaskTimeout bounds each analysis. Zero means no deadline.
	TaskTimeout time.Duration

	Logger  *slog.Logger
	Tracer  trace.Tracer
	Metrics *observability.TaskMetrics
	RED     *observability.REDMetrics
}

// Dispatcher routes inbound messages to their workflows.
type Dispatcher struct {
	deps   Deps
	out    outbox
	logger *slog.Logger
	tracer trace.Tracer
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(deps Deps) *Dispatcher {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tracer := deps.Tracer
	if tracer == nil {
		tracer = nooptrace.NewTracerProvider().Tracer("")
	}

	if deps.RenderException == nil {
		deps.RenderException = func(err error) string { return html.EscapeString(err.Error()) }
	}

	return &Dispatcher{
		deps:   deps,
		out:    outbox{sender: deps.Sender, logger: logger, metrics: deps.Metrics},
		logger: logger,
		tracer: tracer,
	}
}

// Handle starts the workflow for key and returns without waiting for
// analyses. Unknown keys are ignored. Handle is safe for concurrent use.
func (d *Dispatcher) Handle(ctx context.Context, key, value string) *Request {
	req := newRequest()

	switch key {
	case KeyRequestDocumentation:
		d.inline(ctx, key, KindDocumentation, d.deps.Documentation)
	case KeyRequestOverlay:
		var render func() (string, error)
		if d.deps.Overlay != nil {
			render = func() (string, error) { return d.deps.Overlay(value) }
		}

		d.inline(ctx, key, KindOverlay, render)
	case KeyRequestBeatmapset:
		req.spawn(ctx, func(ctx context.Context) { d.beatmapset(ctx, req, value) })
	default:
		d.logger.DebugContext(ctx, "ignoring unknown message", "key", key)
	}

	return req
}

func (d *Dispatcher) inline(ctx context.Context, key string, kind Kind, render func() (string, error)) {
	if render == nil {
		d.logger.DebugContext(ctx, "no renderer configured", "key", key)

		return
	}

	start := time.Now()
	status := statusOK

	body, err := safeRender(render)
	if err != nil {
		status = statusError

		d.logger.WarnContext(ctx, "render failed", "kind", kind, "error", err)
		d.out.send(ctx, Message{Key: KeyUpdateException, Value: Tagged(kind, d.deps.RenderException(err))})
	} else {
		d.out.send(ctx, Message{Key: UpdateKey(kind), Value: body})
	}

	d.recordRequest(ctx, key, status, time.Since(start))
}

func (d *Dispatcher) beatmapset(ctx context.Context, req *Request, path string) {
	start := time.Now()

	ctx, span := d.tracer.Start(ctx, "orchestrator.beatmapset",
		trace.WithAttributes(attribute.String("beatmapset.path", path)))
	defer span.End()

	progress := newReporter(ctx, d.out, d.kinds(), nil)
	progress.fail = func(err error) {
		progress.closeAll()

		body := d.deps.RenderException(err)
		for _, kind := range d.kinds() {
			d.out.send(ctx, Message{Key: KeyUpdateException, Value: Tagged(kind, body)})
		}
	}

	_, err := d.deps.Loader.EnsureLoaded(ctx, path, progress)
	progress.closeAll()

	if err != nil {
		d.recordRequest(ctx, KeyRequestBeatmapset, statusError, time.Since(start))

		return
	}

	state := d.deps.Store.Active()
	if state.Path != path {
		d.logger.DebugContext(ctx, "beatmapset superseded", "path", path, "active", state.Path)

		for _, kind := range d.kinds() {
			req.record(kind, OutcomeSuperseded)
		}

		d.recordRequest(ctx, KeyRequestBeatmapset, statusOK, time.Since(start))

		return
	}

	ticket := Ticket{Path: path, Epoch: state.Epoch}

	for _, a := range d.deps.Analyses {
		t := d.newTask(a)

		req.spawn(ctx, func(ctx context.Context) {
			req.record(a.Kind(), t.run(ctx, ticket))
		})
	}

	d.recordRequest(ctx, KeyRequestBeatmapset, statusOK, time.Since(start))
}

func (d *Dispatcher) newTask(a Analysis) *task {
	return &task{
		analysis:        a,
		store:           d.deps.Store,
		out:             d.out,
		renderException: d.deps.RenderException,
		logger:          d.logger,
		tracer:          d.tracer,
		metrics:         d.deps.Metrics,
		timeout:         d.deps.TaskTimeout,
	}
}

func (d *Dispatcher) kinds() []Kind {
	kinds := make([]Kind, 0, len(d.deps.Analyses))
	for _, a := range d.deps.Analyses {
		kinds = append(kinds, a.Kind())
	}

	return kinds
}

func (d *Dispatcher) recordRequest(ctx context.Context, key, status string, dur time.Duration) {
	d.deps.RED.RecordRequest(ctx, key, status, dur)
}
