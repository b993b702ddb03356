package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mapset-verifier/server/pkg/beatmap"
	"github.com/mapset-verifier/server/pkg/observability"
)

// Outcome is how a task ended.
type Outcome string

// Task outcomes.
const (
	OutcomePublished   Outcome = "published"
	OutcomeStaleBefore Outcome = "stale_before"
	OutcomeStaleAfter  Outcome = "stale_after"
	OutcomeFailed      Outcome = "failed"
	// OutcomeSuperseded means no task ran: a newer request took over the
	// load first.
	OutcomeSuperseded Outcome = "superseded"
)

// Renderer produces the HTML view of a computed result.
type Renderer func() (string, error)

// Analysis computes one view over a beatmap set.
type Analysis interface {
	Kind() Kind
	// Compute runs the expensive step and returns a renderer for its result.
	Compute(ctx context.Context, set *beatmap.Set, progress Progress) (Renderer, error)
}

type analysis[R any] struct {
	kind    Kind
	compute func(ctx context.Context, set *beatmap.Set, progress Progress) (R, error)
	render  func(result R, set *beatmap.Set) (string, error)
}

// NewAnalysis pairs a collaborator computing R with a pure renderer for R.
func NewAnalysis[R any](
	kind Kind,
	compute func(ctx context.Context, set *beatmap.Set, progress Progress) (R, error),
	render func(result R, set *beatmap.Set) (string, error),
) Analysis {
	return analysis[R]{kind: kind, compute: compute, render: render}
}

func (a analysis[R]) Kind() Kind { return a.kind }

func (a analysis[R]) Compute(ctx context.Context, set *beatmap.Set, progress Progress) (Renderer, error) {
	result, err := a.compute(ctx, set, progress)
	if err != nil {
		return nil, err
	}

	return func() (string, error) { return a.render(result, set) }, nil
}

// task runs one analysis against the set identified by a ticket.
type task struct {
	analysis        Analysis
	store           *Store
	out             outbox
	renderException func(error) string
	logger          *slog.Logger
	tracer          trace.Tracer
	metrics         *observability.TaskMetrics
	timeout         time.Duration
}

func (t *task) run(ctx context.Context, ticket Ticket) Outcome {
	kind := t.analysis.Kind()
	start := time.Now()

	ctx, span := t.tracer.Start(ctx, "orchestrator.task", trace.WithAttributes(
		attribute.String("analysis.kind", kind.String()),
		attribute.String("beatmapset.path", ticket.Path),
		attribute.Int64("beatmapset.epoch", int64(ticket.Epoch)),
	))
	defer span.End()

	outcome := t.execute(ctx, kind, ticket)

	span.SetAttributes(attribute.String("analysis.outcome", string(outcome)))

	if outcome == OutcomeFailed {
		span.SetStatus(codes.Error, "analysis failed")
	}

	t.metrics.RecordTask(ctx, kind.String(), string(outcome), time.Since(start))

	return outcome
}

func (t *task) execute(ctx context.Context, kind Kind, ticket Ticket) Outcome {
	state := t.store.Active()
	if state.Epoch != ticket.Epoch {
		t.logger.DebugContext(ctx, "task stale before compute",
			"kind", kind, "path", ticket.Path, "epoch", ticket.Epoch, "active_epoch", state.Epoch)

		return OutcomeStaleBefore
	}

	progress := newReporter(ctx, t.out, []Kind{kind}, func() bool { return t.store.Stale(ticket) })
	defer progress.closeAll()

	render, err := t.compute(ctx, state.Set, progress)

	if t.store.Stale(ticket) {
		t.logger.DebugContext(ctx, "task stale after compute",
			"kind", kind, "path", ticket.Path, "epoch", ticket.Epoch)

		return OutcomeStaleAfter
	}

	var body string
	if err == nil {
		body, err = safeRender(render)
	}

	if err != nil {
		analysisErr := &AnalysisError{Kind: kind, Err: err}
		t.logger.WarnContext(ctx, "analysis failed", "kind", kind, "path", ticket.Path, "error", analysisErr)
		t.out.send(ctx, Message{Key: KeyUpdateException, Value: Tagged(kind, t.renderException(analysisErr))})

		return OutcomeFailed
	}

	t.out.send(ctx, Message{Key: UpdateKey(kind), Value: body})

	return OutcomePublished
}

func (t *task) compute(ctx context.Context, set *beatmap.Set, progress Progress) (render Renderer, err error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			render, err = nil, recovered(r)
		}
	}()

	return t.analysis.Compute(ctx, set, progress)
}

func safeRender(render Renderer) (body string, err error) {
	defer func() {
		if r := recover(); r != nil {
			body, err = "", recovered(r)
		}
	}()

	return render()
}
