package orchestrator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mapset-verifier/server/pkg/observability"
)

// Progress receives start and completion notices for labelled sub-steps of
// a long-running operation.
type Progress interface {
	Start(label string)
	Complete(label string)
}

// FailureReporter is a Progress that is told when the step it tracks failed.
type FailureReporter interface {
	Progress
	Fail(err error)
}

// NopProgress discards all notices.
type NopProgress struct{}

// Start does nothing.
func (NopProgress) Start(string) {}

// Complete does nothing.
func (NopProgress) Complete(string) {}

// outbox sends messages, logging and counting failures. Sends are never
// retried.
type outbox struct {
	sender  Sender
	logger  *slog.Logger
	metrics *observability.TaskMetrics
}

func (o outbox) send(ctx context.Context, msg Message) {
	err := o.sender.Send(ctx, msg)
	if err != nil {
		o.logger.WarnContext(ctx, "send failed", "key", msg.Key, "error", err)
		o.metrics.RecordSendFailure(ctx, msg.Key)
	}
}

// reporter turns progress notices into AddLoad/RemoveLoad messages for one
// or more kinds. Once stale reports true, new Starts are dropped; a
// Complete is only forwarded for a forwarded Start.
type reporter struct {
	ctx   context.Context
	out   outbox
	kinds []Kind
	stale func() bool
	// fail, when set, makes the reporter a FailureReporter.
	fail func(err error)

	mu   sync.Mutex
	open map[string]int
}

func newReporter(ctx context.Context, out outbox, kinds []Kind, stale func() bool) *reporter {
	return &reporter{
		ctx:   ctx,
		out:   out,
		kinds: kinds,
		stale: stale,
		open:  make(map[string]int),
	}
}

func (r *reporter) Start(label string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stale != nil && r.stale() {
		return
	}

	r.open[label]++
	r.emit(KeyAddLoad, label)
}

func (r *reporter) Complete(label string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.open[label] == 0 {
		return
	}

	r.release(label)
}

func (r *reporter) Fail(err error) {
	if r.fail != nil {
		r.fail(err)
	}
}

// closeAll removes every indicator still open, e.g. after a collaborator
// panicked between Start and Complete.
func (r *reporter) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for label := range r.open {
		for r.open[label] > 0 {
			r.release(label)
		}
	}
}

func (r *reporter) release(label string) {
	r.open[label]--
	if r.open[label] == 0 {
		delete(r.open, label)
	}

	r.emit(KeyRemoveLoad, label)
}

func (r *reporter) emit(key, label string) {
	for _, kind := range r.kinds {
		r.out.send(r.ctx, loadMessage(key, kind, label))
	}
}
