package orchestrator

import (
	"context"
	"log/slog"
	"time"

	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

// Queued exposes the number of EnsureLoaded calls that have entered.
func (l *Loader) Queued() uint64 {
	return l.seq.Load()
}

// RunTask runs a single analysis task outside a dispatcher.
func RunTask(ctx context.Context, store *Store, sender Sender, a Analysis, ticket Ticket, timeout time.Duration) Outcome {
	t := &task{
		analysis:        a,
		store:           store,
		out:             outbox{sender: sender, logger: slog.Default()},
		renderException: func(err error) string { return err.Error() },
		logger:          slog.Default(),
		tracer:          nooptrace.NewTracerProvider().Tracer(""),
		timeout:         timeout,
	}

	return t.run(ctx, ticket)
}
