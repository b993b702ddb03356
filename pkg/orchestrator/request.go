package orchestrator

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Request groups the goroutines started for one inbound message.
type Request struct {
	group errgroup.Group

	mu       sync.Mutex
	outcomes map[Kind]Outcome
}

func newRequest() *Request {
	return &Request{outcomes: make(map[Kind]Outcome)}
}

// spawn runs fn in the group. It may be called from a goroutine of the same
// group.
func (r *Request) spawn(ctx context.Context, fn func(ctx context.Context)) {
	r.group.Go(func() error {
		fn(ctx)

		return nil
	})
}

func (r *Request) record(kind Kind, outcome Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.outcomes[kind] = outcome
}

// Wait blocks until every task of the request has published or abandoned.
func (r *Request) Wait() {
	_ = r.group.Wait() //nolint:errcheck // spawned functions never fail.
}

// Outcomes returns how each analysis task of the request ended. A superseded
// request reports OutcomeSuperseded for every kind; after a failed load the
// map is empty. Call after Wait.
func (r *Request) Outcomes() map[Kind]Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[Kind]Outcome, len(r.outcomes))
	for k, v := range r.outcomes {
		out[k] = v
	}

	return out
}
