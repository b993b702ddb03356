// Package orchestratortest provides test doubles for the orchestrator.
package orchestratortest

import (
	"context"
	"strings"
	"sync"

	"github.com/mapset-verifier/server/pkg/orchestrator"
)

// Recorder is a Sender that keeps every message it is given.
// It is safe under concurrent Send calls.
type Recorder struct {
	mu       sync.Mutex
	messages []orchestrator.Message
	err      error
}

// NewRecorder constructs a Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Send records msg and returns the configured failure, if any.
func (r *Recorder) Send(_ context.Context, msg orchestrator.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.messages = append(r.messages, msg)

	return r.err
}

// FailWith makes later Sends return err (the message is still recorded).
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// Messages returns a snapshot copy of recorded messages in send order.
func (r *Recorder) Messages() []orchestrator.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := make([]orchestrator.Message, len(r.messages))
	copy(cp, r.messages)

	return cp
}

// WithKey returns the recorded messages with the given key.
func (r *Recorder) WithKey(key string) []orchestrator.Message {
	var out []orchestrator.Message

	for _, msg := range r.Messages() {
		if msg.Key == key {
			out = append(out, msg)
		}
	}

	return out
}

// Exceptions returns UpdateException messages tagged with kind.
func (r *Recorder) Exceptions(kind orchestrator.Kind) []orchestrator.Message {
	var out []orchestrator.Message

	prefix := kind.String() + ":"

	for _, msg := range r.WithKey(orchestrator.KeyUpdateException) {
		if strings.HasPrefix(msg.Value, prefix) {
			out = append(out, msg)
		}
	}

	return out
}

// OpenLoads returns, per AddLoad value, how many indicators are still open
// (AddLoad count minus RemoveLoad count). Balanced values are omitted.
func (r *Recorder) OpenLoads() map[string]int {
	open := make(map[string]int)

	for _, msg := range r.Messages() {
		switch msg.Key {
		case orchestrator.KeyAddLoad:
			open[msg.Value]++
		case orchestrator.KeyRemoveLoad:
			open[msg.Value]--
		}
	}

	for k, v := range open {
		if v == 0 {
			delete(open, k)
		}
	}

	return open
}

// Reset clears the recorder.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.messages = nil
	r.mu.Unlock()
}
