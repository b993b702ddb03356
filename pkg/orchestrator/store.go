package orchestrator

import (
	"sync/atomic"

	"github.com/mapset-verifier/server/pkg/beatmap"
)

// State is one published snapshot of the active beatmap set.
// The zero State has no set loaded and epoch 0.
type State struct {
	Path  string
	Set   *beatmap.Set
	Epoch uint64
	// Dirty marks a set whose directory changed on disk since it was loaded.
	Dirty bool
}

// Ticket is the identity a task was started with.
type Ticket struct {
	Path  string
	Epoch uint64
}

// Store holds the active set. Readers never block and never observe a path
// paired with another path's set.
type Store struct {
	state atomic.Pointer[State]
}

// NewStore returns an empty store.
func NewStore() *Store {
	s := &Store{}
	s.state.Store(&State{})

	return s
}

// Active returns the current state in one atomic read.
func (s *Store) Active() State {
	return *s.state.Load()
}

// ActivePath returns the path of the active set, or "" when none is loaded.
func (s *Store) ActivePath() string {
	return s.Active().Path
}

// ActiveSet returns the active set, or nil when none is loaded.
func (s *Store) ActiveSet() *beatmap.Set {
	return s.Active().Set
}

// Epoch returns the number of publishes so far.
func (s *Store) Epoch() uint64 {
	return s.Active().Epoch
}

// Stale reports whether the ticket no longer matches the active state.
func (s *Store) Stale(t Ticket) bool {
	return s.Epoch() != t.Epoch
}

// Publish makes set the active set for path and returns the new epoch.
func (s *Store) Publish(path string, set *beatmap.Set) uint64 {
	for {
		prev := s.state.Load()
		next := &State{Path: path, Set: set, Epoch: prev.Epoch + 1}

		if s.state.CompareAndSwap(prev, next) {
			return next.Epoch
		}
	}
}

// Invalidate marks the state dirty if it is still at epoch, so the next load
// of the same path re-reads it. The epoch itself is unchanged.
func (s *Store) Invalidate(epoch uint64) bool {
	for {
		prev := s.state.Load()
		if prev.Epoch != epoch || prev.Set == nil {
			return false
		}

		if prev.Dirty {
			return true
		}

		next := *prev
		next.Dirty = true

		if s.state.CompareAndSwap(prev, &next) {
			return true
		}
	}
}
