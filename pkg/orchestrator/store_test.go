package orchestrator_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/mapset-verifier/server/pkg/beatmap"
	"github.com/mapset-verifier/server/pkg/orchestrator"
)

func TestStore_ZeroState(t *testing.T) {
	t.Parallel()

	store := orchestrator.NewStore()

	assert.Equal(t, orchestrator.State{}, store.Active())
	assert.Empty(t, store.ActivePath())
	assert.Nil(t, store.ActiveSet())
	assert.Zero(t, store.Epoch())
}

func TestStore_PublishIncrementsEpoch(t *testing.T) {
	t.Parallel()

	store := orchestrator.NewStore()
	setA := &beatmap.Set{Path: "/maps/A"}
	setB := &beatmap.Set{Path: "/maps/B"}

	assert.Equal(t, uint64(1), store.Publish("/maps/A", setA))
	assert.Equal(t, uint64(2), store.Publish("/maps/B", setB))
	assert.Equal(t, uint64(3), store.Publish("/maps/B", setB))

	state := store.Active()
	assert.Equal(t, "/maps/B", state.Path)
	assert.Same(t, setB, state.Set)
	assert.Equal(t, uint64(3), state.Epoch)
	assert.True(t, store.Stale(orchestrator.Ticket{Path: "/maps/B", Epoch: 2}))
	assert.False(t, store.Stale(orchestrator.Ticket{Path: "/maps/B", Epoch: 3}))
}

func TestStore_Invalidate(t *testing.T) {
	t.Parallel()

	store := orchestrator.NewStore()
	assert.False(t, store.Invalidate(0), "nothing loaded")

	epoch := store.Publish("/maps/A", &beatmap.Set{Path: "/maps/A"})

	assert.False(t, store.Invalidate(epoch+1), "wrong epoch")
	assert.False(t, store.Active().Dirty)

	assert.True(t, store.Invalidate(epoch))
	assert.True(t, store.Invalidate(epoch), "already dirty")

	state := store.Active()
	assert.True(t, state.Dirty)
	assert.Equal(t, epoch, state.Epoch, "invalidation keeps the epoch")

	store.Publish("/maps/A", &beatmap.Set{Path: "/maps/A"})
	assert.False(t, store.Active().Dirty, "publish clears dirty")
}

// Every observed state pairs a path with the set loaded for that path.
func TestStore_ConcurrentPublishNeverTears(t *testing.T) {
	t.Parallel()

	const (
		writers   = 8
		publishes = 200
		readers   = 4
	)

	store := orchestrator.NewStore()

	var (
		writersWG sync.WaitGroup
		readersWG sync.WaitGroup
		done      = make(chan struct{})
		torn      sync.Map
	)

	for r := range readers {
		readersWG.Add(1)

		go func() {
			defer readersWG.Done()

			var lastEpoch uint64

			for {
				select {
				case <-done:
					return
				default:
				}

				state := store.Active()
				if state.Set != nil && state.Set.Path != state.Path {
					torn.Store(r, state.Path)
				}

				if state.Epoch < lastEpoch {
					torn.Store(-r-1, "epoch went backwards")
				}

				lastEpoch = state.Epoch
			}
		}()
	}

	for w := range writers {
		writersWG.Add(1)

		go func() {
			defer writersWG.Done()

			for i := range publishes {
				path := fmt.Sprintf("/maps/%d-%d", w, i)
				store.Publish(path, &beatmap.Set{Path: path})
			}
		}()
	}

	writersWG.Wait()
	close(done)
	readersWG.Wait()

	torn.Range(func(key, value any) bool {
		t.Errorf("reader %v observed torn state %v", key, value)

		return true
	})

	assert.Equal(t, uint64(writers*publishes), store.Epoch())
}

func TestStore_PublishProperty(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		store := orchestrator.NewStore()
		paths := rapid.SliceOfN(rapid.SampledFrom([]string{"/a", "/b", "/c"}), 1, 50).Draw(rt, "paths")

		for i, path := range paths {
			set := &beatmap.Set{Path: path}
			epoch := store.Publish(path, set)

			state := store.Active()
			require.Equal(rt, uint64(i+1), epoch)
			require.Equal(rt, epoch, state.Epoch)
			require.Equal(rt, path, state.Path)
			require.Same(rt, set, state.Set)
		}
	})
}
