package orchestrator_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapset-verifier/server/pkg/beatmap"
	"github.com/mapset-verifier/server/pkg/orchestrator"
	"github.com/mapset-verifier/server/pkg/orchestrator/orchestratortest"
)

type computeFunc func(ctx context.Context, set *beatmap.Set, progress orchestrator.Progress) (string, error)

// stub returns an analysis whose rendered output names the kind and the set
// path it was computed on.
func stub(kind orchestrator.Kind, compute computeFunc) orchestrator.Analysis {
	if compute == nil {
		compute = func(context.Context, *beatmap.Set, orchestrator.Progress) (string, error) { return "", nil }
	}

	return orchestrator.NewAnalysis(kind,
		func(ctx context.Context, set *beatmap.Set, progress orchestrator.Progress) (string, error) {
			note, err := compute(ctx, set, progress)
			if err != nil {
				return "", err
			}

			return kind.String() + " of " + set.Path + note, nil
		},
		func(result string, _ *beatmap.Set) (string, error) { return result, nil },
	)
}

type harness struct {
	src        *fakeSource
	store      *orchestrator.Store
	recorder   *orchestratortest.Recorder
	dispatcher *orchestrator.Dispatcher
}

func newHarness(t *testing.T, analyses ...orchestrator.Analysis) *harness {
	t.Helper()

	h := &harness{
		src:      newFakeSource("/bad/path"),
		store:    orchestrator.NewStore(),
		recorder: orchestratortest.NewRecorder(),
	}

	h.dispatcher = orchestrator.NewDispatcher(orchestrator.Deps{
		Store:    h.store,
		Loader:   newLoader(h.src, h.store),
		Sender:   h.recorder,
		Analyses: analyses,
		Documentation: func() (string, error) {
			return "<div>docs</div>", nil
		},
		Overlay: func(message string) (string, error) {
			if message == "" {
				return "", errors.New("empty message")
			}

			return "<div>" + message + "</div>", nil
		},
	})

	return h
}

func (h *harness) handle(key, value string) *orchestrator.Request {
	return h.dispatcher.Handle(context.Background(), key, value)
}

func updates(msgs []orchestrator.Message) []orchestrator.Message {
	var out []orchestrator.Message

	for _, m := range msgs {
		if strings.HasPrefix(m.Key, "Update") {
			out = append(out, m)
		}
	}

	return out
}

func TestDispatcher_PublishesEveryAnalysis(t *testing.T) {
	t.Parallel()

	h := newHarness(t,
		stub(orchestrator.KindChecks, nil),
		stub(orchestrator.KindSnapshots, nil),
		stub(orchestrator.KindOverview, nil),
	)

	req := h.handle(orchestrator.KeyRequestBeatmapset, "/maps/A")
	req.Wait()

	assert.Equal(t, []orchestrator.Message{{Key: orchestrator.KeyUpdateChecks, Value: "Checks of /maps/A"}},
		h.recorder.WithKey(orchestrator.KeyUpdateChecks))
	assert.Equal(t, []orchestrator.Message{{Key: orchestrator.KeyUpdateSnapshots, Value: "Snapshots of /maps/A"}},
		h.recorder.WithKey(orchestrator.KeyUpdateSnapshots))
	assert.Equal(t, []orchestrator.Message{{Key: orchestrator.KeyUpdateOverview, Value: "Overview of /maps/A"}},
		h.recorder.WithKey(orchestrator.KeyUpdateOverview))

	assert.Equal(t, map[orchestrator.Kind]orchestrator.Outcome{
		orchestrator.KindChecks:    orchestrator.OutcomePublished,
		orchestrator.KindSnapshots: orchestrator.OutcomePublished,
		orchestrator.KindOverview:  orchestrator.OutcomePublished,
	}, req.Outcomes())

	adds := h.recorder.WithKey(orchestrator.KeyAddLoad)
	assert.Contains(t, adds, orchestrator.Message{Key: orchestrator.KeyAddLoad, Value: "Checks:Loading beatmapset"})
	assert.Contains(t, adds, orchestrator.Message{Key: orchestrator.KeyAddLoad, Value: "Overview:Loading beatmapset"})
	assert.Empty(t, h.recorder.OpenLoads())
}

func TestDispatcher_SamePathLoadsOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t, stub(orchestrator.KindChecks, nil))

	h.handle(orchestrator.KeyRequestBeatmapset, "/maps/A").Wait()
	h.handle(orchestrator.KeyRequestBeatmapset, "/maps/A").Wait()

	assert.Equal(t, 1, h.src.count("/maps/A"))
	assert.Len(t, h.recorder.WithKey(orchestrator.KeyUpdateChecks), 2)
	assert.Equal(t, uint64(1), h.store.Epoch())
}

// Load /maps/A, start checks and snapshots, then load /maps/B before either
// finishes. Nothing computed on A may reach the client.
func TestDispatcher_SupersededSetIsNeverPublished(t *testing.T) {
	t.Parallel()

	var started sync.WaitGroup

	started.Add(2)

	release := make(chan struct{})
	blockOnA := func(_ context.Context, set *beatmap.Set, progress orchestrator.Progress) (string, error) {
		if set.Path == "/maps/A" {
			progress.Start("Computing")
			started.Done()
			<-release
			progress.Complete("Computing")
		}

		return "", nil
	}

	h := newHarness(t,
		stub(orchestrator.KindChecks, blockOnA),
		stub(orchestrator.KindSnapshots, blockOnA),
	)

	reqA := h.handle(orchestrator.KeyRequestBeatmapset, "/maps/A")
	started.Wait()

	reqB := h.handle(orchestrator.KeyRequestBeatmapset, "/maps/B")
	reqB.Wait()
	close(release)
	reqA.Wait()

	for _, msg := range h.recorder.Messages() {
		assert.NotContains(t, msg.Value, "/maps/A")
	}

	assert.Equal(t, []orchestrator.Message{{Key: orchestrator.KeyUpdateChecks, Value: "Checks of /maps/B"}},
		h.recorder.WithKey(orchestrator.KeyUpdateChecks))
	assert.Equal(t, []orchestrator.Message{{Key: orchestrator.KeyUpdateSnapshots, Value: "Snapshots of /maps/B"}},
		h.recorder.WithKey(orchestrator.KeyUpdateSnapshots))
	assert.Empty(t, h.recorder.WithKey(orchestrator.KeyUpdateException))

	assert.Equal(t, orchestrator.OutcomeStaleAfter, reqA.Outcomes()[orchestrator.KindChecks])
	assert.Equal(t, orchestrator.OutcomeStaleAfter, reqA.Outcomes()[orchestrator.KindSnapshots])
	assert.Empty(t, h.recorder.OpenLoads(), "indicators opened on A are closed")
}

func TestDispatcher_BadPathReportsEveryKind(t *testing.T) {
	t.Parallel()

	h := newHarness(t,
		stub(orchestrator.KindChecks, nil),
		stub(orchestrator.KindSnapshots, nil),
		stub(orchestrator.KindOverview, nil),
	)

	h.handle(orchestrator.KeyRequestBeatmapset, "/maps/A").Wait()
	before := h.store.Active()
	h.recorder.Reset()

	req := h.handle(orchestrator.KeyRequestBeatmapset, "/bad/path")
	req.Wait()

	for _, kind := range []orchestrator.Kind{orchestrator.KindChecks, orchestrator.KindSnapshots, orchestrator.KindOverview} {
		exceptions := h.recorder.Exceptions(kind)
		require.Len(t, exceptions, 1, kind.String())
		assert.Contains(t, exceptions[0].Value, errNoSuchSet.Error())
	}

	assert.Len(t, updates(h.recorder.Messages()), 3, "only the three exceptions")
	assert.Equal(t, before, h.store.Active())
	assert.Empty(t, req.Outcomes())
	assert.Empty(t, h.recorder.OpenLoads())
}

// holdExceptions delays UpdateException messages until ready reports true or
// a second has passed.
type holdExceptions struct {
	*orchestratortest.Recorder
	ready func() bool
}

func (h holdExceptions) Send(ctx context.Context, msg orchestrator.Message) error {
	if msg.Key == orchestrator.KeyUpdateException {
		deadline := time.Now().Add(time.Second)
		for !h.ready() && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
	}

	return h.Recorder.Send(ctx, msg)
}

// /bad/path fails after a request for /maps/B queued behind it. However
// slowly the failure would be delivered, the Checks section must end on B.
func TestDispatcher_SupersededLoadFailureIsDropped(t *testing.T) {
	t.Parallel()

	src := newFakeSource("/bad/path")
	store := orchestrator.NewStore()
	loader := newLoader(src, store)
	recorder := orchestratortest.NewRecorder()
	release := src.block("/bad/path")

	dispatcher := orchestrator.NewDispatcher(orchestrator.Deps{
		Store:  store,
		Loader: loader,
		Sender: holdExceptions{
			Recorder: recorder,
			ready:    func() bool { return len(recorder.WithKey(orchestrator.KeyUpdateChecks)) > 0 },
		},
		Analyses: []orchestrator.Analysis{stub(orchestrator.KindChecks, nil)},
	})

	ctx := context.Background()

	bad := dispatcher.Handle(ctx, orchestrator.KeyRequestBeatmapset, "/bad/path")
	require.Eventually(t, func() bool { return src.count("/bad/path") == 1 }, time.Second, time.Millisecond)

	reqB := dispatcher.Handle(ctx, orchestrator.KeyRequestBeatmapset, "/maps/B")
	require.Eventually(t, func() bool { return loader.Queued() == 2 }, time.Second, time.Millisecond)

	release()
	bad.Wait()
	reqB.Wait()

	section := append(recorder.WithKey(orchestrator.KeyUpdateChecks), recorder.Exceptions(orchestrator.KindChecks)...)

	assert.Equal(t, []orchestrator.Message{{Key: orchestrator.KeyUpdateChecks, Value: "Checks of /maps/B"}}, section)

	assert.Equal(t, map[orchestrator.Kind]orchestrator.Outcome{orchestrator.KindChecks: orchestrator.OutcomeSuperseded}, bad.Outcomes())
	assert.Equal(t, orchestrator.OutcomePublished, reqB.Outcomes()[orchestrator.KindChecks])
	assert.Empty(t, recorder.OpenLoads())
}

// A failure that nobody superseded is delivered before a later request can
// publish anything.
func TestDispatcher_LoadFailurePrecedesLaterResults(t *testing.T) {
	t.Parallel()

	h := newHarness(t, stub(orchestrator.KindChecks, nil))

	h.handle(orchestrator.KeyRequestBeatmapset, "/bad/path").Wait()
	h.handle(orchestrator.KeyRequestBeatmapset, "/maps/B").Wait()

	got := updates(h.recorder.Messages())
	require.Len(t, got, 2)
	assert.Equal(t, orchestrator.KeyUpdateException, got[0].Key)
	assert.Equal(t, orchestrator.Message{Key: orchestrator.KeyUpdateChecks, Value: "Checks of /maps/B"}, got[1])
}

func TestDispatcher_FailureIsolation(t *testing.T) {
	t.Parallel()

	h := newHarness(t,
		stub(orchestrator.KindChecks, func(context.Context, *beatmap.Set, orchestrator.Progress) (string, error) {
			return "", errors.New("check engine exploded")
		}),
		stub(orchestrator.KindSnapshots, nil),
		stub(orchestrator.KindOverview, func(context.Context, *beatmap.Set, orchestrator.Progress) (string, error) {
			panic("nil difficulty")
		}),
	)

	req := h.handle(orchestrator.KeyRequestBeatmapset, "/maps/A")
	req.Wait()

	checks := h.recorder.Exceptions(orchestrator.KindChecks)
	require.Len(t, checks, 1)
	assert.Contains(t, checks[0].Value, "check engine exploded")

	overview := h.recorder.Exceptions(orchestrator.KindOverview)
	require.Len(t, overview, 1)
	assert.Contains(t, overview[0].Value, "nil difficulty")

	assert.Empty(t, h.recorder.Exceptions(orchestrator.KindSnapshots))
	assert.Equal(t, []orchestrator.Message{{Key: orchestrator.KeyUpdateSnapshots, Value: "Snapshots of /maps/A"}},
		h.recorder.WithKey(orchestrator.KeyUpdateSnapshots))
	assert.Empty(t, h.recorder.WithKey(orchestrator.KeyUpdateChecks))

	assert.Equal(t, orchestrator.OutcomeFailed, req.Outcomes()[orchestrator.KindChecks])
	assert.Equal(t, orchestrator.OutcomePublished, req.Outcomes()[orchestrator.KindSnapshots])
	assert.Equal(t, orchestrator.OutcomeFailed, req.Outcomes()[orchestrator.KindOverview])
}

func TestDispatcher_RenderErrorIsAnException(t *testing.T) {
	t.Parallel()

	failing := orchestrator.NewAnalysis(orchestrator.KindOverview,
		func(context.Context, *beatmap.Set, orchestrator.Progress) (int, error) { return 1, nil },
		func(int, *beatmap.Set) (string, error) { return "", errors.New("template broke") },
	)

	h := newHarness(t, failing)
	h.handle(orchestrator.KeyRequestBeatmapset, "/maps/A").Wait()

	exceptions := h.recorder.Exceptions(orchestrator.KindOverview)
	require.Len(t, exceptions, 1)
	assert.Contains(t, exceptions[0].Value, "template broke")
}

func TestDispatcher_OrderIndependence(t *testing.T) {
	t.Parallel()

	delays := [][3]time.Duration{
		{0, 0, 0},
		{9 * time.Millisecond, 3 * time.Millisecond, 0},
		{0, 3 * time.Millisecond, 9 * time.Millisecond},
		{3 * time.Millisecond, 9 * time.Millisecond, 0},
	}

	var baseline []orchestrator.Message

	for i, d := range delays {
		sleep := func(delay time.Duration) computeFunc {
			return func(context.Context, *beatmap.Set, orchestrator.Progress) (string, error) {
				time.Sleep(delay)

				return "", nil
			}
		}

		h := newHarness(t,
			stub(orchestrator.KindChecks, sleep(d[0])),
			stub(orchestrator.KindSnapshots, sleep(d[1])),
			stub(orchestrator.KindOverview, sleep(d[2])),
		)

		h.handle(orchestrator.KeyRequestBeatmapset, "/maps/A").Wait()

		got := updates(h.recorder.Messages())
		sort.Slice(got, func(a, b int) bool { return got[a].Key < got[b].Key })

		if i == 0 {
			baseline = got

			continue
		}

		assert.Equal(t, baseline, got, "delays %v", d)
	}

	assert.Len(t, baseline, 3)
}

func TestDispatcher_Documentation(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	req := h.handle(orchestrator.KeyRequestDocumentation, "")

	// Inline requests are sent before Handle returns.
	assert.Equal(t, []orchestrator.Message{{Key: orchestrator.KeyUpdateDocumentation, Value: "<div>docs</div>"}},
		h.recorder.Messages())

	req.Wait()
	assert.Empty(t, req.Outcomes())
}

func TestDispatcher_Overlay(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	h.handle(orchestrator.KeyRequestOverlay, "Missing audio file.")
	assert.Equal(t, []orchestrator.Message{{Key: orchestrator.KeyUpdateOverlay, Value: "<div>Missing audio file.</div>"}},
		h.recorder.Messages())

	h.recorder.Reset()
	h.handle(orchestrator.KeyRequestOverlay, "")

	exceptions := h.recorder.Exceptions(orchestrator.KindOverlay)
	require.Len(t, exceptions, 1)
	assert.Equal(t, "Overlay:empty message", exceptions[0].Value)
}

func TestDispatcher_UnknownKeyIsIgnored(t *testing.T) {
	t.Parallel()

	h := newHarness(t, stub(orchestrator.KindChecks, nil))

	h.handle("RequestEverything", "/maps/A").Wait()

	assert.Empty(t, h.recorder.Messages())
	assert.Zero(t, h.src.total())
}

func TestDispatcher_SendFailuresDoNotStopTasks(t *testing.T) {
	t.Parallel()

	h := newHarness(t, stub(orchestrator.KindChecks, nil), stub(orchestrator.KindOverview, nil))
	h.recorder.FailWith(errors.New("client gone"))

	req := h.handle(orchestrator.KeyRequestBeatmapset, "/maps/A")
	req.Wait()

	assert.Equal(t, orchestrator.OutcomePublished, req.Outcomes()[orchestrator.KindChecks])
	assert.Equal(t, orchestrator.OutcomePublished, req.Outcomes()[orchestrator.KindOverview])
}

func TestDispatcher_ConcurrentRequestsSettleOnLatest(t *testing.T) {
	t.Parallel()

	h := newHarness(t,
		stub(orchestrator.KindChecks, nil),
		stub(orchestrator.KindSnapshots, nil),
	)

	const requests = 30

	reqs := make([]*orchestrator.Request, 0, requests)

	var mu sync.Mutex

	var wg sync.WaitGroup

	for i := range requests {
		wg.Add(1)

		go func() {
			defer wg.Done()

			req := h.handle(orchestrator.KeyRequestBeatmapset, fmt.Sprintf("/maps/%d", i%4))

			mu.Lock()
			reqs = append(reqs, req)
			mu.Unlock()
		}()
	}

	wg.Wait()

	for _, req := range reqs {
		req.Wait()
	}

	// A final request for the active path publishes exactly once more.
	active := h.store.ActivePath()
	h.recorder.Reset()
	h.handle(orchestrator.KeyRequestBeatmapset, active).Wait()

	assert.Equal(t, []orchestrator.Message{{Key: orchestrator.KeyUpdateChecks, Value: "Checks of " + active}},
		h.recorder.WithKey(orchestrator.KeyUpdateChecks))
	assert.Empty(t, h.recorder.OpenLoads())
}
