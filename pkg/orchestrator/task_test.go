package orchestrator_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapset-verifier/server/pkg/beatmap"
	"github.com/mapset-verifier/server/pkg/orchestrator"
	"github.com/mapset-verifier/server/pkg/orchestrator/orchestratortest"
)

func TestTask_StaleBeforeComputeSkipsCollaborator(t *testing.T) {
	t.Parallel()

	store := orchestrator.NewStore()
	epoch := store.Publish("/maps/A", &beatmap.Set{Path: "/maps/A"})
	store.Publish("/maps/B", &beatmap.Set{Path: "/maps/B"})

	called := false
	analysis := stub(orchestrator.KindChecks, func(context.Context, *beatmap.Set, orchestrator.Progress) (string, error) {
		called = true

		return "", nil
	})

	recorder := orchestratortest.NewRecorder()
	outcome := orchestrator.RunTask(context.Background(), store, recorder, analysis,
		orchestrator.Ticket{Path: "/maps/A", Epoch: epoch}, 0)

	assert.Equal(t, orchestrator.OutcomeStaleBefore, outcome)
	assert.False(t, called)
	assert.Empty(t, recorder.Messages())
}

func TestTask_ReloadOfSamePathIsStale(t *testing.T) {
	t.Parallel()

	store := orchestrator.NewStore()
	epoch := store.Publish("/maps/A", &beatmap.Set{Path: "/maps/A"})

	analysis := stub(orchestrator.KindSnapshots, func(context.Context, *beatmap.Set, orchestrator.Progress) (string, error) {
		// The directory changed and was re-read under the same path.
		store.Publish("/maps/A", &beatmap.Set{Path: "/maps/A"})

		return "", nil
	})

	recorder := orchestratortest.NewRecorder()
	outcome := orchestrator.RunTask(context.Background(), store, recorder, analysis,
		orchestrator.Ticket{Path: "/maps/A", Epoch: epoch}, 0)

	assert.Equal(t, orchestrator.OutcomeStaleAfter, outcome)
	assert.Empty(t, recorder.WithKey(orchestrator.KeyUpdateSnapshots))
}

func TestTask_ProgressAfterStaleIsDropped(t *testing.T) {
	t.Parallel()

	store := orchestrator.NewStore()
	epoch := store.Publish("/maps/A", &beatmap.Set{Path: "/maps/A"})

	analysis := stub(orchestrator.KindChecks, func(_ context.Context, _ *beatmap.Set, progress orchestrator.Progress) (string, error) {
		progress.Start("Checking General")
		store.Publish("/maps/B", &beatmap.Set{Path: "/maps/B"})
		progress.Start("Checking Timing")
		progress.Complete("Checking Timing")
		progress.Complete("Checking General")

		return "", nil
	})

	recorder := orchestratortest.NewRecorder()
	orchestrator.RunTask(context.Background(), store, recorder, analysis,
		orchestrator.Ticket{Path: "/maps/A", Epoch: epoch}, 0)

	assert.Equal(t, []orchestrator.Message{
		{Key: orchestrator.KeyAddLoad, Value: "Checks:Checking General"},
		{Key: orchestrator.KeyRemoveLoad, Value: "Checks:Checking General"},
	}, recorder.Messages())
}

func TestTask_UnbalancedProgressIsClosed(t *testing.T) {
	t.Parallel()

	store := orchestrator.NewStore()
	epoch := store.Publish("/maps/A", &beatmap.Set{Path: "/maps/A"})

	analysis := stub(orchestrator.KindOverview, func(_ context.Context, _ *beatmap.Set, progress orchestrator.Progress) (string, error) {
		progress.Start("Counting <objects>")
		panic("boom")
	})

	recorder := orchestratortest.NewRecorder()
	outcome := orchestrator.RunTask(context.Background(), store, recorder, analysis,
		orchestrator.Ticket{Path: "/maps/A", Epoch: epoch}, 0)

	assert.Equal(t, orchestrator.OutcomeFailed, outcome)
	assert.Empty(t, recorder.OpenLoads())
	assert.Contains(t, recorder.Messages(), orchestrator.Message{
		Key: orchestrator.KeyAddLoad, Value: "Overview:Counting &lt;objects&gt;",
	})
}

func TestTask_TimeoutBecomesException(t *testing.T) {
	t.Parallel()

	store := orchestrator.NewStore()
	epoch := store.Publish("/maps/A", &beatmap.Set{Path: "/maps/A"})

	analysis := stub(orchestrator.KindSnapshots, func(ctx context.Context, _ *beatmap.Set, _ orchestrator.Progress) (string, error) {
		<-ctx.Done()

		return "", ctx.Err()
	})

	recorder := orchestratortest.NewRecorder()
	outcome := orchestrator.RunTask(context.Background(), store, recorder, analysis,
		orchestrator.Ticket{Path: "/maps/A", Epoch: epoch}, 10*time.Millisecond)

	assert.Equal(t, orchestrator.OutcomeFailed, outcome)

	exceptions := recorder.Exceptions(orchestrator.KindSnapshots)
	require.Len(t, exceptions, 1)
	assert.Contains(t, exceptions[0].Value, context.DeadlineExceeded.Error())
}

func TestKind_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Checks", orchestrator.KindChecks.String())
	assert.Equal(t, "Snapshots", orchestrator.KindSnapshots.String())
	assert.Equal(t, "Overview", orchestrator.KindOverview.String())
	assert.Equal(t, "Documentation", orchestrator.KindDocumentation.String())
	assert.Equal(t, "Overlay", orchestrator.KindOverlay.String())
	assert.Equal(t, orchestrator.KeyUpdateChecks, orchestrator.UpdateKey(orchestrator.KindChecks))
	assert.Equal(t, orchestrator.KeyUpdateOverview, orchestrator.UpdateKey(orchestrator.KindOverview))
}
