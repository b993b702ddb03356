// Package verifier binds the beatmap loader, the check and snapshot engines
// and the renderers into the analyses the orchestrator runs.
package verifier

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/mapset-verifier/server/pkg/beatmap"
	"github.com/mapset-verifier/server/pkg/checks"
	"github.com/mapset-verifier/server/pkg/orchestrator"
	"github.com/mapset-verifier/server/pkg/render"
	"github.com/mapset-verifier/server/pkg/snapshot"
)

// LabelStatistics is the progress label of the overview analysis.
const LabelStatistics = "Computing statistics"

// Deps holds the collaborators of a Verifier.
type Deps struct {
	// Registry defaults to checks.Default().
	Registry *checks.Registry

	// Snapshots stores file recordings. Nil leaves the snapshot analysis
	// out.
	Snapshots       *snapshot.Store
	SnapshotOptions snapshot.Options

	Loader beatmap.Loader
	Logger *slog.Logger
	Tracer trace.Tracer
}

// Verifier is the composition root of the analyses.
type Verifier struct {
	registry    *checks.Registry
	checker     *checks.Checker
	snapshotter *snapshot.Snapshotter
	loader      beatmap.Loader
}

// New creates a Verifier.
func New(deps Deps) (*Verifier, error) {
	registry := deps.Registry
	if registry == nil {
		var err error

		registry, err = checks.Default()
		if err != nil {
			return nil, fmt.Errorf("load checks: %w", err)
		}
	}

	v := &Verifier{
		registry: registry,
		checker:  checks.NewChecker(checks.CheckerDeps{Registry: registry, Logger: deps.Logger, Tracer: deps.Tracer}),
		loader:   deps.Loader,
	}

	if deps.Snapshots != nil {
		v.snapshotter = snapshot.NewSnapshotter(snapshot.SnapshotterDeps{
			Store:   deps.Snapshots,
			Options: deps.SnapshotOptions,
			Logger:  deps.Logger,
			Tracer:  deps.Tracer,
		})
	}

	return v, nil
}

// Registry returns the registered checks.
func (v *Verifier) Registry() *checks.Registry {
	return v.registry
}

// Checker returns the check engine.
func (v *Verifier) Checker() *checks.Checker {
	return v.checker
}

// Load reads the beatmap set at path.
func (v *Verifier) Load(ctx context.Context, path string) (*beatmap.Set, error) {
	return v.loader.Load(ctx, path)
}

// Analyses returns the analyses run for every loaded set: checks, snapshots
// (when a store is configured) and overview.
func (v *Verifier) Analyses() []orchestrator.Analysis {
	analyses := []orchestrator.Analysis{
		orchestrator.NewAnalysis(orchestrator.KindChecks,
			func(ctx context.Context, set *beatmap.Set, progress orchestrator.Progress) ([]checks.Issue, error) {
				return v.checker.Run(ctx, set, progress)
			},
			func(issues []checks.Issue, set *beatmap.Set) (string, error) {
				return render.Checks(v.registry, issues, set)
			},
		),
	}

	if v.snapshotter != nil {
		analyses = append(analyses, orchestrator.NewAnalysis(orchestrator.KindSnapshots,
			func(ctx context.Context, set *beatmap.Set, progress orchestrator.Progress) ([]snapshot.FileHistory, error) {
				return v.snapshotter.Compute(ctx, set, progress)
			},
			render.Snapshots,
		))
	}

	return append(analyses, orchestrator.NewAnalysis(orchestrator.KindOverview, statistics, render.Overview))
}

// Documentation renders the documentation page.
func (v *Verifier) Documentation() (string, error) {
	return render.Documentation(v.registry)
}

// Overlay renders the documentation overlay of the check with message.
func (v *Verifier) Overlay(message string) (string, error) {
	return render.Overlay(v.registry, message)
}

// RenderException renders an error for an UpdateException message.
func (v *Verifier) RenderException(err error) string {
	return render.Exception(err)
}

// DispatcherDeps returns dispatcher dependencies with every verifier hook
// filled in. Callers add logging, tracing, metrics and the task timeout.
func (v *Verifier) DispatcherDeps(store *orchestrator.Store, loader *orchestrator.Loader, sender orchestrator.Sender) orchestrator.Deps {
	return orchestrator.Deps{
		Store:           store,
		Loader:          loader,
		Sender:          sender,
		Analyses:        v.Analyses(),
		Documentation:   v.Documentation,
		Overlay:         v.Overlay,
		RenderException: v.RenderException,
	}
}

func statistics(ctx context.Context, set *beatmap.Set, progress orchestrator.Progress) ([]beatmap.Stats, error) {
	progress.Start(LabelStatistics)
	defer progress.Complete(LabelStatistics)

	stats := make([]beatmap.Stats, 0, len(set.Beatmaps))

	for _, bm := range set.Beatmaps {
		err := ctx.Err()
		if err != nil {
			return nil, fmt.Errorf("compute statistics: %w", err)
		}

		stats = append(stats, bm.Statistics())
	}

	return stats, nil
}
