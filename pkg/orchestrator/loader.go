package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/mapset-verifier/server/pkg/beatmap"
	"github.com/mapset-verifier/server/pkg/observability"
)

// LoadLabel is the progress label reported while a set is being read.
const LoadLabel = "Loading beatmapset"

// Load outcomes.
const (
	loadHit        = "hit"
	loadLoaded     = "loaded"
	loadSuperseded = "superseded"
	loadFailed     = "failed"
)

// LoadFunc reads the beatmap set at path.
type LoadFunc func(ctx context.Context, path string) (*beatmap.Set, error)

// LoaderDeps holds the loader's collaborators. Zero-value optional fields use
// production defaults.
type LoaderDeps struct {
	// Load reads a set. Required.
	Load LoadFunc

	// Store receives published sets. Required.
	Store *Store

	// OnLoaded is called after every publish with the new path and epoch.
	OnLoaded func(path string, epoch uint64)

	Logger  *slog.Logger
	Tracer  trace.Tracer
	Metrics *observability.TaskMetrics
}

// Loader makes a path the active set, at most one load at a time.
type Loader struct {
	deps   LoaderDeps
	logger *slog.Logger
	tracer trace.Tracer

	mu  sync.Mutex
	seq atomic.Uint64
}

// NewLoader creates a loader publishing into deps.Store.
func NewLoader(deps LoaderDeps) *Loader {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tracer := deps.Tracer
	if tracer == nil {
		tracer = nooptrace.NewTracerProvider().Tracer("")
	}

	return &Loader{deps: deps, logger: logger, tracer: tracer}
}

// EnsureLoaded makes path the active set. It reports whether a load
// happened. A path that is already active and unchanged is not re-read.
// A call overtaken by a newer call while waiting for the lock returns
// (false, nil) without loading, and so does a failed load that a newer call
// is already queued behind. Other failures are returned as *LoadError and
// leave the store untouched. A progress that is also a FailureReporter hears
// about the failure before the lock is released.
func (l *Loader) EnsureLoaded(ctx context.Context, path string, progress Progress) (bool, error) {
	if progress == nil {
		progress = NopProgress{}
	}

	ticket := l.seq.Add(1)

	l.mu.Lock()
	defer l.mu.Unlock()

	start := time.Now()

	state := l.deps.Store.Active()
	if state.Set != nil && state.Path == path && !state.Dirty {
		l.deps.Metrics.RecordLoad(ctx, loadHit, time.Since(start))

		return false, nil
	}

	if l.seq.Load() != ticket {
		l.logger.DebugContext(ctx, "load superseded", "path", path)
		l.deps.Metrics.RecordLoad(ctx, loadSuperseded, time.Since(start))

		return false, nil
	}

	ctx, span := l.tracer.Start(ctx, "orchestrator.load",
		trace.WithAttributes(attribute.String("beatmapset.path", path)))
	defer span.End()

	progress.Start(LoadLabel)
	set, err := l.load(ctx, path)
	progress.Complete(LoadLabel)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")

		if l.seq.Load() != ticket {
			l.logger.DebugContext(ctx, "failed load superseded", "path", path, "error", err)
			l.deps.Metrics.RecordLoad(ctx, loadSuperseded, time.Since(start))

			return false, nil
		}

		l.logger.WarnContext(ctx, "load failed", "path", path, "error", err)
		l.deps.Metrics.RecordLoad(ctx, loadFailed, time.Since(start))

		loadErr := &LoadError{Path: path, Err: err}
		if reporter, ok := progress.(FailureReporter); ok {
			reporter.Fail(loadErr)
		}

		return false, loadErr
	}

	epoch := l.deps.Store.Publish(path, set)
	span.SetAttributes(attribute.Int64("beatmapset.epoch", int64(epoch)))
	l.deps.Metrics.RecordLoad(ctx, loadLoaded, time.Since(start))
	l.logger.InfoContext(ctx, "beatmapset loaded",
		"path", path, "epoch", epoch, "beatmaps", len(set.Beatmaps))

	if l.deps.OnLoaded != nil {
		l.deps.OnLoaded(path, epoch)
	}

	return true, nil
}

func (l *Loader) load(ctx context.Context, path string) (set *beatmap.Set, err error) {
	defer func() {
		if r := recover(); r != nil {
			set, err = nil, recovered(r)
		}
	}()

	return l.deps.Load(ctx, path)
}
