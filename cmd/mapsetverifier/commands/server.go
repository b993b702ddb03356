package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/mapset-verifier/server/pkg/config"
	"github.com/mapset-verifier/server/pkg/hub"
	"github.com/mapset-verifier/server/pkg/observability"
	"github.com/mapset-verifier/server/pkg/orchestrator"
	"github.com/mapset-verifier/server/pkg/snapshot"
	"github.com/mapset-verifier/server/pkg/verifier"
	"github.com/mapset-verifier/server/pkg/watch"
)

// Server is the assembled serve process: snapshot database, verifier,
// orchestrator, WebSocket hub and directory watcher behind one HTTP handler.
type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	snapshots  *snapshot.Store
	store      *orchestrator.Store
	dispatcher *orchestrator.Dispatcher
	hub        *hub.Hub
	watcher    *watch.Watcher
	handler    http.Handler

	// ctx outlives client connections; refreshes started by the watcher
	// run under it.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer wires every component of the serve command.
func NewServer(ctx context.Context, cfg *config.Config, providers observability.Providers) (*Server, error) {
	logger := providers.Logger
	if logger == nil {
		logger = slog.Default()
	}

	maxFileSize, err := cfg.Snapshots.MaxFileSizeBytes()
	if err != nil {
		return nil, fmt.Errorf("snapshots: %w", err)
	}

	red, err := observability.NewREDMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("create RED metrics: %w", err)
	}

	taskMetrics, err := observability.NewTaskMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("create task metrics: %w", err)
	}

	snapshots, err := snapshot.Open(ctx, cfg.Snapshots.Database)
	if err != nil {
		return nil, err
	}

	v, err := verifier.New(verifier.Deps{
		Snapshots: snapshots,
		SnapshotOptions: snapshot.Options{
			HistoryLimit: cfg.Snapshots.HistoryLimit,
			MaxFileSize:  maxFileSize,
		},
		Logger: logger,
		Tracer: providers.Tracer,
	})
	if err != nil {
		snapshots.Close()

		return nil, err
	}

	srvCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		snapshots: snapshots,
		store:     orchestrator.NewStore(),
		ctx:       srvCtx,
		cancel:    cancel,
	}

	if cfg.Watch.Enabled {
		s.watcher, err = watch.New(watch.Options{
			Debounce: cfg.Watch.Debounce,
			OnChange: s.onChange,
			Logger:   logger,
		})
		if err != nil {
			cancel()
			snapshots.Close()

			return nil, fmt.Errorf("start watcher: %w", err)
		}
	}

	loader := orchestrator.NewLoader(orchestrator.LoaderDeps{
		Load:     v.Load,
		Store:    s.store,
		OnLoaded: s.onLoaded,
		Logger:   logger,
		Tracer:   providers.Tracer,
		Metrics:  taskMetrics,
	})

	s.hub = hub.New(hub.Deps{
		Handler: func(ctx context.Context, key, value string) {
			s.dispatcher.Handle(ctx, key, value)
		},
		WriteTimeout: cfg.Server.WriteTimeout,
		Logger:       logger,
		Tracer:       providers.Tracer,
		RED:          red,
	})

	deps := v.DispatcherDeps(s.store, loader, s.hub)
	deps.TaskTimeout = cfg.Analysis.TaskTimeout
	deps.Logger = logger
	deps.Tracer = providers.Tracer
	deps.Metrics = taskMetrics
	deps.RED = red
	s.dispatcher = orchestrator.NewDispatcher(deps)

	mux := http.NewServeMux()
	mux.Handle("/healthz", observability.HealthHandler())
	mux.Handle("/readyz", observability.ReadyHandler(snapshots.Ping))
	mux.Handle(cfg.Server.HubPath, s.hub)

	if providers.MetricsHandler != nil {
		mux.Handle("/metrics", providers.MetricsHandler)
	}

	s.handler = observability.HTTPMiddleware(providers.Tracer, mux)

	return s, nil
}

// Handler returns the HTTP handler serving the hub and the health routes.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Store returns the active set store.
func (s *Server) Store() *orchestrator.Store {
	return s.store
}

// Close disconnects the client and releases the watcher and the database.
func (s *Server) Close() error {
	s.cancel()

	var errs []error

	errs = append(errs, s.hub.Close())

	if s.watcher != nil {
		errs = append(errs, s.watcher.Close())
	}

	errs = append(errs, s.snapshots.Close())

	return errors.Join(errs...)
}

func (s *Server) onLoaded(path string, _ uint64) {
	if s.watcher == nil {
		return
	}

	err := s.watcher.Watch(path)
	if err != nil {
		s.logger.Warn("watch beatmap set", "path", path, "error", err)
	}
}

// onChange marks the active set dirty when its directory changed and, with
// auto refresh on, asks for it again so the client receives fresh results.
func (s *Server) onChange(dir string) {
	state := s.store.Active()
	if state.Set == nil || !samePath(state.Path, dir) {
		return
	}

	if !s.store.Invalidate(state.Epoch) {
		return
	}

	s.logger.Debug("beatmap set changed on disk", "path", state.Path, "epoch", state.Epoch)

	if !s.cfg.Watch.AutoRefresh || !s.hub.Connected() {
		return
	}

	s.dispatcher.Handle(s.ctx, orchestrator.KeyRequestBeatmapset, state.Path)
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)

	return errA == nil && errB == nil && absA == absB
}
