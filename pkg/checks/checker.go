package checks

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/mapset-verifier/server/pkg/beatmap"
	"github.com/mapset-verifier/server/pkg/observability"
)

// Progress receives per-category start and completion notices.
type Progress interface {
	Start(label string)
	Complete(label string)
}

// CategoryLabel is the progress label reported while a category runs.
func CategoryLabel(category string) string {
	return "Checking " + category
}

// CheckerDeps holds the checker's collaborators.
type CheckerDeps struct {
	Registry *Registry
	Logger   *slog.Logger
	Tracer   trace.Tracer
}

// Checker runs every registered check against a set.
type Checker struct {
	registry *Registry
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewChecker creates a checker.
func NewChecker(deps CheckerDeps) *Checker {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tracer := deps.Tracer
	if tracer == nil {
		tracer = nooptrace.NewTracerProvider().Tracer("")
	}

	return &Checker{registry: deps.Registry, logger: logger, tracer: tracer}
}

// Registry returns the checks the checker runs.
func (c *Checker) Registry() *Registry {
	return c.registry
}

// Run executes all checks. Categories run concurrently. A check that panics
// is reported as an error-level issue and does not stop the others. The
// returned issues are sorted by difficulty, then severity (most severe
// first), then check id.
func (c *Checker) Run(ctx context.Context, set *beatmap.Set, progress Progress) ([]Issue, error) {
	if progress == nil {
		progress = nopProgress{}
	}

	var (
		mu     sync.Mutex
		issues []Issue
	)

	g, gctx := errgroup.WithContext(ctx)

	for _, category := range c.registry.Categories() {
		g.Go(func() error {
			found, err := c.runCategory(gctx, set, category, progress)
			if err != nil {
				return err
			}

			mu.Lock()
			issues = append(issues, found...)
			mu.Unlock()

			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		return nil, fmt.Errorf("run checks: %w", err)
	}

	slices.SortStableFunc(issues, func(a, b Issue) int {
		return cmp.Or(
			cmp.Compare(a.Beatmap, b.Beatmap),
			cmp.Compare(b.Level, a.Level),
			cmp.Compare(a.CheckID, b.CheckID),
		)
	})

	return issues, nil
}

func (c *Checker) runCategory(ctx context.Context, set *beatmap.Set, category string, progress Progress) ([]Issue, error) {
	ctx, span := c.tracer.Start(ctx, observability.SpanCheckCategory,
		trace.WithAttributes(attribute.String("checks.category", category)))
	defer span.End()

	label := CategoryLabel(category)
	progress.Start(label)

	defer progress.Complete(label)

	var issues []Issue

	for _, check := range c.registry.InCategory(category) {
		err := ctx.Err()
		if err != nil {
			return nil, err
		}

		issues = append(issues, c.runCheck(ctx, check, set)...)
	}

	span.SetAttributes(attribute.Int("checks.issues", len(issues)))

	return issues, nil
}

func (c *Checker) runCheck(ctx context.Context, check Check, set *beatmap.Set) (issues []Issue) {
	meta := check.Meta()

	defer func() {
		if r := recover(); r != nil {
			c.logger.ErrorContext(ctx, "check panicked", "check", meta.ID, "panic", r)

			issues = []Issue{{
				CheckID: meta.ID,
				Level:   LevelError,
				Message: fmt.Sprintf("Unable to run check %q: %v", meta.Message, r),
			}}
		}
	}()

	return check.Run(set)
}

type nopProgress struct{}

func (nopProgress) Start(string)    {}
func (nopProgress) Complete(string) {}
