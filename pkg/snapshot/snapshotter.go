package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/mapset-verifier/server/pkg/beatmap"
	"github.com/mapset-verifier/server/pkg/observability"
)

// Progress labels reported by Compute.
const (
	LabelRecording = "Recording snapshots"
	LabelComparing = "Comparing snapshots"
)

// DefaultHistoryLimit is the number of recordings compared per file.
const DefaultHistoryLimit = 20

// Progress receives start and completion notices.
type Progress interface {
	Start(label string)
	Complete(label string)
}

// FileHistory is the recorded history of one beatmap file.
type FileHistory struct {
	File    string
	Version string
	// Recordings is the number of recordings compared.
	Recordings int
	// First is when the file was first seen within the compared window.
	First time.Time
	// Diffs between consecutive recordings, oldest first. Identical
	// neighbours are not included.
	Diffs []Diff
	// Skipped is set when the file exceeded the size limit.
	Skipped bool
}

// Options tune the snapshotter.
type Options struct {
	// HistoryLimit caps the recordings loaded per file.
	HistoryLimit int
	// MaxFileSize skips files larger than this many bytes. Zero disables
	// the limit.
	MaxFileSize int64
	// Now defaults to time.Now.
	Now func() time.Time
}

// SnapshotterDeps holds the snapshotter's collaborators.
type SnapshotterDeps struct {
	Store   *Store
	Options Options
	Logger  *slog.Logger
	Tracer  trace.Tracer
}

// Snapshotter records beatmap files and compares their history.
type Snapshotter struct {
	store  *Store
	opts   Options
	logger *slog.Logger
	tracer trace.Tracer
}

// NewSnapshotter creates a snapshotter.
func NewSnapshotter(deps SnapshotterDeps) *Snapshotter {
	opts := deps.Options
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tracer := deps.Tracer
	if tracer == nil {
		tracer = nooptrace.NewTracerProvider().Tracer("")
	}

	return &Snapshotter{store: deps.Store, opts: opts, logger: logger, tracer: tracer}
}

// Compute records every difficulty whose content changed since its last
// recording, then diffs the recorded history of each file.
func (s *Snapshotter) Compute(ctx context.Context, set *beatmap.Set, progress Progress) ([]FileHistory, error) {
	if progress == nil {
		progress = nopProgress{}
	}

	key := set.Key()
	now := s.opts.Now()

	progress.Start(LabelRecording)

	skipped, err := s.record(ctx, key, set, now)

	progress.Complete(LabelRecording)

	if err != nil {
		return nil, err
	}

	progress.Start(LabelComparing)
	defer progress.Complete(LabelComparing)

	histories := make([]FileHistory, 0, len(set.Beatmaps))

	for _, bm := range set.Beatmaps {
		if skipped[bm.FileName] {
			histories = append(histories, FileHistory{File: bm.FileName, Version: bm.Metadata.Version, Skipped: true})

			continue
		}

		history, histErr := s.history(ctx, key, bm)
		if histErr != nil {
			return nil, histErr
		}

		histories = append(histories, history)
	}

	return histories, nil
}

func (s *Snapshotter) record(ctx context.Context, key string, set *beatmap.Set, now time.Time) (map[string]bool, error) {
	skipped := make(map[string]bool)

	for _, bm := range set.Beatmaps {
		err := ctx.Err()
		if err != nil {
			return nil, err
		}

		if s.opts.MaxFileSize > 0 && int64(len(bm.Code)) > s.opts.MaxFileSize {
			s.logger.DebugContext(ctx, "snapshot skipped, file too large",
				"file", bm.FileName, "size", len(bm.Code), "limit", s.opts.MaxFileSize)

			skipped[bm.FileName] = true

			continue
		}

		recordErr := s.recordFile(ctx, key, bm, now)
		if recordErr != nil {
			return nil, recordErr
		}
	}

	return skipped, nil
}

func (s *Snapshotter) recordFile(ctx context.Context, key string, bm *beatmap.Beatmap, now time.Time) error {
	ctx, span := s.tracer.Start(ctx, observability.SpanSnapshotFile,
		trace.WithAttributes(attribute.String("snapshot.file", bm.FileName)))
	defer span.End()

	content := []byte(bm.Code)

	latest, err := s.store.Latest(ctx, key, bm.FileName)

	switch {
	case errors.Is(err, ErrNoRecording):
	case err != nil:
		return err
	case latest.Hash == Hash(content):
		span.SetAttributes(attribute.Bool("snapshot.changed", false))

		return nil
	}

	span.SetAttributes(attribute.Bool("snapshot.changed", true))

	return s.store.Save(ctx, key, bm.FileName, now, content)
}

func (s *Snapshotter) history(ctx context.Context, key string, bm *beatmap.Beatmap) (FileHistory, error) {
	recordings, err := s.store.History(ctx, key, bm.FileName, s.opts.HistoryLimit)
	if err != nil {
		return FileHistory{}, fmt.Errorf("history of %s: %w", bm.FileName, err)
	}

	history := FileHistory{File: bm.FileName, Version: bm.Metadata.Version, Recordings: len(recordings)}
	if len(recordings) > 0 {
		history.First = recordings[0].RecordedAt
	}

	for i := 1; i < len(recordings); i++ {
		prev, next := recordings[i-1], recordings[i]

		added, removed := DiffLines(prev.Content, next.Content)

		diff := Diff{From: prev.RecordedAt, To: next.RecordedAt, Added: added, Removed: removed}
		if !diff.Empty() {
			history.Diffs = append(history.Diffs, diff)
		}
	}

	return history, nil
}

type nopProgress struct{}

func (nopProgress) Start(string)    {}
func (nopProgress) Complete(string) {}
