package beatmap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Sentinel load errors.
var (
	// ErrNotDirectory is returned when the set path is not a directory.
	ErrNotDirectory = errors.New("not a directory")
	// ErrNoBeatmaps is returned when the directory holds no .osu files.
	ErrNoBeatmaps = errors.New("no .osu files found")
)

const osuExt = ".osu"

// Loader reads beatmap sets from disk.
type Loader struct {
	// Concurrency bounds parallel .osu parsing. Zero means GOMAXPROCS.
	Concurrency int
}

// LoadSet reads the set at dir with default options.
func LoadSet(ctx context.Context, dir string) (*Set, error) {
	return Loader{}.Load(ctx, dir)
}

// Load lists every file below dir and parses the .osu files in parallel.
func (l Loader) Load(ctx context.Context, dir string) (*Set, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", dir, err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", dir, ErrNotDirectory)
	}

	files, err := listFiles(ctx, dir)
	if err != nil {
		return nil, err
	}

	var osuFiles []string

	for _, f := range files {
		if strings.EqualFold(filepath.Ext(f.Path), osuExt) {
			osuFiles = append(osuFiles, f.Path)
		}
	}

	if len(osuFiles) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoBeatmaps)
	}

	beatmaps, err := l.parseAll(ctx, dir, osuFiles)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(beatmaps, func(i, j int) bool {
		ci, cj := len(beatmaps[i].HitObjects), len(beatmaps[j].HitObjects)
		if ci != cj {
			return ci < cj
		}

		return beatmaps[i].Metadata.Version < beatmaps[j].Metadata.Version
	})

	return &Set{Path: dir, Files: files, Beatmaps: beatmaps}, nil
}

func listFiles(ctx context.Context, dir string) ([]File, error) {
	var files []File

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if d.IsDir() {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}

		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			return relErr
		}

		files = append(files, File{Path: filepath.ToSlash(rel), Size: info.Size()})

		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("list %s: %w", dir, walkErr)
	}

	return files, nil
}

func (l Loader) parseAll(ctx context.Context, dir string, names []string) ([]*Beatmap, error) {
	beatmaps := make([]*Beatmap, len(names))

	limit := l.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, name := range names {
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			bm, err := parseFile(dir, name)
			if err != nil {
				return err
			}

			beatmaps[i] = bm

			return nil
		})
	}

	waitErr := g.Wait()
	if waitErr != nil {
		return nil, waitErr
	}

	return beatmaps, nil
}

func parseFile(dir, name string) (*Beatmap, error) {
	f, err := os.Open(filepath.Join(dir, filepath.FromSlash(name)))
	if err != nil {
		return nil, fmt.Errorf("open beatmap: %w", err)
	}
	defer f.Close()

	return Parse(name, f)
}
