// Package watch follows the directory of the active beatmap set and reports
// changes to it after a quiet period.
package watch

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period used when Options.Debounce is zero.
const DefaultDebounce = 500 * time.Millisecond

// ErrClosed is returned by Watch after Close.
var ErrClosed = errors.New("watcher closed")

// Options configures a Watcher.
type Options struct {
	// Debounce is how long the directory must stay quiet before OnChange
	// fires.
	Debounce time.Duration

	// OnChange receives the watched directory. It runs on its own goroutine.
	OnChange func(dir string)

	Logger *slog.Logger
}

// Watcher watches a single directory at a time.
type Watcher struct {
	fs       *fsnotify.Watcher
	debounce time.Duration
	onChange func(dir string)
	logger   *slog.Logger
	done     chan struct{}

	mu     sync.Mutex
	dir    string
	timer  *time.Timer
	closed bool
}

// New starts a Watcher that watches nothing until Watch is called.
func New(opts Options) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		fs:       fsw,
		debounce: opts.Debounce,
		onChange: opts.OnChange,
		logger:   opts.Logger,
		done:     make(chan struct{}),
	}

	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}

	if w.onChange == nil {
		w.onChange = func(string) {}
	}

	if w.logger == nil {
		w.logger = slog.Default()
	}

	go w.loop()

	return w, nil
}

// Watch retargets the watcher to dir. Watching the current directory again
// is a no-op.
func (w *Watcher) Watch(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	if abs == w.dir {
		return nil
	}

	if w.dir != "" {
		_ = w.fs.Remove(w.dir) //nolint:errcheck // the directory may already be gone.
	}

	w.stopTimer()
	w.dir = ""

	err = w.fs.Add(abs)
	if err != nil {
		return fmt.Errorf("watch %s: %w", abs, err)
	}

	w.dir = abs
	w.logger.Debug("watching beatmapset directory", "dir", abs)

	return nil
}

// Dir returns the watched directory, or "" when nothing is watched.
func (w *Watcher) Dir() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.dir
}

// Close stops watching. Pending notifications are dropped.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()

		return nil
	}

	w.closed = true
	w.stopTimer()
	w.mu.Unlock()

	err := w.fs.Close()
	<-w.done

	return err
}

func (w *Watcher) loop() {
	defer close(w.done)

	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			w.trigger(event.Name)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}

			w.logger.Warn("watch error", "error", err)
		}
	}
}

// trigger restarts the quiet period when name is the watched directory or
// an entry in it.
func (w *Watcher) trigger(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	dir := w.dir
	if w.closed || (name != dir && filepath.Dir(name) != dir) {
		return
	}

	w.stopTimer()
	w.timer = time.AfterFunc(w.debounce, func() { w.fire(dir) })
}

func (w *Watcher) fire(dir string) {
	w.mu.Lock()
	current := !w.closed && dir == w.dir
	w.mu.Unlock()

	if !current {
		return
	}

	w.logger.Debug("beatmapset directory changed", "dir", dir)
	w.onChange(dir)
}

func (w *Watcher) stopTimer() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
