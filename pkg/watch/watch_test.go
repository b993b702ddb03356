package watch_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapset-verifier/server/pkg/watch"
)

const (
	debounce = 50 * time.Millisecond
	waitFor  = 3 * time.Second
	tick     = 10 * time.Millisecond
)

type changes struct {
	mu   sync.Mutex
	dirs []string
}

func (c *changes) record(dir string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.dirs = append(c.dirs, dir)
}

func (c *changes) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.dirs...)
}

func newWatcher(t *testing.T, c *changes) *watch.Watcher {
	t.Helper()

	w, err := watch.New(watch.Options{Debounce: debounce, OnChange: c.record})
	require.NoError(t, err)

	t.Cleanup(func() { _ = w.Close() })

	return w
}

func write(t *testing.T, dir, name, content string) {
	t.Helper()

	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestWatcher_ReportsChange(t *testing.T) {
	t.Parallel()

	var c changes

	w := newWatcher(t, &c)
	dir := t.TempDir()

	require.NoError(t, w.Watch(dir))
	assert.Equal(t, dir, w.Dir())

	write(t, dir, "a.osu", "v1")

	require.Eventually(t, func() bool { return len(c.list()) == 1 }, waitFor, tick)
	assert.Equal(t, []string{dir}, c.list())
}

func TestWatcher_Debounces(t *testing.T) {
	t.Parallel()

	var c changes

	w := newWatcher(t, &c)
	dir := t.TempDir()

	require.NoError(t, w.Watch(dir))

	for i := range 5 {
		write(t, dir, "a.osu", string(rune('a'+i)))
	}

	require.Eventually(t, func() bool { return len(c.list()) > 0 }, waitFor, tick)

	time.Sleep(4 * debounce)
	assert.Len(t, c.list(), 1)
}

func TestWatcher_Retarget(t *testing.T) {
	t.Parallel()

	var c changes

	w := newWatcher(t, &c)
	first, second := t.TempDir(), t.TempDir()

	require.NoError(t, w.Watch(first))
	require.NoError(t, w.Watch(second))

	write(t, first, "a.osu", "ignored")
	time.Sleep(4 * debounce)
	assert.Empty(t, c.list())

	write(t, second, "b.osu", "seen")
	require.Eventually(t, func() bool { return len(c.list()) == 1 }, waitFor, tick)
	assert.Equal(t, []string{second}, c.list())
}

func TestWatcher_MissingDirectory(t *testing.T) {
	t.Parallel()

	var c changes

	w := newWatcher(t, &c)

	require.Error(t, w.Watch(filepath.Join(t.TempDir(), "missing")))
	assert.Empty(t, w.Dir())
}

func TestWatcher_Closed(t *testing.T) {
	t.Parallel()

	w, err := watch.New(watch.Options{})
	require.NoError(t, err)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	require.ErrorIs(t, w.Watch(t.TempDir()), watch.ErrClosed)
}
