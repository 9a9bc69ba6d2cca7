package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbvoir/internal/config"
	"dbvoir/internal/logging"
	"dbvoir/internal/testsupport"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) Observe(_ context.Context, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]string(nil), r.paths...)
	sort.Strings(out)
	return out
}

func (r *recorder) has(path string) bool {
	for _, p := range r.seen() {
		if p == path {
			return true
		}
	}
	return false
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.paths = nil
	r.mu.Unlock()
}

func audioOnly(path string) bool {
	return strings.HasSuffix(path, ".flac") || strings.HasSuffix(path, ".mp3")
}

func memWatcher(t *testing.T, mode string) (*Watcher, afero.Fs, *recorder) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Paths.WatchDir = "/downloads"
	cfg.Watch.Mode = mode
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll(cfg.Paths.WatchDir, 0o755))
	rec := &recorder{}
	w := New(cfg, rec, logging.NewNop(), WithFs(fsys), WithFilter(audioOnly))
	return w, fsys, rec
}

func TestRunFailsWhenDirectoryMissing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	w := New(cfg, &recorder{}, logging.NewNop())
	err := w.Run(context.Background())
	require.ErrorIs(t, err, ErrWatchDirMissing)
}

func TestRunRejectsUnknownMode(t *testing.T) {
	w, _, _ := memWatcher(t, "inotify")
	require.Error(t, w.Run(context.Background()))
}

func TestScanEmitsMatchingFiles(t *testing.T) {
	w, fsys, rec := memWatcher(t, config.WatchModePoll)
	testsupport.WriteFs(t, fsys, "/downloads/a/01.flac", 10)
	testsupport.WriteFs(t, fsys, "/downloads/a/cover.jpg", 10)
	testsupport.WriteFs(t, fsys, "/downloads/b/track.mp3", 10)

	n, err := w.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"/downloads/a/01.flac", "/downloads/b/track.mp3"}, rec.seen())

	count, last := w.Stats()
	assert.EqualValues(t, 2, count)
	assert.False(t, last.IsZero())
}

func TestDiffEmitsOnlyNewOrChangedFiles(t *testing.T) {
	w, fsys, rec := memWatcher(t, config.WatchModePoll)
	ctx := context.Background()
	testsupport.WriteFs(t, fsys, "/downloads/old.flac", 10)

	prev := w.diff(ctx, snapshot{}, false)
	assert.Empty(t, rec.seen(), "baseline scan must not emit")
	assert.Len(t, prev, 1)

	testsupport.WriteFs(t, fsys, "/downloads/new.flac", 10)
	prev = w.diff(ctx, prev, true)
	assert.Equal(t, []string{"/downloads/new.flac"}, rec.seen())

	rec.reset()
	prev = w.diff(ctx, prev, true)
	assert.Empty(t, rec.seen(), "unchanged files must not be emitted again")

	testsupport.WriteFs(t, fsys, "/downloads/old.flac", 20)
	w.diff(ctx, prev, true)
	assert.Equal(t, []string{"/downloads/old.flac"}, rec.seen())
}

func TestPollingPicksUpNewFiles(t *testing.T) {
	w, fsys, rec := memWatcher(t, config.WatchModePoll)
	w.scanInterval = 10 * time.Millisecond
	testsupport.WriteFs(t, fsys, "/downloads/present.flac", 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return w.Mode() == config.WatchModePoll }, time.Second, 5*time.Millisecond)
	testsupport.WriteFs(t, fsys, "/downloads/Album/01.flac", 10)
	require.Eventually(t, func() bool { return rec.has("/downloads/Album/01.flac") }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, rec.has("/downloads/present.flac"), "pre-existing file emitted without scan_on_start")

	cancel()
	require.NoError(t, <-done)
}

func TestPollingScanOnStartEmitsExistingFiles(t *testing.T) {
	w, fsys, rec := memWatcher(t, config.WatchModePoll)
	w.scanInterval = time.Hour
	w.scanOnStart = true
	testsupport.WriteFs(t, fsys, "/downloads/present.flac", 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return rec.has("/downloads/present.flac") }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func fsnotifyWatcher(t *testing.T) (*Watcher, string, *recorder) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithWatchDir())
	if res := CheckEvents(cfg.Paths.WatchDir); !res.Supported {
		t.Skipf("fsnotify unsupported here: %s", res.Reason)
	}
	cfg.Watch.Mode = config.WatchModeFsnotify
	rec := &recorder{}
	return New(cfg, rec, logging.NewNop(), WithFilter(audioOnly)), cfg.Paths.WatchDir, rec
}

func TestFsnotifyWatchesNewSubdirectories(t *testing.T) {
	w, dir, rec := fsnotifyWatcher(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	require.Eventually(t, func() bool { return w.Mode() == config.WatchModeFsnotify }, 2*time.Second, 10*time.Millisecond)

	album := filepath.Join(dir, "Artist", "Album")
	testsupport.MkdirAll(t, album)
	time.Sleep(50 * time.Millisecond)
	track := filepath.Join(album, "01.flac")
	testsupport.WriteFile(t, track, 128)

	require.Eventually(t, func() bool { return rec.has(track) }, 3*time.Second, 20*time.Millisecond)
	assert.False(t, rec.has(filepath.Join(dir, ".dbvoir_eventcheck")))

	cancel()
	require.NoError(t, <-done)
}

func TestFsnotifyReportsDirectoryMovedIn(t *testing.T) {
	w, dir, rec := fsnotifyWatcher(t)
	staging := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(staging, "Album", "01.mp3"), 64)
	testsupport.WriteFile(t, filepath.Join(staging, "Album", "02.mp3"), 64)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	require.Eventually(t, func() bool { return w.Mode() == config.WatchModeFsnotify }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Rename(filepath.Join(staging, "Album"), filepath.Join(dir, "Album")))
	want := []string{filepath.Join(dir, "Album", "01.mp3"), filepath.Join(dir, "Album", "02.mp3")}
	require.Eventually(t, func() bool { return rec.has(want[0]) && rec.has(want[1]) }, 3*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestFsnotifyIgnoresRenameOfOldName(t *testing.T) {
	w, dir, rec := fsnotifyWatcher(t)
	w.handleEvent(context.Background(), nil, fsnotify.Event{Name: filepath.Join(dir, "gone.flac"), Op: fsnotify.Rename})
	assert.Empty(t, rec.seen())
}

func TestFsnotifyReportsRenamedFileUnderNewName(t *testing.T) {
	w, dir, rec := fsnotifyWatcher(t)
	partial := filepath.Join(dir, "01.flac.part")
	final := filepath.Join(dir, "01.flac")
	testsupport.WriteFile(t, partial, 64)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	require.Eventually(t, func() bool { return w.Mode() == config.WatchModeFsnotify }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Rename(partial, final))
	require.Eventually(t, func() bool { return rec.has(final) }, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{final}, rec.seen())

	cancel()
	require.NoError(t, <-done)
}
