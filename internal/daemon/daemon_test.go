package daemon_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"dbvoir/internal/config"
	"dbvoir/internal/daemon"
	"dbvoir/internal/dispatch"
	"dbvoir/internal/logging"
	"dbvoir/internal/processed"
	"dbvoir/internal/services"
	"dbvoir/internal/services/beets"
	"dbvoir/internal/testsupport"
)

type recordingImporter struct {
	mu   sync.Mutex
	dirs []string
}

func (r *recordingImporter) Import(_ context.Context, dir string) (beets.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dirs = append(r.dirs, dir)
	return beets.Result{Dir: dir}, nil
}

func (r *recordingImporter) imported() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.dirs...)
}

type countingRescan struct {
	mu    sync.Mutex
	calls int
}

func (c *countingRescan) Refresh(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return nil
}

func (c *countingRescan) Notify(ctx context.Context) { _ = c.Refresh(ctx) }

func (c *countingRescan) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fixture struct {
	cfg      *config.Config
	daemon   *daemon.Daemon
	record   processed.Record
	importer *recordingImporter
	rescan   *countingRescan
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, append([]testsupport.ConfigOption{testsupport.WithWatchDir()}, opts...)...)
	record := processed.NewMemory(0)
	importer := &recordingImporter{}
	rescan := &countingRescan{}
	d, err := daemon.New(cfg, daemon.Deps{Record: record, Importer: importer, Rescan: rescan}, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		_ = d.Close()
	})
	return &fixture{cfg: cfg, daemon: d, record: record, importer: importer, rescan: rescan}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestDaemonStartStop(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := f.daemon.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := f.daemon.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.WatchDir != f.cfg.Paths.WatchDir {
		t.Fatalf("unexpected watch dir %q", status.WatchDir)
	}
	if len(status.Dependencies) != 1 || status.Dependencies[0].Name != "beets" {
		t.Fatalf("expected beets dependency in status, got %+v", status.Dependencies)
	}

	if err := f.daemon.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	f.daemon.Stop()
	if f.daemon.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonRefusesSecondInstance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.daemon.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	f.cfg.Paths.APIBind = ""
	other, err := daemon.New(f.cfg, daemon.Deps{Record: processed.NewMemory(0), Importer: f.importer, Rescan: f.rescan}, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	defer other.Close()
	if err := other.Start(ctx); err == nil {
		t.Fatal("expected lock contention to fail the second daemon")
	}
}

func TestDaemonStartFailsWithoutWatchDir(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, err := daemon.New(cfg, daemon.Deps{Record: processed.NewMemory(0), Importer: &recordingImporter{}, Rescan: &countingRescan{}}, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	defer d.Close()

	err = d.Start(context.Background())
	if !errors.Is(err, daemon.ErrWatchDirMissing) {
		t.Fatalf("expected ErrWatchDirMissing, got %v", err)
	}
	if d.Status(context.Background()).Running {
		t.Fatal("daemon should not run without its watch directory")
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := daemon.New(cfg, daemon.Deps{}, logging.NewNop()); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}

func TestImportValidatesPaths(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.daemon.Import(ctx, "  "); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty path, got %v", err)
	}
	missing := filepath.Join(f.cfg.Paths.WatchDir, "nope.flac")
	if _, err := f.daemon.Import(ctx, missing); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	notes := filepath.Join(f.cfg.Paths.WatchDir, "notes.txt")
	testsupport.WriteFile(t, notes, 10)
	if _, err := f.daemon.Import(ctx, notes); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected unsupported extension error, got %v", err)
	}
}

func TestImportQueuesWhileStopped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	track := filepath.Join(f.cfg.Paths.WatchDir, "Band", "Record", "01.flac")
	testsupport.WriteFile(t, track, 128)

	if _, err := f.daemon.Import(ctx, track); err != nil {
		t.Fatalf("first import: %v", err)
	}
	if _, err := f.daemon.Import(ctx, track); !errors.Is(err, dispatch.ErrAlreadyQueued) {
		t.Fatalf("expected ErrAlreadyQueued, got %v", err)
	}
	if depth := f.daemon.Status(ctx).QueueDepth; depth != 1 {
		t.Fatalf("expected queue depth 1, got %d", depth)
	}
}

func TestImportDirectoryRecordsAllowedFiles(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := f.daemon.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	album := filepath.Join(f.cfg.Paths.WatchDir, "Band", "Record")
	testsupport.WriteFile(t, filepath.Join(album, "01.flac"), 64)
	testsupport.WriteFile(t, filepath.Join(album, "02.flac"), 64)
	testsupport.WriteFile(t, filepath.Join(album, "cover.jpg"), 64)

	if _, err := f.daemon.Import(ctx, album); err != nil {
		t.Fatalf("Import: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool {
		n, _ := f.record.Len(ctx)
		return n == 2
	})
	if got := f.importer.imported(); len(got) != 1 || got[0] != album {
		t.Fatalf("expected one import of %s, got %v", album, got)
	}
	if f.rescan.count() != 1 {
		t.Fatalf("expected one rescan, got %d", f.rescan.count())
	}
	last := f.daemon.Status(ctx).LastImport
	if last == nil || last.Trigger != "api" {
		t.Fatalf("expected last import from api trigger, got %+v", last)
	}
}

func TestQuietFileImportedByPollingWatcher(t *testing.T) {
	f := newFixture(t, testsupport.WithQuietPeriod(0, 0), testsupport.WithConfig(func(cfg *config.Config) {
		cfg.Watch.Mode = config.WatchModePoll
		cfg.Watch.ScanIntervalSeconds = 1
	}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := f.daemon.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool { return f.daemon.Status(ctx).WatchMode == config.WatchModePoll })
	track := filepath.Join(f.cfg.Paths.WatchDir, "Artist", "Album", "01.mp3")
	testsupport.WriteFile(t, track, 256)

	waitFor(t, 5*time.Second, func() bool {
		ok, _ := f.record.Contains(ctx, track)
		return ok
	})
	if got := f.importer.imported(); len(got) != 1 || got[0] != filepath.Dir(track) {
		t.Fatalf("unexpected imports %v", got)
	}
}

func TestForgetAllowsReimport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	path := filepath.Join(f.cfg.Paths.WatchDir, "a.flac")
	if err := f.record.Add(ctx, path); err != nil {
		t.Fatalf("Add: %v", err)
	}

	removed, err := f.daemon.Forget(ctx, path)
	if err != nil || !removed {
		t.Fatalf("expected path to be forgotten, removed=%v err=%v", removed, err)
	}
	entries, total, err := f.daemon.Processed(ctx, 10)
	if err != nil {
		t.Fatalf("Processed: %v", err)
	}
	if total != 0 || len(entries) != 0 {
		t.Fatalf("expected empty record, got %d/%v", total, entries)
	}
}

func TestRunMaintenancePrunesOldEntries(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWatchDir())
	cfg.State.RetentionDays = 7
	clock := testsupport.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	record := processed.NewMemory(0, processed.WithClock(clock.Now))
	d, err := daemon.New(cfg, daemon.Deps{Record: record, Importer: &recordingImporter{}, Rescan: &countingRescan{}},
		logging.NewNop(), daemon.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	defer d.Close()

	ctx := context.Background()
	if err := record.Add(ctx, "/downloads/old.flac"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	clock.Advance(10 * 24 * time.Hour)
	if err := record.Add(ctx, "/downloads/new.flac"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	stale := filepath.Join(cfg.Paths.LogDir, "dbvoir-old.log")
	testsupport.WriteFile(t, stale, 10)
	old := time.Now().Add(-60 * 24 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	report := d.RunMaintenance(ctx)
	if report.Err != nil {
		t.Fatalf("maintenance error: %v", report.Err)
	}
	if report.RecordsPruned != 1 {
		t.Fatalf("expected one pruned entry, got %d", report.RecordsPruned)
	}
	if report.LogsRemoved != 1 {
		t.Fatalf("expected one removed log, got %d", report.LogsRemoved)
	}
	if ok, _ := record.Contains(ctx, "/downloads/new.flac"); !ok {
		t.Fatal("recent entry should survive pruning")
	}
}

func TestRunMaintenanceRemovesEmptiedAlbumFolders(t *testing.T) {
	f := newFixture(t, testsupport.WithConfig(func(cfg *config.Config) {
		cfg.Watch.PruneEmptyDirs = true
	}))
	album := filepath.Join(f.cfg.Paths.WatchDir, "Band", "Record")
	testsupport.MkdirAll(t, album)
	old := time.Now().Add(-3 * time.Hour)
	for _, dir := range []string{album, filepath.Dir(album)} {
		if err := os.Chtimes(dir, old, old); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	report := f.daemon.RunMaintenance(context.Background())
	if report.DirsRemoved != 2 {
		t.Fatalf("expected two folders removed, got %d", report.DirsRemoved)
	}
	if _, err := os.Stat(f.cfg.Paths.WatchDir); err != nil {
		t.Fatalf("watch dir must survive cleanup: %v", err)
	}
}
