package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/afero"

	"dbvoir/internal/config"
	"dbvoir/internal/logging"
	"dbvoir/internal/services"
)

// ErrWatchDirMissing is returned when the download directory does not exist
// at startup.
var ErrWatchDirMissing = errors.New("watch directory does not exist")

// Sink receives candidate paths. completion.Detector.Evaluate satisfies it
// through SinkFunc.
type Sink interface {
	Observe(ctx context.Context, path string)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, path string)

// Observe calls f.
func (f SinkFunc) Observe(ctx context.Context, path string) { f(ctx, path) }

// Watcher feeds a Sink from the configured event source.
type Watcher struct {
	fs           afero.Fs
	dir          string
	mode         string
	scanInterval time.Duration
	scanOnStart  bool
	allowed      func(string) bool
	sink         Sink
	logger       *slog.Logger

	mu        sync.RWMutex
	effective string
	lastEvent time.Time
	events    int64
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithFilter drops paths for which allowed returns false before they reach
// the sink. Directories are never filtered.
func WithFilter(allowed func(string) bool) Option {
	return func(w *Watcher) {
		w.allowed = allowed
	}
}

// WithFs replaces the filesystem used for scans. fsnotify always watches the
// real filesystem.
func WithFs(fsys afero.Fs) Option {
	return func(w *Watcher) {
		if fsys != nil {
			w.fs = fsys
		}
	}
}

// New creates a watcher for cfg.Paths.WatchDir.
func New(cfg *config.Config, sink Sink, logger *slog.Logger, opts ...Option) *Watcher {
	w := &Watcher{
		fs:           afero.NewOsFs(),
		dir:          cfg.Paths.WatchDir,
		mode:         cfg.Watch.Mode,
		scanInterval: cfg.ScanInterval(),
		scanOnStart:  cfg.Watch.ScanOnStart,
		sink:         sink,
		logger:       logging.NewComponentLogger(logger, "watcher"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until ctx is cancelled. It fails fast when the directory is
// missing or the requested event source cannot be set up.
func (w *Watcher) Run(ctx context.Context) error {
	info, err := w.fs.Stat(w.dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s", ErrWatchDirMissing, w.dir)
	case err != nil:
		return services.Wrap(services.ErrConfiguration, "watcher", "stat watch dir", w.dir, err)
	case !info.IsDir():
		return services.Wrap(services.ErrConfiguration, "watcher", "stat watch dir", w.dir+" is not a directory", nil)
	}

	mode := w.mode
	if mode == config.WatchModeAuto || mode == "" {
		res := CheckEvents(w.dir)
		if res.Supported {
			mode = config.WatchModeFsnotify
		} else {
			logging.WarnWithContext(w.logger, "filesystem notifications unavailable; falling back to polling", "fsnotify_unsupported",
				logging.String("dir", w.dir),
				logging.String("reason", res.Reason),
				logging.String(logging.FieldImpact, "new files are noticed on the next scan instead of immediately"),
			)
			mode = config.WatchModePoll
		}
	}

	w.logger.Info("watching download directory",
		logging.String("dir", w.dir),
		logging.String("mode", mode),
		logging.String(logging.FieldEventType, "watch_started"),
	)

	switch mode {
	case config.WatchModeFsnotify:
		return w.runFsnotify(ctx)
	case config.WatchModePoll:
		return w.runPolling(ctx)
	default:
		return fmt.Errorf("unknown watch mode %q", mode)
	}
}

// Scan walks the directory once and hands every matching file to the sink.
// It returns the number of files observed.
func (w *Watcher) Scan(ctx context.Context) (int, error) {
	count := 0
	err := afero.Walk(w.fs, w.dir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			if path == w.dir {
				return err
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if info.IsDir() || !w.accepts(path) {
			return nil
		}
		count++
		w.emit(ctx, path)
		return nil
	})
	return count, err
}

func (w *Watcher) setMode(mode string) {
	w.mu.Lock()
	w.effective = mode
	w.mu.Unlock()
}

// Mode returns the active event source, or "" until Run has finished
// setting it up.
func (w *Watcher) Mode() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.effective
}

// Stats reports how many paths reached the sink and when the last did.
func (w *Watcher) Stats() (int64, time.Time) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.events, w.lastEvent
}

func (w *Watcher) accepts(path string) bool {
	return w.allowed == nil || w.allowed(path)
}

func (w *Watcher) emit(ctx context.Context, path string) {
	w.mu.Lock()
	w.events++
	w.lastEvent = time.Now()
	w.mu.Unlock()
	w.sink.Observe(ctx, path)
}

func (w *Watcher) initialScan(ctx context.Context) {
	if !w.scanOnStart {
		return
	}
	n, err := w.Scan(ctx)
	if err != nil && ctx.Err() == nil {
		logging.WarnWithContext(w.logger, "startup scan failed", "startup_scan_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "files already present are only picked up when they change"),
		)
		return
	}
	w.logger.Info("startup scan complete", logging.Int("files", n))
}
