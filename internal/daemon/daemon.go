package daemon

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/robfig/cron/v3"
	"github.com/spf13/afero"

	"dbvoir/internal/completion"
	"dbvoir/internal/config"
	"dbvoir/internal/deps"
	"dbvoir/internal/dispatch"
	"dbvoir/internal/logging"
	"dbvoir/internal/notifications"
	"dbvoir/internal/processed"
	"dbvoir/internal/services"
	"dbvoir/internal/services/beets"
	"dbvoir/internal/services/jellyfin"
	"dbvoir/internal/watcher"
)

// ErrWatchDirMissing is the only fatal start condition.
var ErrWatchDirMissing = watcher.ErrWatchDirMissing

// Deps are the collaborators the daemon drives. Record, Importer, and Rescan
// are required.
type Deps struct {
	Fs       afero.Fs
	Record   processed.Record
	Importer beets.Importer
	Rescan   jellyfin.Service
	Notifier notifications.Service
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithLogPath records the per-run log file reported by Status.
func WithLogPath(path string) Option {
	return func(d *Daemon) {
		d.logPath = path
	}
}

// WithClock overrides the time source used by the poll loop and detector.
func WithClock(now func() time.Time) Option {
	return func(d *Daemon) {
		if now != nil {
			d.now = now
		}
	}
}

// Daemon runs the watcher, detector, and dispatch worker until stopped.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	fs         afero.Fs
	record     processed.Record
	rescan     jellyfin.Service
	notifier   notifications.Service
	detector   *completion.Detector
	dispatcher *dispatch.Dispatcher
	worker     *dispatch.Worker
	watcher    *watcher.Watcher
	api        *apiServer
	now        func() time.Time
	logPath    string

	lockPath string
	lock     *flock.Flock

	running   atomic.Bool
	mu        sync.Mutex
	startedAt time.Time
	cancel    context.CancelFunc
	scheduler *cron.Cron
	wg        sync.WaitGroup
	fatal     chan error
}

// Status represents daemon runtime information.
type Status struct {
	Running        bool
	PID            int
	StartedAt      time.Time
	WatchDir       string
	WatchMode      string
	EventsSeen     int64
	LastEventAt    time.Time
	Pending        int
	QueueDepth     int
	InFlight       string
	Processed      int
	ProcessedStore string
	LockFilePath   string
	LogPath        string
	LastImport     *dispatch.Completion
	Dependencies   []deps.Status
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, deps Deps, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || deps.Record == nil || deps.Importer == nil || deps.Rescan == nil {
		return nil, errors.New("daemon requires config, processed record, importer, and rescan service")
	}
	if deps.Fs == nil {
		deps.Fs = afero.NewOsFs()
	}
	logger = logging.NewComponentLogger(logger, "daemon")

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		fs:       deps.Fs,
		record:   deps.Record,
		rescan:   deps.Rescan,
		notifier: deps.Notifier,
		now:      time.Now,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.dispatcher = dispatch.New(deps.Fs, deps.Importer, deps.Record, deps.Rescan, deps.Notifier, logger)
	// The detector needs the worker and the worker's directory routing needs
	// the detector's extension filter, so the handler resolves it lazily.
	router := &routeHandler{fs: deps.Fs, dispatcher: d.dispatcher}
	d.worker = dispatch.NewWorker(router, cfg.Watch.QueueSize, logger)
	d.detector = completion.New(cfg, deps.Fs, deps.Record, d.worker, logger, completion.WithClock(d.now))
	router.allowed = d.detector.Allowed
	d.watcher = watcher.New(cfg, watcher.SinkFunc(func(ctx context.Context, path string) {
		d.detector.Evaluate(ctx, path)
	}), logger, watcher.WithFs(deps.Fs), watcher.WithFilter(d.detector.Allowed))

	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the daemon lock and launches the background goroutines.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another dbvoir daemon instance is already running")
	}

	if info, err := d.fs.Stat(d.cfg.Paths.WatchDir); err != nil || !info.IsDir() {
		_ = d.lock.Unlock()
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrWatchDirMissing, d.cfg.Paths.WatchDir)
		}
		return services.Wrap(services.ErrConfiguration, "daemon", "stat watch dir", d.cfg.Paths.WatchDir, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.mu.Lock()
	d.cancel = cancel
	d.startedAt = d.now()
	d.fatal = make(chan error, 1)
	d.mu.Unlock()

	d.goRun(func() { d.worker.Run(runCtx) })
	d.goRun(func() { d.pollLoop(runCtx) })
	d.goRun(func() {
		if err := d.watcher.Run(runCtx); err != nil && runCtx.Err() == nil {
			d.logger.Error("watcher stopped", logging.Error(err), logging.String(logging.FieldEventType, "watcher_failed"))
			select {
			case d.fatal <- err:
			default:
			}
		}
	})
	if err := d.startMaintenance(runCtx); err != nil {
		logging.WarnWithContext(d.logger, "maintenance schedule not started", "maintenance_schedule_invalid",
			logging.Error(err),
			logging.String(logging.FieldImpact, "old logs and processed entries are not pruned automatically"),
		)
	}

	d.running.Store(true)
	d.logger.Info("dbvoir daemon started",
		logging.String("lock", d.lockPath),
		logging.String("watch_dir", d.cfg.Paths.WatchDir),
		logging.Duration("quiet_period", d.cfg.QuietPeriod()),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

func (d *Daemon) goRun(fn func()) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		fn()
	}()
}

// Failed delivers an error if a background component stops on its own, such
// as the watcher losing its directory. It is nil before Start.
func (d *Daemon) Failed() <-chan error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fatal
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.mu.Lock()
	cancel := d.cancel
	scheduler := d.scheduler
	d.cancel = nil
	d.scheduler = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	d.api.stop()
	d.wg.Wait()

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("dbvoir daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.record != nil {
		return d.record.Close()
	}
	return nil
}

// Detector exposes the completion detector.
func (d *Daemon) Detector() *completion.Detector {
	return d.detector
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	d.mu.Lock()
	started := d.startedAt
	d.mu.Unlock()

	events, lastEvent := d.watcher.Stats()
	status := Status{
		Running:        d.running.Load(),
		PID:            os.Getpid(),
		StartedAt:      started,
		WatchDir:       d.cfg.Paths.WatchDir,
		WatchMode:      d.watcher.Mode(),
		EventsSeen:     events,
		LastEventAt:    lastEvent,
		Pending:        d.detector.PendingCount(),
		QueueDepth:     d.worker.Depth(),
		InFlight:       d.worker.InFlight(),
		ProcessedStore: d.cfg.State.Backend,
		LockFilePath:   d.lockPath,
		LogPath:        d.logPath,
		Dependencies:   []deps.Status{deps.ResolveBeet(d.cfg.Beets.Binary)},
	}
	if n, err := d.record.Len(ctx); err == nil {
		status.Processed = n
	}
	if last, ok := d.worker.Last(); ok {
		status.LastImport = &last
	}
	return status
}

// Pending returns the detector's pending set.
func (d *Daemon) Pending() []completion.PendingEntry {
	return d.detector.Pending()
}

// Processed lists recent processed entries and the total count.
func (d *Daemon) Processed(ctx context.Context, limit int) ([]processed.Entry, int, error) {
	entries, err := d.record.List(ctx, limit)
	if err != nil {
		return nil, 0, err
	}
	total, err := d.record.Len(ctx)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// Forget removes path from the processed record so the next event imports it
// again.
func (d *Daemon) Forget(ctx context.Context, path string) (bool, error) {
	return d.record.Remove(ctx, path)
}

// Import queues a file or directory for import now, bypassing the quiet
// period. It returns dispatch.ErrAlreadyQueued when the path is already
// waiting.
func (d *Daemon) Import(ctx context.Context, path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", services.Wrap(services.ErrValidation, "daemon", "import", "path is required", nil)
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	info, err := d.fs.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", services.Wrap(services.ErrNotFound, "daemon", "import", abs, nil)
		}
		return "", fmt.Errorf("stat %s: %w", abs, err)
	}
	if !info.IsDir() && !d.detector.Allowed(abs) {
		return "", services.Wrap(services.ErrValidation, "daemon", "import", "unsupported extension "+filepath.Ext(abs), nil)
	}
	if err := d.worker.SubmitFrom("api", abs); err != nil {
		return abs, err
	}
	logging.WithContext(ctx, d.logger).Info("manual import queued",
		logging.String(logging.FieldPath, abs),
		logging.String(logging.FieldEventType, "manual_import_queued"),
	)
	return abs, nil
}

// Rescan performs one Jellyfin refresh and returns its error.
func (d *Daemon) Rescan(ctx context.Context) error {
	return d.rescan.Refresh(ctx)
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" || d.notifier == nil {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// routeHandler sends directories to DispatchDirectory and files to Dispatch.
type routeHandler struct {
	fs         afero.Fs
	dispatcher *dispatch.Dispatcher
	allowed    func(string) bool
}

func (r *routeHandler) Dispatch(ctx context.Context, path string) (dispatch.Outcome, error) {
	if info, err := r.fs.Stat(path); err == nil && info.IsDir() {
		return r.dispatcher.DispatchDirectory(ctx, path, r.allowed)
	}
	return r.dispatcher.Dispatch(ctx, path)
}
