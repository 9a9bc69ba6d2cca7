package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"dbvoir/internal/config"
	"dbvoir/internal/daemon"
	"dbvoir/internal/deps"
	"dbvoir/internal/logging"
	"dbvoir/internal/notifications"
	"dbvoir/internal/preflight"
	"dbvoir/internal/processed"
	"dbvoir/internal/services/beets"
	"dbvoir/internal/services/jellyfin"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the dbvoir daemon and blocks until a signal arrives or the
// watcher stops on its own. A missing download directory is returned as
// daemon.ErrWatchDirMissing so the caller can exit non-zero.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("dbvoir-%s.log", runID))
	logger, err := logging.NewFromConfig(cfg, logPath)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update dbvoir.log link: %v\n", err)
	}

	logDependencySnapshot(logger, cfg)
	logPreflight(signalCtx, logger, cfg)
	logBanner(logger, cfg)

	pidPath := filepath.Join(cfg.Paths.LogDir, "dbvoir.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	record, err := processed.Open(signalCtx, cfg, logger)
	if err != nil {
		logger.Error("open processed record", logging.Error(err))
		return err
	}

	importer, err := beets.New(cfg.Beets)
	if err != nil {
		_ = record.Close()
		return fmt.Errorf("configure beets: %w", err)
	}

	d, err := daemon.New(cfg, daemon.Deps{
		Record:   record,
		Importer: importer,
		Rescan:   jellyfin.NewConfiguredService(cfg, logger),
		Notifier: notifications.NewService(cfg),
	}, logger, daemon.WithLogPath(logPath))
	if err != nil {
		_ = record.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that the download directory exists and no other dbvoir instance is running"),
		)
		return err
	}

	select {
	case <-signalCtx.Done():
		logger.Info("dbvoir daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
		return nil
	case err := <-d.Failed():
		if errors.Is(err, daemon.ErrWatchDirMissing) {
			return err
		}
		return fmt.Errorf("watcher stopped: %w", err)
	}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "dbvoir.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	beet := deps.ResolveBeet(cfg.Beets.Binary)
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("beets_available", beet.Available),
		logging.String("beets_binary", beet.Command),
		logging.Bool("jellyfin_enabled", cfg.Jellyfin.Enabled),
		logging.Bool("jellyfin_key_present", strings.TrimSpace(cfg.Jellyfin.APIKey) != ""),
		logging.Bool("ntfy_configured", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.String("processed_backend", cfg.State.Backend),
	)
	if !beet.Available {
		logging.WarnWithContext(logger, "beets binary not found", "dependency_missing",
			logging.String("detail", beet.Detail),
			logging.String(logging.FieldImpact, "every import will fail until beets is installed"),
			logging.String(logging.FieldErrorHint, "install beets or set beets.binary"),
		)
	}
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	for _, result := range preflight.Failed(preflight.RunAll(ctx, cfg)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
		)
	}
}

func logBanner(logger *slog.Logger, cfg *config.Config) {
	attrs := []logging.Attr{
		logging.String("watch_dir", cfg.Paths.WatchDir),
		logging.Duration("quiet_period", cfg.QuietPeriod()),
		logging.String("pending_policy", cfg.Watch.PendingPolicy),
		logging.String("extensions", strings.Join(cfg.Watch.Extensions, ",")),
		logging.String(logging.FieldEventType, "startup_banner"),
	}
	if info, err := beets.ReadLibraryInfo(cfg.Beets.ConfigPath); err != nil {
		attrs = append(attrs, logging.String("beets_config_error", err.Error()))
	} else {
		attrs = append(attrs, logging.String("library_dir", info.Directory))
		if info.Database != "" {
			attrs = append(attrs, logging.String("library_db", info.Database))
		}
	}
	if cfg.Jellyfin.Enabled {
		attrs = append(attrs, logging.String("jellyfin_url", cfg.Jellyfin.URL))
	}
	logger.Info("dbvoir watching downloads", logging.Args(attrs...)...)
}
