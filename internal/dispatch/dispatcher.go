package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"dbvoir/internal/logging"
	"dbvoir/internal/metrics"
	"dbvoir/internal/notifications"
	"dbvoir/internal/processed"
	"dbvoir/internal/services"
	"dbvoir/internal/services/beets"
	"dbvoir/internal/services/jellyfin"
)

// Outcome classifies one dispatch.
type Outcome string

const (
	OutcomeImported         Outcome = "imported"
	OutcomeSkipped          Outcome = "skipped"
	OutcomeAlreadyProcessed Outcome = "already_processed"
	// OutcomeGone means the file left its directory before its turn came,
	// usually because an earlier import of the same album moved it.
	OutcomeGone   Outcome = "gone"
	OutcomeFailed Outcome = "failed"
)

// Succeeded reports whether the outcome leaves the file handled.
func (o Outcome) Succeeded() bool {
	return o == OutcomeImported || o == OutcomeSkipped
}

// Dispatcher runs imports and the follow-up rescan.
type Dispatcher struct {
	fs       afero.Fs
	importer beets.Importer
	record   processed.Record
	rescan   jellyfin.Service
	notifier notifications.Service
	logger   *slog.Logger
}

// New constructs a Dispatcher. A nil notifier disables push notifications.
func New(fsys afero.Fs, importer beets.Importer, record processed.Record, rescan jellyfin.Service, notifier notifications.Service, logger *slog.Logger) *Dispatcher {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &Dispatcher{
		fs:       fsys,
		importer: importer,
		record:   record,
		rescan:   rescan,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "dispatch"),
	}
}

// Dispatch imports the directory containing path. Only a failed import
// returns an error; rescan and notification problems are logged.
func (d *Dispatcher) Dispatch(ctx context.Context, path string) (Outcome, error) {
	path = filepath.Clean(path)
	ctx = d.withCorrelation(services.WithPath(ctx, path))
	logger := logging.WithContext(ctx, d.logger)

	done, err := d.record.Contains(ctx, path)
	if err != nil {
		metrics.ImportsTotal.WithLabelValues(string(OutcomeFailed)).Inc()
		return OutcomeFailed, fmt.Errorf("check processed record: %w", err)
	}
	if done {
		metrics.ImportsTotal.WithLabelValues(string(OutcomeAlreadyProcessed)).Inc()
		logger.Debug("file already processed; skipping import")
		return OutcomeAlreadyProcessed, nil
	}

	if _, err := d.fs.Stat(path); errors.Is(err, fs.ErrNotExist) {
		metrics.ImportsTotal.WithLabelValues(string(OutcomeGone)).Inc()
		logger.Info("file no longer in download directory; nothing to import",
			logging.String(logging.FieldEventType, "import_file_gone"))
		return OutcomeGone, nil
	}

	return d.run(ctx, filepath.Dir(path), []string{path})
}

// DispatchDirectory imports dir in one beets run and records every audio file
// in it (matched by allowed) that was not already processed.
func (d *Dispatcher) DispatchDirectory(ctx context.Context, dir string, allowed func(string) bool) (Outcome, error) {
	dir = filepath.Clean(dir)
	ctx = d.withCorrelation(services.WithPath(ctx, dir))
	logger := logging.WithContext(ctx, d.logger)

	var files []string
	walkErr := afero.Walk(d.fs, dir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || info.Size() == 0 || (allowed != nil && !allowed(path)) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if walkErr != nil {
		metrics.ImportsTotal.WithLabelValues(string(OutcomeFailed)).Inc()
		return OutcomeFailed, services.Wrap(services.ErrNotFound, "dispatch", "scan directory", dir, walkErr)
	}
	sort.Strings(files)

	fresh := files[:0]
	for _, file := range files {
		done, err := d.record.Contains(ctx, file)
		if err != nil {
			metrics.ImportsTotal.WithLabelValues(string(OutcomeFailed)).Inc()
			return OutcomeFailed, fmt.Errorf("check processed record: %w", err)
		}
		if !done {
			fresh = append(fresh, file)
		}
	}
	if len(fresh) == 0 {
		metrics.ImportsTotal.WithLabelValues(string(OutcomeAlreadyProcessed)).Inc()
		logger.Info("no unprocessed audio files in directory", logging.Int("files", len(files)))
		return OutcomeAlreadyProcessed, nil
	}
	return d.run(ctx, dir, fresh)
}

func (d *Dispatcher) run(ctx context.Context, dir string, files []string) (Outcome, error) {
	logger := logging.WithContext(ctx, d.logger)
	logger.Info("import started",
		logging.String("dir", dir),
		logging.Int("files", len(files)),
		logging.String(logging.FieldEventType, "import_started"),
	)

	result, err := d.importer.Import(ctx, dir)
	metrics.ImportDuration.Observe(result.Duration.Seconds())
	if err != nil {
		metrics.ImportsTotal.WithLabelValues(string(OutcomeFailed)).Inc()
		logging.ErrorWithContext(logger, "import failed; file left for a later event", "import_failed",
			logging.String("dir", dir),
			logging.Int("exit_code", result.ExitCode),
			logging.String("failure", services.FailureKind(err)),
			logging.Duration("elapsed", result.Duration),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run the logged beet command by hand to see why it failed"),
		)
		d.logOutput(logger, result)
		d.notifyFailed(ctx, logger, dir, err)
		return OutcomeFailed, err
	}

	outcome := OutcomeImported
	if result.Skipped() {
		outcome = OutcomeSkipped
	}
	for _, file := range files {
		if err := d.record.Add(ctx, file); err != nil {
			logging.WarnWithContext(logger, "import succeeded but could not be recorded", "processed_record_failed",
				logging.String(logging.FieldPath, file),
				logging.Error(err),
				logging.String(logging.FieldImpact, "a later event for this file will import it again"),
			)
		}
	}
	if n, err := d.record.Len(ctx); err == nil {
		metrics.ProcessedRecords.Set(float64(n))
	}
	metrics.ImportsTotal.WithLabelValues(string(outcome)).Inc()

	attrs := []logging.Attr{
		logging.String("dir", dir),
		logging.String("outcome", string(outcome)),
		logging.Duration("elapsed", result.Duration),
		logging.String(logging.FieldEventType, "import_completed"),
	}
	if result.Skipped() {
		attrs = append(attrs, logging.String("skip_marker", result.Marker))
	}
	logger.Info("import finished", logging.Args(attrs...)...)
	d.logOutput(logger, result)

	d.rescan.Notify(ctx)
	if d.notifier != nil {
		if err := d.notifier.NotifyImportCompleted(ctx, dir, string(outcome)); err != nil {
			logger.Debug("import notification failed", logging.Error(err))
		}
	}
	return outcome, nil
}

func (d *Dispatcher) notifyFailed(ctx context.Context, logger *slog.Logger, dir string, cause error) {
	if d.notifier == nil {
		return
	}
	if err := d.notifier.NotifyImportFailed(ctx, dir, cause); err != nil {
		logger.Debug("failure notification failed", logging.Error(err))
	}
}

func (d *Dispatcher) logOutput(logger *slog.Logger, result beets.Result) {
	if out := strings.TrimSpace(result.Stdout); out != "" {
		logger.Debug("beets stdout", logging.String("output", out))
	}
	if out := strings.TrimSpace(result.Stderr); out != "" {
		logger.Debug("beets stderr", logging.String("output", out))
	}
	if len(result.Args) > 0 {
		logger.Debug("beets command", logging.String("args", strings.Join(result.Args, " ")))
	}
}

func (d *Dispatcher) withCorrelation(ctx context.Context) context.Context {
	if _, ok := services.RequestIDFromContext(ctx); ok {
		return ctx
	}
	return services.WithRequestID(ctx, uuid.NewString())
}

