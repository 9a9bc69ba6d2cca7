package daemon

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"dbvoir/internal/logging"
	"dbvoir/internal/metrics"
	"dbvoir/internal/staging"
)

// MaintenanceReport summarizes one maintenance pass.
type MaintenanceReport struct {
	LogsRemoved   int
	RecordsPruned int64
	DirsRemoved   int
	Err           error
}

// emptyDirMinAge keeps freshly created album folders that the download client
// has not written into yet.
const emptyDirMinAge = time.Hour

func (d *Daemon) startMaintenance(ctx context.Context) error {
	schedule := strings.TrimSpace(d.cfg.State.MaintenanceSchedule)
	if schedule == "" {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { d.RunMaintenance(ctx) }); err != nil {
		return err
	}
	c.Start()

	d.mu.Lock()
	d.scheduler = c
	d.mu.Unlock()
	return nil
}

// RunMaintenance prunes old run logs and, when retention is configured,
// processed entries older than state.retention_days.
func (d *Daemon) RunMaintenance(ctx context.Context) MaintenanceReport {
	var report MaintenanceReport

	if dir := d.cfg.Paths.LogDir; dir != "" {
		var exclude []string
		if d.logPath != "" {
			exclude = append(exclude, d.logPath)
		}
		report.LogsRemoved = logging.CleanupOldLogs(d.logger, d.cfg.Logging.RetentionDays,
			logging.RetentionTarget{Dir: dir, Pattern: "dbvoir-*.log", Exclude: exclude},
		)
	}

	if days := d.cfg.State.RetentionDays; days > 0 {
		cutoff := d.now().AddDate(0, 0, -days)
		pruned, err := d.record.Prune(ctx, cutoff)
		if err != nil {
			report.Err = err
			logging.WarnWithContext(d.logger, "processed record prune failed", "processed_prune_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "the processed record keeps growing until the next successful pass"),
			)
		} else {
			report.RecordsPruned = pruned
			metrics.PrunedRecordsTotal.Add(float64(pruned))
			if n, lenErr := d.record.Len(ctx); lenErr == nil {
				metrics.ProcessedRecords.Set(float64(n))
			}
		}
	}

	if d.cfg.Watch.PruneEmptyDirs {
		minAge := emptyDirMinAge
		if quiet := d.cfg.QuietPeriod(); quiet > minAge {
			minAge = quiet
		}
		cleaned := staging.PruneEmptyDirs(ctx, d.fs, d.cfg.Paths.WatchDir, minAge, d.now(), d.logger)
		report.DirsRemoved = len(cleaned.Removed)
	}

	result := metrics.ResultOK
	if report.Err != nil {
		result = metrics.ResultFailed
	}
	metrics.MaintenanceRunsTotal.WithLabelValues(result).Inc()
	if report.LogsRemoved > 0 || report.RecordsPruned > 0 || report.DirsRemoved > 0 {
		d.logger.Info("maintenance complete",
			logging.Int("logs_removed", report.LogsRemoved),
			logging.Int64("records_pruned", report.RecordsPruned),
			logging.Int("dirs_removed", report.DirsRemoved),
			logging.String("log_dir", filepath.Clean(d.cfg.Paths.LogDir)),
			logging.String(logging.FieldEventType, "maintenance_complete"),
		)
	}
	return report
}
