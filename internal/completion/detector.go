package completion

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"dbvoir/internal/config"
	"dbvoir/internal/dispatch"
	"dbvoir/internal/logging"
	"dbvoir/internal/metrics"
	"dbvoir/internal/processed"
)

// Decision is the detector's verdict on one notification.
type Decision string

const (
	DecisionIgnored   Decision = "ignored"
	DecisionPending   Decision = "pending"
	DecisionSubmitted Decision = "submitted"
	DecisionDeferred  Decision = "deferred"
)

// Submitter accepts files for import. dispatch.Worker implements it.
type Submitter interface {
	Submit(path string) error
}

// PendingEntry is one file waiting out its quiet period.
type PendingEntry struct {
	Path      string    `json:"path"`
	FirstSeen time.Time `json:"first_seen"`
}

// Option configures a Detector.
type Option func(*Detector)

// WithClock overrides the time source used by Evaluate.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) {
		if now != nil {
			d.now = now
		}
	}
}

// pendingFile keeps the on-disk spelling of a path alongside its first-seen
// time. The pending map itself is keyed by processed.Key.
type pendingFile struct {
	path      string
	firstSeen time.Time
}

// Detector owns the pending set and classifies filesystem notifications.
type Detector struct {
	fs      afero.Fs
	record  processed.Record
	submit  Submitter
	logger  *slog.Logger
	now     func() time.Time
	quiet   time.Duration
	settle  time.Duration
	keep    bool
	allowed ExtensionFilter

	mu      sync.Mutex
	pending map[string]pendingFile
}

// New constructs a Detector from the [watch] config section.
func New(cfg *config.Config, fsys afero.Fs, record processed.Record, submit Submitter, logger *slog.Logger, opts ...Option) *Detector {
	d := &Detector{
		fs:      fsys,
		record:  record,
		submit:  submit,
		logger:  logging.NewComponentLogger(logger, "detector"),
		now:     time.Now,
		quiet:   cfg.QuietPeriod(),
		settle:  cfg.SettleMargin(),
		keep:    cfg.Watch.PendingPolicy == config.PendingPolicyKeep,
		allowed: NewExtensionFilter(cfg.Watch.Extensions),
		pending: make(map[string]pendingFile),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Evaluate classifies a path reported by a create, write, or rename-into
// notification (or a poll-mode scan).
func (d *Detector) Evaluate(ctx context.Context, path string) Decision {
	decision, reason := d.evaluate(ctx, path)
	metrics.EventsTotal.WithLabelValues(string(decision)).Inc()
	if decision != DecisionIgnored || reason != "extension" {
		d.logger.Debug("file event evaluated",
			logging.Args(append(logging.DecisionAttrs("completion", string(decision), reason),
				logging.String(logging.FieldPath, path))...)...,
		)
	}
	return decision
}

func (d *Detector) evaluate(ctx context.Context, path string) (Decision, string) {
	if strings.TrimSpace(path) == "" {
		return DecisionIgnored, "extension"
	}
	// Filenames are bytes on disk; only the key is normalized.
	path = filepath.Clean(path)
	key := processed.Key(path)
	if !d.Allowed(path) {
		return DecisionIgnored, "extension"
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	info, err := d.fs.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DecisionIgnored, "missing"
		}
		return DecisionDeferred, "stat: " + err.Error()
	}
	if info.IsDir() {
		return DecisionIgnored, "directory"
	}
	if info.Size() == 0 {
		return DecisionIgnored, "empty"
	}

	done, err := d.record.Contains(ctx, key)
	if err != nil {
		return DecisionDeferred, "processed lookup: " + err.Error()
	}
	if done {
		return DecisionIgnored, "already processed"
	}

	now := d.now()
	if now.Sub(info.ModTime()) < d.quiet {
		entry := pendingFile{path: path, firstSeen: now}
		if prev, seen := d.pending[key]; seen && d.keep {
			entry.firstSeen = prev.firstSeen
		}
		d.pending[key] = entry
		metrics.PendingFiles.Set(float64(len(d.pending)))
		return DecisionPending, "modified within quiet period"
	}

	delete(d.pending, key)
	if err := d.submit.Submit(path); err != nil && !errors.Is(err, dispatch.ErrAlreadyQueued) {
		// Back-date so the next poll retries straight away.
		d.pending[key] = pendingFile{path: path, firstSeen: now.Add(-d.quiet)}
		metrics.PendingFiles.Set(float64(len(d.pending)))
		return DecisionPending, "dispatch refused: " + err.Error()
	}
	metrics.PendingFiles.Set(float64(len(d.pending)))
	return DecisionSubmitted, "quiet period elapsed"
}

// PromoteReady submits every pending file whose quiet period has elapsed, that
// still exists with a non-zero size, and whose mtime is at least the settle
// margin old. Files that disappeared are evicted. It returns the promoted
// paths in submission order.
func (d *Detector) PromoteReady(ctx context.Context, now time.Time) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.pending) == 0 {
		return nil
	}

	due := make([]string, 0, len(d.pending))
	for key, entry := range d.pending {
		if now.Sub(entry.firstSeen) >= d.quiet {
			due = append(due, key)
		}
	}
	sort.Strings(due)

	var promoted []string
	for _, key := range due {
		path := d.pending[key].path
		info, err := d.fs.Stat(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			delete(d.pending, key)
			metrics.EvictionsTotal.Inc()
			d.logger.Debug("pending file vanished; evicted", logging.String(logging.FieldPath, path))
			continue
		case err != nil:
			d.logger.Debug("pending file stat failed; retrying next poll",
				logging.String(logging.FieldPath, path), logging.Error(err))
			continue
		case info.IsDir(), info.Size() == 0:
			continue
		case now.Sub(info.ModTime()) < d.settle:
			continue
		}

		if err := d.submit.Submit(path); err != nil && !errors.Is(err, dispatch.ErrAlreadyQueued) {
			d.logger.Debug("dispatch refused pending file; retrying next poll",
				logging.String(logging.FieldPath, path), logging.Error(err))
			continue
		}
		delete(d.pending, key)
		promoted = append(promoted, path)
		metrics.PromotionsTotal.Inc()
		logging.WithContext(ctx, d.logger).Info("download complete; queued for import",
			logging.String(logging.FieldPath, path),
			logging.String(logging.FieldEventType, "file_promoted"),
		)
	}
	metrics.PendingFiles.Set(float64(len(d.pending)))
	return promoted
}

// Allowed reports whether path carries one of the watched extensions.
func (d *Detector) Allowed(path string) bool {
	return d.allowed.Allowed(path)
}

// Pending returns a snapshot of the pending set sorted by path.
func (d *Detector) Pending() []PendingEntry {
	d.mu.Lock()
	entries := make([]PendingEntry, 0, len(d.pending))
	for _, entry := range d.pending {
		entries = append(entries, PendingEntry{Path: entry.path, FirstSeen: entry.firstSeen})
	}
	d.mu.Unlock()
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries
}

// PendingCount returns the size of the pending set.
func (d *Detector) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
