package processed

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"dbvoir/internal/config"
	"dbvoir/internal/logging"
)

// Entry is one processed file.
type Entry struct {
	Path        string    `json:"path"`
	ProcessedAt time.Time `json:"processed_at"`
}

// Record is the set of files whose import succeeded. Implementations are safe
// for concurrent use. Add is idempotent: re-adding a path keeps its original
// timestamp.
type Record interface {
	Contains(ctx context.Context, path string) (bool, error)
	Add(ctx context.Context, path string) error
	Remove(ctx context.Context, path string) (bool, error)
	// List returns up to limit entries, newest first. A limit <= 0 lists all.
	List(ctx context.Context, limit int) ([]Entry, error)
	Len(ctx context.Context) (int, error)
	// Prune drops entries processed before the cutoff.
	Prune(ctx context.Context, before time.Time) (int64, error)
	Close() error
}

// Option tweaks backend construction.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source used to stamp new entries.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Key canonicalizes a path for use as a record key: cleaned and NFC
// normalized.
func Key(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	return norm.NFC.String(filepath.Clean(path))
}

// Open builds the backend selected by cfg.State.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (Record, error) {
	logger = logging.NewComponentLogger(logger, "processed")
	switch cfg.State.Backend {
	case "", config.BackendMemory:
		logger.Debug("processed record in memory", logging.Int("capacity", cfg.State.Capacity))
		return NewMemory(cfg.State.Capacity, opts...), nil
	case config.BackendSQLite:
		rec, err := OpenSQLite(ctx, cfg.State.SQLitePath, opts...)
		if err != nil {
			return nil, err
		}
		logger.Debug("processed record opened", logging.String("backend", "sqlite"), logging.String("db", cfg.State.SQLitePath))
		return rec, nil
	case config.BackendRedis:
		rec, err := OpenRedis(ctx, cfg.State.RedisURL, cfg.State.RedisKey, cfg.State.Capacity, opts...)
		if err != nil {
			return nil, err
		}
		logger.Debug("processed record opened", logging.String("backend", "redis"), logging.String("key", cfg.State.RedisKey))
		return rec, nil
	default:
		return nil, fmt.Errorf("processed record: unsupported backend %q", cfg.State.Backend)
	}
}
