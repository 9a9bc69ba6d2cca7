package watcher

import (
	"context"
	"io/fs"
	"time"

	"github.com/spf13/afero"

	"dbvoir/internal/config"
	"dbvoir/internal/logging"
)

type fileState struct {
	size    int64
	modTime time.Time
}

// snapshot tracks what the previous scan saw so only new or changed files
// reach the sink.
type snapshot map[string]fileState

func (w *Watcher) runPolling(ctx context.Context) error {
	// Without scan_on_start, files already present count as seen.
	prev := w.diff(ctx, snapshot{}, w.scanOnStart)
	w.setMode(config.WatchModePoll)

	ticker := time.NewTicker(w.scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			prev = w.diff(ctx, prev, true)
		}
	}
}

// diff scans the directory, emits entries that differ from prev when emit is
// set, and returns the new snapshot.
func (w *Watcher) diff(ctx context.Context, prev snapshot, emit bool) snapshot {
	next := make(snapshot, len(prev))
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
		state := fileState{size: info.Size(), modTime: info.ModTime()}
		next[path] = state
		if old, ok := prev[path]; emit && (!ok || old != state) {
			w.emit(ctx, path)
		}
		return nil
	})
	if err != nil && ctx.Err() == nil {
		w.logger.Warn("directory scan failed",
			logging.String("dir", w.dir),
			logging.Error(err),
			logging.String(logging.FieldEventType, "scan_failed"),
		)
		return prev
	}
	return next
}
