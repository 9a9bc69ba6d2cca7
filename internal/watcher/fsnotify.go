package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"dbvoir/internal/config"
	"dbvoir/internal/logging"
)

// Rename carries the old name; a file renamed into place arrives as Create
// on the new one.
const relevantOps = fsnotify.Create | fsnotify.Write

func (w *Watcher) runFsnotify(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := w.addRecursive(watcher, w.dir); err != nil {
		return err
	}
	w.setMode(config.WatchModeFsnotify)
	w.initialScan(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				w.logger.Error("fsnotify events channel closed")
				return nil
			}
			w.handleEvent(ctx, watcher, ev)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.WarnWithContext(w.logger, "fsnotify error", "fsnotify_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "some events may have been dropped; they are picked up on the next change"),
			)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, watcher *fsnotify.Watcher, ev fsnotify.Event) {
	if ev.Op&relevantOps == 0 {
		return
	}
	w.logger.Debug("fsnotify event", logging.String("name", ev.Name), logging.String("op", ev.Op.String()))

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			// A directory moved in whole carries files no watch saw arrive.
			if err := w.addRecursive(watcher, ev.Name); err != nil {
				w.logger.Debug("watch new directory failed", logging.String("dir", ev.Name), logging.Error(err))
			}
			w.emitTree(ctx, ev.Name)
			return
		}
	}
	if !w.accepts(ev.Name) {
		return
	}
	w.emit(ctx, ev.Name)
}

func (w *Watcher) addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := watcher.Add(path); err != nil {
			logging.WarnWithContext(w.logger, "cannot watch directory", "watch_add_failed",
				logging.String("dir", path),
				logging.Error(err),
				logging.String(logging.FieldImpact, "downloads into this directory are not detected"),
			)
		}
		return nil
	})
}

func (w *Watcher) emitTree(ctx context.Context, root string) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !w.accepts(path) {
			return nil
		}
		w.emit(ctx, path)
		return nil
	})
}
