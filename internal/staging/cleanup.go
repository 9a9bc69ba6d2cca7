package staging

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"

	"dbvoir/internal/logging"
)

// CleanResult contains the outcome of an empty directory cleanup.
type CleanResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// PruneEmptyDirs removes directories under root that contain nothing and were
// last modified before now-minAge. Nested empty folders are removed deepest
// first so a parent emptied by the pass is removed in the same pass. root is
// never removed.
func PruneEmptyDirs(ctx context.Context, fsys afero.Fs, root string, minAge time.Duration, now time.Time, logger *slog.Logger) CleanResult {
	result := CleanResult{}

	root = strings.TrimSpace(root)
	if root == "" {
		return result
	}
	root = filepath.Clean(root)

	var dirs []string
	err := afero.Walk(fsys, root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			if path != root {
				result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			}
			return nil
		}
		if info.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return ctx.Err()
	})
	if err != nil {
		return result
	}

	// Deepest paths first.
	sort.Slice(dirs, func(i, j int) bool {
		return strings.Count(dirs[i], string(filepath.Separator)) > strings.Count(dirs[j], string(filepath.Separator))
	})

	cutoff := now.Add(-minAge)
	for _, dir := range dirs {
		if ctx.Err() != nil {
			break
		}
		info, err := fsys.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		empty, err := afero.IsEmpty(fsys, dir)
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dir, Error: err})
			continue
		}
		// Removing a child bumps the parent's mtime, so only leaves are held
		// to the age check.
		if !empty || (info.ModTime().After(cutoff) && !parentOfRemoved(dir, result.Removed)) {
			continue
		}
		if err := fsys.Remove(dir); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dir, Error: err})
			if logger != nil {
				logger.Warn("failed to remove empty download directory",
					logging.String("path", dir),
					logging.Error(err),
					logging.String(logging.FieldEventType, "download_cleanup_failed"),
					logging.String(logging.FieldErrorHint, "check download directory permissions"),
					logging.String(logging.FieldImpact, "empty album folders stay in the download directory"),
				)
			}
			continue
		}
		result.Removed = append(result.Removed, dir)
		if logger != nil {
			logger.Info("removed empty download directory",
				logging.String("path", dir),
				logging.String(logging.FieldEventType, "download_cleanup"),
			)
		}
	}

	return result
}

func parentOfRemoved(dir string, removed []string) bool {
	prefix := dir + string(filepath.Separator)
	for _, r := range removed {
		if strings.HasPrefix(r, prefix) {
			return true
		}
	}
	return false
}
