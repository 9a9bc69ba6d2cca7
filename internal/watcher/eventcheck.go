package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// EventSupport reports whether fsnotify is usable and why not.
type EventSupport struct {
	Supported bool
	Reason    string
}

// CheckEvents creates and renames a scratch file in dir and waits briefly for the
// matching notification.
func CheckEvents(dir string) EventSupport {
	st, err := os.Stat(dir)
	if err != nil {
		return EventSupport{Reason: fmt.Sprintf("stat failed: %v", err)}
	}
	if !st.IsDir() {
		return EventSupport{Reason: "not a directory"}
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return EventSupport{Reason: fmt.Sprintf("fsnotify unavailable: %v", err)}
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return EventSupport{Reason: fmt.Sprintf("cannot watch directory: %v", err)}
	}

	tmp := filepath.Join(dir, ".dbvoir_eventcheck_tmp")
	final := filepath.Join(dir, ".dbvoir_eventcheck")
	f, err := os.Create(tmp)
	if err != nil {
		return EventSupport{Reason: fmt.Sprintf("cannot create scratch file: %v", err)}
	}
	f.Close()
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return EventSupport{Reason: fmt.Sprintf("rename failed: %v", err)}
	}
	defer os.Remove(final)

	timeout := time.After(500 * time.Millisecond)
	for {
		select {
		case ev := <-w.Events:
			if ev.Op&(fsnotify.Rename|fsnotify.Create|fsnotify.Write) != 0 {
				return EventSupport{Supported: true}
			}
		case err := <-w.Errors:
			return EventSupport{Reason: fmt.Sprintf("fsnotify error: %v", err)}
		case <-timeout:
			return EventSupport{Reason: "no events received"}
		}
	}
}
