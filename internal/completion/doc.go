// Package completion decides when a downloaded audio file is finished.
//
// The Detector receives paths from the filesystem watcher and classifies
// each one: ignored (wrong extension, empty, gone, already imported),
// pending (modified too recently), submitted (quiet long enough to import),
// or deferred (a transient stat failure; a later event retries it). The
// daemon's poll loop calls PromoteReady to move pending files to import once
// their quiet period has elapsed and their mtime has settled.
//
// Nothing here knows how a download client writes files: completion is
// inferred from metadata alone, read through an afero.Fs so tests can drive
// the clock and file times deterministically.
package completion
