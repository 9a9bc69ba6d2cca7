// Package dispatch hands completed downloads to beets and reacts to the
// result.
//
// Dispatcher.Dispatch runs one import: it skips files already in the
// processed record, imports the file's directory, records the file on
// success, then asks Jellyfin to rescan and sends the optional ntfy message.
// Worker serializes dispatches on a single goroutine behind a bounded queue
// so a slow import never blocks the watcher or the poll loop, and refuses
// files that are already queued or in flight.
package dispatch
