// Package jellyfin asks a Jellyfin server to rescan its library after music
// lands in it.
//
// Refresh issues a single POST /Library/Refresh and reports failures; Notify
// wraps it for the import pipeline, logging and swallowing every error so a
// flaky media server never undoes a finished import. Calls are bounded by the
// configured timeout and never retried.
package jellyfin
