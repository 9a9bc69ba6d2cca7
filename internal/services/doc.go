// Package services defines shared utilities consumed by the import pipeline
// and its external integrations (beets, Jellyfin).
//
// Key responsibilities:
//   - Context helpers that stamp file paths, import triggers, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so failures can be
//     classified consistently in logs, metrics, and notifications.
//
// Use these helpers when wiring new integrations so error handling and
// observability stay uniform across the watcher.
package services
