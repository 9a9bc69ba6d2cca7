// Package preflight provides readiness checks for the filesystem paths and
// external services dbvoir depends on.
//
// These checks run in two contexts:
//   - `dbvoir run` logs every result at startup and refuses to start only
//     when the download directory is missing.
//   - `dbvoir status` renders them as a table next to the daemon status.
//
// Each check is gated by its config toggle; disabled features are skipped.
package preflight
