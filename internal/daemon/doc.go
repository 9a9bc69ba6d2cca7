// Package daemon coordinates the long-running dbvoir process.
//
// It wires the processed record, completion detector, dispatch worker,
// filesystem watcher, and poll loop into a single lifecycle with flock-based
// locking to prevent two instances sharing one state directory. The daemon
// also schedules maintenance (log retention and processed-record pruning)
// and serves the HTTP API used by the CLI and by Prometheus.
//
// Keep orchestration logic here: completion rules live in completion, import
// semantics in dispatch, and event sources in watcher.
package daemon
