// Package beets drives the beets music library manager from the import
// pipeline.
//
// The Client shells out to `beet import`, captures stdout and stderr
// separately, bounds each run with a timeout, and classifies the result:
// exit status zero or output that carries one of the configured skip markers
// counts as success. Command execution sits behind the Executor interface so
// tests can replay canned output without a beets installation.
package beets
