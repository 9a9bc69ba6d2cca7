// Package api defines the wire-format types for the daemon's HTTP API and a
// small client the CLI uses to reach it.
//
// DTOs use camelCase JSON tags. Timestamps are RFC3339 with milliseconds.
// Converters translate detector, dispatcher, and processed-record models so
// handlers never encode internal structs directly.
package api
