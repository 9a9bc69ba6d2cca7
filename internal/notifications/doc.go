// Package notifications sends ntfy push messages about imports.
//
// NewService returns a noop implementation when no topic is configured, so
// callers can notify unconditionally. Success and failure messages can be
// toggled separately in the [notifications] config section.
package notifications
