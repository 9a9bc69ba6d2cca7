package api

import (
	"time"

	"dbvoir/internal/completion"
	"dbvoir/internal/deps"
	"dbvoir/internal/dispatch"
	"dbvoir/internal/processed"
)

// FormatTime renders t in the API timestamp format; the zero time renders as "".
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// ParseTime reverses FormatTime.
func ParseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateTimeFormat, value)
}

// FromPending converts the detector's pending snapshot.
func FromPending(entries []completion.PendingEntry) []PendingFile {
	out := make([]PendingFile, 0, len(entries))
	for _, e := range entries {
		out = append(out, PendingFile{Path: e.Path, FirstSeen: FormatTime(e.FirstSeen)})
	}
	return out
}

// FromEntries converts processed-record entries.
func FromEntries(entries []processed.Entry) []ProcessedEntry {
	out := make([]ProcessedEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, ProcessedEntry{Path: e.Path, ProcessedAt: FormatTime(e.ProcessedAt)})
	}
	return out
}

// FromCompletion converts the worker's last dispatch.
func FromCompletion(c dispatch.Completion) *ImportSummary {
	summary := &ImportSummary{
		Path:       c.Path,
		Trigger:    c.Trigger,
		Outcome:    string(c.Outcome),
		FinishedAt: FormatTime(c.Finished),
	}
	if c.Err != nil {
		summary.Error = c.Err.Error()
	}
	return summary
}

// FromDeps converts dependency checks.
func FromDeps(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, len(statuses))
	for i, dep := range statuses {
		out[i] = DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		}
	}
	return out
}
