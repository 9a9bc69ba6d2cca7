package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// ImportSummary describes the most recent finished dispatch.
type ImportSummary struct {
	Path       string `json:"path"`
	Trigger    string `json:"trigger,omitempty"`
	Outcome    string `json:"outcome"`
	Error      string `json:"error,omitempty"`
	FinishedAt string `json:"finishedAt"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running         bool               `json:"running"`
	PID             int                `json:"pid"`
	StartedAt       string             `json:"startedAt,omitempty"`
	WatchDir        string             `json:"watchDir"`
	WatchMode       string             `json:"watchMode"`
	EventsSeen      int64              `json:"eventsSeen"`
	LastEventAt     string             `json:"lastEventAt,omitempty"`
	PendingCount    int                `json:"pendingCount"`
	QueueDepth      int                `json:"queueDepth"`
	InFlight        string             `json:"inFlight,omitempty"`
	ProcessedCount  int                `json:"processedCount"`
	ProcessedStore  string             `json:"processedStore"`
	LockFilePath    string             `json:"lockFilePath"`
	LogPath         string             `json:"logPath,omitempty"`
	LastImport      *ImportSummary     `json:"lastImport,omitempty"`
	Dependencies    []DependencyStatus `json:"dependencies"`
	JellyfinEnabled bool               `json:"jellyfinEnabled"`
}

// PendingFile is one entry of the pending set.
type PendingFile struct {
	Path      string `json:"path"`
	FirstSeen string `json:"firstSeen"`
}

// PendingResponse wraps the pending set.
type PendingResponse struct {
	Items []PendingFile `json:"items"`
}

// ProcessedEntry is one processed-record entry.
type ProcessedEntry struct {
	Path        string `json:"path"`
	ProcessedAt string `json:"processedAt"`
}

// ProcessedResponse wraps recent processed entries.
type ProcessedResponse struct {
	Items []ProcessedEntry `json:"items"`
	Total int              `json:"total"`
}

// ForgetResponse reports whether a processed entry was removed.
type ForgetResponse struct {
	Path    string `json:"path"`
	Removed bool   `json:"removed"`
}

// PruneResponse reports how many processed entries were removed.
type PruneResponse struct {
	Removed int64 `json:"removed"`
}

// ImportRequest asks the daemon to import a path now.
type ImportRequest struct {
	Path string `json:"path"`
}

// ImportResponse acknowledges a queued import.
type ImportResponse struct {
	Path   string `json:"path"`
	Queued bool   `json:"queued"`
	Detail string `json:"detail,omitempty"`
}

// RescanResponse reports a manual Jellyfin refresh.
type RescanResponse struct {
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// NotifyResponse reports a test notification attempt.
type NotifyResponse struct {
	Sent   bool   `json:"sent"`
	Detail string `json:"detail"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}
