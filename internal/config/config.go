package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	WatchDir string `toml:"watch_dir"`
	LogDir   string `toml:"log_dir"`
	StateDir string `toml:"state_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Watch controls completion detection and the filesystem event source.
type Watch struct {
	QuietPeriodSeconds  int      `toml:"quiet_period_seconds"`
	SettleMarginSeconds int      `toml:"settle_margin_seconds"`
	PollIntervalSeconds int      `toml:"poll_interval_seconds"`
	ScanIntervalSeconds int      `toml:"scan_interval_seconds"`
	Mode                string   `toml:"mode"`
	PendingPolicy       string   `toml:"pending_policy"`
	Extensions          []string `toml:"extensions"`
	ScanOnStart         bool     `toml:"scan_on_start"`
	QueueSize           int      `toml:"queue_size"`
	PruneEmptyDirs      bool     `toml:"prune_empty_dirs"`
}

// Beets contains the import tool invocation settings.
type Beets struct {
	Binary         string   `toml:"binary"`
	ConfigPath     string   `toml:"config_path"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
	Move           bool     `toml:"move"`
	Autotag        bool     `toml:"autotag"`
	Quiet          bool     `toml:"quiet"`
	SkipMarkers    []string `toml:"skip_markers"`
}

// Jellyfin contains configuration for Jellyfin library refreshes.
type Jellyfin struct {
	Enabled        bool   `toml:"enabled"`
	URL            string `toml:"url"`
	APIKey         string `toml:"api_key"`
	LibraryID      string `toml:"library_id"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// State selects and tunes the processed record backend.
type State struct {
	Backend             string `toml:"backend"`
	Capacity            int    `toml:"capacity"`
	SQLitePath          string `toml:"sqlite_path"`
	RedisURL            string `toml:"redis_url"`
	RedisKey            string `toml:"redis_key"`
	RetentionDays       int    `toml:"retention_days"`
	MaintenanceSchedule string `toml:"maintenance_schedule"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	ImportSuccess  bool   `toml:"import_success"`
	ImportFailure  bool   `toml:"import_failure"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for dbvoir.
//
// Configuration sections by subsystem:
//   - Paths: watched download directory, logs, state and the HTTP API bind
//   - Watch: quiet period, settle margin, poll cadence and event source mode
//   - Beets: import command and outcome classification
//   - Jellyfin: library refresh endpoint and credential
//   - State: processed record backend (memory, sqlite, redis)
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Watch         Watch         `toml:"watch"`
	Beets         Beets         `toml:"beets"`
	Jellyfin      Jellyfin      `toml:"jellyfin"`
	State         State         `toml:"state"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("dbvoir.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the daemon writes to. The watch
// directory is never created here; its absence is reported at daemon start.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.LogDir, c.Paths.StateDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// QuietPeriod returns the minimum file age before a download counts as complete.
func (c *Config) QuietPeriod() time.Duration {
	return time.Duration(c.Watch.QuietPeriodSeconds) * time.Second
}

// SettleMargin returns the extra mtime age required when promoting a pending file.
func (c *Config) SettleMargin() time.Duration {
	return time.Duration(c.Watch.SettleMarginSeconds) * time.Second
}

// PollInterval returns the pending-set poll cadence.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Watch.PollIntervalSeconds) * time.Second
}

// ScanInterval returns the directory rescan cadence used in poll mode.
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Watch.ScanIntervalSeconds) * time.Second
}

// ImportTimeout bounds a single beets run.
func (c *Config) ImportTimeout() time.Duration {
	return time.Duration(c.Beets.TimeoutSeconds) * time.Second
}

// RescanTimeout bounds a single Jellyfin refresh call.
func (c *Config) RescanTimeout() time.Duration {
	return time.Duration(c.Jellyfin.TimeoutSeconds) * time.Second
}

// LockPath is the flock file guarding single-instance daemon execution.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "dbvoir.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
