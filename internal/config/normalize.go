package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeWatch(); err != nil {
		return err
	}
	if err := c.normalizeBeets(); err != nil {
		return err
	}
	c.normalizeJellyfin()
	if err := c.normalizeState(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WatchDir) == "" {
		c.Paths.WatchDir = envOr("NICOTINE_DOWNLOAD_DIR", defaultWatchDir)
	}
	if c.Paths.WatchDir, err = expandPath(strings.TrimSpace(c.Paths.WatchDir)); err != nil {
		return fmt.Errorf("paths.watch_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeWatch() error {
	if c.Watch.QuietPeriodSeconds == 0 {
		if value, ok := os.LookupEnv("WATCH_DELAY"); ok && strings.TrimSpace(value) != "" {
			seconds, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil {
				return fmt.Errorf("WATCH_DELAY must be an integer number of seconds: %w", err)
			}
			c.Watch.QuietPeriodSeconds = seconds
		} else {
			c.Watch.QuietPeriodSeconds = defaultQuietPeriodSeconds
		}
	}
	c.Watch.Mode = strings.ToLower(strings.TrimSpace(c.Watch.Mode))
	if c.Watch.Mode == "" {
		c.Watch.Mode = defaultWatchMode
	}
	c.Watch.PendingPolicy = strings.ToLower(strings.TrimSpace(c.Watch.PendingPolicy))
	if c.Watch.PendingPolicy == "" {
		c.Watch.PendingPolicy = defaultPendingPolicy
	}
	c.Watch.Extensions = normalizeExtensions(c.Watch.Extensions)
	if len(c.Watch.Extensions) == 0 {
		c.Watch.Extensions = DefaultExtensions()
	}
	if c.Watch.QueueSize <= 0 {
		c.Watch.QueueSize = defaultQueueSize
	}
	return nil
}

func (c *Config) normalizeBeets() error {
	c.Beets.Binary = strings.TrimSpace(c.Beets.Binary)
	if c.Beets.Binary == "" {
		c.Beets.Binary = defaultBeetsBinary
	}
	if strings.TrimSpace(c.Beets.ConfigPath) == "" {
		c.Beets.ConfigPath = envOr("BEETS_CONFIG", defaultBeetsConfigPath)
	}
	var err error
	if c.Beets.ConfigPath, err = expandPath(strings.TrimSpace(c.Beets.ConfigPath)); err != nil {
		return fmt.Errorf("beets.config_path: %w", err)
	}
	markers := make([]string, 0, len(c.Beets.SkipMarkers))
	for _, marker := range c.Beets.SkipMarkers {
		if trimmed := strings.TrimSpace(marker); trimmed != "" {
			markers = append(markers, trimmed)
		}
	}
	c.Beets.SkipMarkers = markers
	return nil
}

func (c *Config) normalizeJellyfin() {
	if strings.TrimSpace(c.Jellyfin.URL) == "" {
		c.Jellyfin.URL = envOr("JELLYFIN_URL", defaultJellyfinURL)
	}
	if c.Jellyfin.APIKey == "" {
		if value, ok := os.LookupEnv("JELLYFIN_API_KEY"); ok {
			c.Jellyfin.APIKey = value
		}
	}
	if c.Jellyfin.LibraryID == "" {
		if value, ok := os.LookupEnv("JELLYFIN_LIBRARY_ID"); ok {
			c.Jellyfin.LibraryID = value
		}
	}
	c.Jellyfin.URL = strings.TrimRight(strings.TrimSpace(c.Jellyfin.URL), "/")
	c.Jellyfin.APIKey = strings.TrimSpace(c.Jellyfin.APIKey)
	c.Jellyfin.LibraryID = strings.TrimSpace(c.Jellyfin.LibraryID)
	if c.Jellyfin.TimeoutSeconds <= 0 {
		c.Jellyfin.TimeoutSeconds = defaultJellyfinTimeout
	}
}

func (c *Config) normalizeState() error {
	c.State.Backend = strings.ToLower(strings.TrimSpace(c.State.Backend))
	if c.State.Backend == "" {
		c.State.Backend = defaultStateBackend
	}
	if strings.TrimSpace(c.State.SQLitePath) == "" {
		c.State.SQLitePath = filepath.Join(c.Paths.StateDir, defaultSQLiteFile)
	}
	var err error
	if c.State.SQLitePath, err = expandPath(strings.TrimSpace(c.State.SQLitePath)); err != nil {
		return fmt.Errorf("state.sqlite_path: %w", err)
	}
	if c.State.RedisURL == "" {
		if value, ok := os.LookupEnv("DBVOIR_REDIS_URL"); ok {
			c.State.RedisURL = value
		}
	}
	c.State.RedisURL = strings.TrimSpace(c.State.RedisURL)
	c.State.RedisKey = strings.TrimSpace(c.State.RedisKey)
	if c.State.RedisKey == "" {
		c.State.RedisKey = defaultRedisKey
	}
	c.State.MaintenanceSchedule = strings.TrimSpace(c.State.MaintenanceSchedule)
	if c.State.RetentionDays < 0 {
		c.State.RetentionDays = 0
	}
	return nil
}

func (c *Config) normalizeNotifications() {
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = value
		}
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNtfyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func normalizeExtensions(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		ext := strings.ToLower(strings.TrimSpace(value))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		out = append(out, ext)
	}
	return out
}

func envOr(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}
