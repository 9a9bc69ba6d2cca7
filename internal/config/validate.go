package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateWatch(); err != nil {
		return err
	}
	if err := c.validateBeets(); err != nil {
		return err
	}
	if err := c.validateJellyfin(); err != nil {
		return err
	}
	if err := c.validateState(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.WatchDir) == "" {
		return errors.New("paths.watch_dir must be set (or export NICOTINE_DOWNLOAD_DIR)")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateWatch() error {
	if err := ensurePositiveMap(map[string]int{
		"watch.quiet_period_seconds":  c.Watch.QuietPeriodSeconds,
		"watch.poll_interval_seconds": c.Watch.PollIntervalSeconds,
		"watch.scan_interval_seconds": c.Watch.ScanIntervalSeconds,
		"watch.queue_size":            c.Watch.QueueSize,
	}); err != nil {
		return err
	}
	if c.Watch.SettleMarginSeconds < 0 {
		return errors.New("watch.settle_margin_seconds must be >= 0")
	}
	switch c.Watch.Mode {
	case WatchModeAuto, WatchModeFsnotify, WatchModePoll:
	default:
		return fmt.Errorf("watch.mode: unsupported value %q (want auto, fsnotify or poll)", c.Watch.Mode)
	}
	switch c.Watch.PendingPolicy {
	case PendingPolicyReset, PendingPolicyKeep:
	default:
		return fmt.Errorf("watch.pending_policy: unsupported value %q (want reset or keep)", c.Watch.PendingPolicy)
	}
	return nil
}

func (c *Config) validateBeets() error {
	if c.Beets.TimeoutSeconds <= 0 {
		return errors.New("beets.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateJellyfin() error {
	if !c.Jellyfin.Enabled {
		return nil
	}
	if c.Jellyfin.URL != "" && !strings.HasPrefix(c.Jellyfin.URL, "http://") && !strings.HasPrefix(c.Jellyfin.URL, "https://") {
		return fmt.Errorf("jellyfin.url must start with http:// or https:// (got %q)", c.Jellyfin.URL)
	}
	return nil
}

func (c *Config) validateState() error {
	switch c.State.Backend {
	case BackendMemory:
		if c.State.Capacity <= 0 {
			return errors.New("state.capacity must be positive for the memory backend")
		}
	case BackendSQLite:
		if strings.TrimSpace(c.State.SQLitePath) == "" {
			return errors.New("state.sqlite_path must be set when state.backend is sqlite")
		}
	case BackendRedis:
		if c.State.RedisURL == "" {
			return errors.New("state.redis_url must be set when state.backend is redis (or export DBVOIR_REDIS_URL)")
		}
	default:
		return fmt.Errorf("state.backend: unsupported value %q (want memory, sqlite or redis)", c.State.Backend)
	}
	if c.State.Capacity < 0 {
		return errors.New("state.capacity must be >= 0")
	}
	if c.State.MaintenanceSchedule != "" {
		if _, err := cron.ParseStandard(c.State.MaintenanceSchedule); err != nil {
			return fmt.Errorf("state.maintenance_schedule: %w", err)
		}
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
