package config

const (
	defaultConfigPath          = "~/.config/dbvoir/config.toml"
	defaultWatchDir            = "~/Downloads/soulseek"
	defaultLogDir              = "~/.local/share/dbvoir/logs"
	defaultStateDir            = "~/.local/share/dbvoir"
	defaultAPIBind             = "127.0.0.1:7489"
	defaultQuietPeriodSeconds  = 30
	defaultSettleMarginSeconds = 5
	defaultPollIntervalSeconds = 1
	defaultScanIntervalSeconds = 5
	defaultWatchMode           = WatchModeAuto
	defaultPendingPolicy       = PendingPolicyReset
	defaultQueueSize           = 256
	defaultBeetsBinary         = "beet"
	defaultBeetsConfigPath     = "~/.config/beets/config.yaml"
	defaultBeetsTimeoutSeconds = 600
	defaultJellyfinURL         = "http://10.0.0.8:8096"
	defaultJellyfinTimeout     = 10
	defaultStateBackend        = BackendMemory
	defaultStateCapacity       = 10000
	defaultSQLiteFile          = "processed.db"
	defaultRedisKey            = "dbvoir:processed"
	defaultMaintenanceSchedule = "@hourly"
	defaultNtfyRequestTimeout  = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultLogRetentionDays    = 30
)

// Watch modes.
const (
	WatchModeAuto     = "auto"
	WatchModeFsnotify = "fsnotify"
	WatchModePoll     = "poll"
)

// Pending timestamp policies.
const (
	// PendingPolicyReset restarts the quiet period on every notification.
	PendingPolicyReset = "reset"
	// PendingPolicyKeep measures the quiet period from the first notification.
	PendingPolicyKeep = "keep"
)

// Processed record backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// DefaultExtensions lists the audio file extensions handed to beets.
func DefaultExtensions() []string {
	return []string{".mp3", ".flac", ".m4a", ".ogg", ".opus", ".wav", ".wma"}
}

// DefaultSkipMarkers lists beets output fragments that mean the import was
// intentionally skipped rather than failed.
func DefaultSkipMarkers() []string {
	return []string{"Skipping", "not match"}
}

// Default returns a Config populated with repository defaults. Fields that
// have environment fallbacks (watch dir, quiet period, Jellyfin URL, beets
// config) are left empty so normalize can consult the environment first.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir:   defaultLogDir,
			StateDir: defaultStateDir,
			APIBind:  defaultAPIBind,
		},
		Watch: Watch{
			SettleMarginSeconds: defaultSettleMarginSeconds,
			PollIntervalSeconds: defaultPollIntervalSeconds,
			ScanIntervalSeconds: defaultScanIntervalSeconds,
			Mode:                defaultWatchMode,
			PendingPolicy:       defaultPendingPolicy,
			Extensions:          DefaultExtensions(),
			QueueSize:           defaultQueueSize,
		},
		Beets: Beets{
			Binary:         defaultBeetsBinary,
			TimeoutSeconds: defaultBeetsTimeoutSeconds,
			Move:           true,
			Quiet:          true,
			SkipMarkers:    DefaultSkipMarkers(),
		},
		Jellyfin: Jellyfin{
			Enabled:        true,
			TimeoutSeconds: defaultJellyfinTimeout,
		},
		State: State{
			Backend:             defaultStateBackend,
			Capacity:            defaultStateCapacity,
			RedisKey:            defaultRedisKey,
			MaintenanceSchedule: defaultMaintenanceSchedule,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
			ImportFailure:  true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
