package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"dbvoir/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Jellyfin starts disabled and the API binds an ephemeral port.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.WatchDir = filepath.Join(base, "downloads")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Watch.QuietPeriodSeconds = 30
	cfgVal.Beets.ConfigPath = filepath.Join(base, "beets", "config.yaml")
	cfgVal.Jellyfin.Enabled = false
	cfgVal.Jellyfin.URL = "http://127.0.0.1:8096"
	cfgVal.State.SQLitePath = filepath.Join(base, "state", "processed.db")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithQuietPeriod overrides the quiet period and settle margin in seconds.
func WithQuietPeriod(quiet, settle int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Watch.QuietPeriodSeconds = quiet
		b.cfg.Watch.SettleMarginSeconds = settle
	}
}

// WithPendingPolicy selects the pending timestamp policy.
func WithPendingPolicy(policy string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Watch.PendingPolicy = policy
	}
}

// WithJellyfin enables library refreshes against url.
func WithJellyfin(url, apiKey string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Jellyfin.Enabled = true
		b.cfg.Jellyfin.URL = url
		b.cfg.Jellyfin.APIKey = apiKey
	}
}

// WithWatchDir creates the watched directory on disk.
func WithWatchDir() ConfigOption {
	return func(b *configBuilder) {
		if err := os.MkdirAll(b.cfg.Paths.WatchDir, 0o755); err != nil {
			b.t.Fatalf("mkdir watch dir: %v", err)
		}
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, beet is stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"beet"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}
		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WatchDir)
}

// WithConfig applies an arbitrary mutation to the generated config.
func WithConfig(mutate func(*config.Config)) ConfigOption {
	return func(b *configBuilder) {
		mutate(b.cfg)
	}
}
