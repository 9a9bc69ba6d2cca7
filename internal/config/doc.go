// Package config loads, normalizes, and validates dbvoir configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the environment variables the
// watcher has always been driven by (NICOTINE_DOWNLOAD_DIR, WATCH_DELAY,
// JELLYFIN_URL, JELLYFIN_API_KEY, JELLYFIN_LIBRARY_ID). LoadDotEnv feeds .env
// files into that environment before Load runs.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
