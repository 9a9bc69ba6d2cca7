package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotEnv reads KEY=VALUE files into the process environment. Missing files
// are skipped and variables that are already set keep their value, so the
// shell environment always wins over a .env file.
func LoadDotEnv(paths ...string) ([]string, error) {
	var loaded []string
	seen := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return loaded, fmt.Errorf("resolve env file %q: %w", path, err)
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}
		info, err := os.Stat(abs)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return loaded, fmt.Errorf("stat env file: %w", err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Load(abs); err != nil {
			return loaded, fmt.Errorf("load env file %s: %w", abs, err)
		}
		loaded = append(loaded, abs)
	}
	return loaded, nil
}

// DotEnvCandidates returns the .env locations consulted before loading config:
// the working directory and the directory holding the config file.
func DotEnvCandidates(configPath string) []string {
	candidates := []string{".env"}
	if strings.TrimSpace(configPath) != "" {
		if expanded, err := expandPath(configPath); err == nil {
			candidates = append(candidates, filepath.Join(filepath.Dir(expanded), ".env"))
		}
	} else if defaultPath, err := DefaultConfigPath(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(defaultPath), ".env"))
	}
	return candidates
}
