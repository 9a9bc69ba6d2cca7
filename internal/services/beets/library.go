package beets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultLibraryDir = "~/Music"

type beetsConfig struct {
	Directory string `yaml:"directory"`
	Library   string `yaml:"library"`
}

// LibraryInfo summarizes the parts of a beets config the watcher reports at
// startup.
type LibraryInfo struct {
	ConfigPath string
	Directory  string
	Database   string
}

// ReadLibraryInfo parses the beets YAML config at path. A missing file yields
// the beets defaults so the banner can still say where music will land.
func ReadLibraryInfo(path string) (LibraryInfo, error) {
	info := LibraryInfo{ConfigPath: path, Directory: expandHome(defaultLibraryDir)}
	if strings.TrimSpace(path) == "" {
		return info, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return info, nil
		}
		return info, fmt.Errorf("read beets config: %w", err)
	}
	var parsed beetsConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return info, fmt.Errorf("parse beets config %s: %w", path, err)
	}
	if dir := strings.TrimSpace(parsed.Directory); dir != "" {
		info.Directory = expandHome(dir)
	}
	if db := strings.TrimSpace(parsed.Library); db != "" {
		info.Database = expandHome(db)
	}
	return info, nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return filepath.Clean(path)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
