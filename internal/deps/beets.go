package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ResolveBeet reports the beets binary an import will execute.
//
// A bare name is looked up on PATH first and then in ~/.local/bin, where
// pipx and `pip install --user` put the beet script; services started by
// systemd often run without that directory on PATH.
func ResolveBeet(binary string) Status {
	result := Status{
		Name:        "beets",
		Description: "Required to import completed downloads",
	}

	name := strings.TrimSpace(binary)
	if name == "" {
		name = "beet"
	}
	result.Command = name

	if path, err := exec.LookPath(name); err == nil {
		result.Command = path
		result.Available = true
		return result
	}
	if !strings.ContainsRune(name, filepath.Separator) {
		if home, err := os.UserHomeDir(); err == nil {
			candidate := filepath.Join(home, ".local", "bin", executableName(name))
			if info, statErr := os.Stat(candidate); statErr == nil && isExecutable(info) {
				result.Command = candidate
				result.Available = true
				result.Detail = "found outside PATH"
				return result
			}
		}
	}

	result.Detail = fmt.Sprintf("binary %q not found", name)
	return result
}

func executableName(base string) string {
	if runtime.GOOS == "windows" && !strings.HasSuffix(base, ".exe") {
		return base + ".exe"
	}
	return base
}

func isExecutable(info os.FileInfo) bool {
	if info == nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
