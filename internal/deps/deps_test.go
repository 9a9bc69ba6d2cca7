package deps

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveBeetFromPath(t *testing.T) {
	binDir := t.TempDir()
	beet := filepath.Join(binDir, "beet")
	if err := os.WriteFile(beet, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write beet stub: %v", err)
	}
	t.Setenv("PATH", binDir)
	t.Setenv("HOME", t.TempDir())

	status := ResolveBeet("beet")
	if !status.Available {
		t.Fatalf("expected beet on PATH, got detail %q", status.Detail)
	}
	if status.Command != beet {
		t.Fatalf("expected command %q, got %q", beet, status.Command)
	}
}

func TestResolveBeetFallsBackToLocalBin(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("PATH", t.TempDir())
	local := filepath.Join(home, ".local", "bin")
	if err := os.MkdirAll(local, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	beet := filepath.Join(local, "beet")
	if err := os.WriteFile(beet, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write beet stub: %v", err)
	}

	status := ResolveBeet("")
	if !status.Available {
		t.Fatalf("expected ~/.local/bin fallback, got detail %q", status.Detail)
	}
	if status.Command != beet {
		t.Fatalf("expected command %q, got %q", beet, status.Command)
	}
	if status.Detail == "" {
		t.Fatal("expected detail noting the PATH miss")
	}
}

func TestResolveBeetNotFound(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PATH", "")
	status := ResolveBeet("beet")
	if status.Available {
		t.Fatal("expected beet resolution to fail")
	}
	if status.Detail == "" {
		t.Fatal("expected detail message when beet is unavailable")
	}
}

func TestResolveBeetIgnoresLocalBinForExplicitPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	status := ResolveBeet(filepath.Join(home, "nope", "beet"))
	if status.Available {
		t.Fatal("explicit missing path must not resolve")
	}
}
