package beets_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dbvoir/internal/config"
	"dbvoir/internal/services"
	"dbvoir/internal/services/beets"
)

type stubExecutor struct {
	out    beets.Output
	err    error
	block  bool
	calls  int
	binary string
	args   []string
}

func (s *stubExecutor) Run(ctx context.Context, binary string, args []string) (beets.Output, error) {
	s.calls++
	s.binary = binary
	s.args = append([]string(nil), args...)
	if s.block {
		<-ctx.Done()
		return beets.Output{ExitCode: -1}, ctx.Err()
	}
	return s.out, s.err
}

func beetsConfig() config.Beets {
	cfg := config.Default()
	cfg.Beets.ConfigPath = "/home/user/.config/beets/config.yaml"
	cfg.Beets.SkipMarkers = config.DefaultSkipMarkers()
	return cfg.Beets
}

func newClient(t *testing.T, exec beets.Executor, opts ...beets.Option) *beets.Client {
	t.Helper()
	client, err := beets.New(beetsConfig(), append([]beets.Option{beets.WithExecutor(exec)}, opts...)...)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return client
}

func TestImportBuildsCommandLine(t *testing.T) {
	exec := &stubExecutor{}
	client := newClient(t, exec)

	result, err := client.Import(context.Background(), "/downloads/Album")
	if err != nil {
		t.Fatalf("Import returned error: %v", err)
	}
	want := "-c /home/user/.config/beets/config.yaml import -q --noautotag --move /downloads/Album"
	if got := strings.Join(exec.args, " "); got != want {
		t.Fatalf("unexpected args:\n got %q\nwant %q", got, want)
	}
	if exec.binary != "beet" {
		t.Fatalf("unexpected binary %q", exec.binary)
	}
	if result.Skipped() {
		t.Fatal("clean exit without marker should not be a skip")
	}
}

func TestImportOmitsConfigFlagWhenUnset(t *testing.T) {
	cfg := beetsConfig()
	cfg.ConfigPath = ""
	cfg.Autotag = true
	cfg.Move = false
	exec := &stubExecutor{}
	client, err := beets.New(cfg, beets.WithExecutor(exec))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if _, err := client.Import(context.Background(), "/downloads/Album"); err != nil {
		t.Fatalf("Import returned error: %v", err)
	}
	if got := strings.Join(exec.args, " "); got != "import -q /downloads/Album" {
		t.Fatalf("unexpected args %q", got)
	}
}

func TestImportSkipMarkerCountsAsSuccess(t *testing.T) {
	cases := map[string]beets.Output{
		"stdout marker": {ExitCode: 1, Stdout: "Skipping /downloads/Album (already imported)"},
		"stderr marker": {ExitCode: 1, Stderr: "tagging: does not match any release"},
	}
	for name, out := range cases {
		t.Run(name, func(t *testing.T) {
			client := newClient(t, &stubExecutor{out: out})
			result, err := client.Import(context.Background(), "/downloads/Album")
			if err != nil {
				t.Fatalf("expected success, got %v", err)
			}
			if !result.Skipped() {
				t.Fatal("expected skip to be recorded")
			}
			if result.ExitCode != 1 {
				t.Fatalf("expected exit code preserved, got %d", result.ExitCode)
			}
		})
	}
}

func TestImportNonZeroExitFails(t *testing.T) {
	client := newClient(t, &stubExecutor{out: beets.Output{ExitCode: 2, Stderr: "database locked"}})
	result, err := client.Import(context.Background(), "/downloads/Album")
	if err == nil {
		t.Fatal("expected failure for exit 2")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool marker, got %v", err)
	}
	if result.Stderr != "database locked" {
		t.Fatalf("expected stderr captured, got %q", result.Stderr)
	}
}

func TestImportLaunchErrorFails(t *testing.T) {
	client := newClient(t, &stubExecutor{err: errors.New("exec: \"beet\": executable file not found in $PATH")})
	_, err := client.Import(context.Background(), "/downloads/Album")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool marker, got %v", err)
	}
}

func TestImportTimeout(t *testing.T) {
	exec := &stubExecutor{block: true}
	client := newClient(t, exec, beets.WithTimeout(20*time.Millisecond))
	_, err := client.Import(context.Background(), "/downloads/Album")
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout marker, got %v", err)
	}
}

func TestImportCancelledIsNotTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := newClient(t, &stubExecutor{block: true})
	_, err := client.Import(ctx, "/downloads/Album")
	if err == nil || errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected cancellation error, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled in chain, got %v", err)
	}
}

func TestImportRejectsEmptyDirectory(t *testing.T) {
	exec := &stubExecutor{}
	client := newClient(t, exec)
	if _, err := client.Import(context.Background(), "  "); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if exec.calls != 0 {
		t.Fatal("executor should not run for an empty directory")
	}
}

func TestCommandExecutorCapturesStreamsAndExitCode(t *testing.T) {
	script := filepath.Join(t.TempDir(), "beet")
	body := "#!/bin/sh\necho \"importing $*\"\necho \"Skipping album\" >&2\nexit 3\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	cfg := beetsConfig()
	cfg.Binary = script
	client, err := beets.New(cfg)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	result, err := client.Import(context.Background(), "/downloads/Album")
	if err != nil {
		t.Fatalf("expected skip marker success, got %v", err)
	}
	if result.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %d", result.ExitCode)
	}
	if !strings.Contains(result.Stdout, "importing -c") {
		t.Fatalf("unexpected stdout %q", result.Stdout)
	}
	if result.Marker != "Skipping" {
		t.Fatalf("expected Skipping marker, got %q", result.Marker)
	}
}

func TestNewRequiresBinary(t *testing.T) {
	cfg := beetsConfig()
	cfg.Binary = " "
	if _, err := beets.New(cfg); err == nil {
		t.Fatal("expected error for empty binary")
	}
}
