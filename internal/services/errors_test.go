package services_test

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"syscall"
	"testing"

	"dbvoir/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "beets", "import", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"beets", "import", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestFailureKind(t *testing.T) {
	cases := map[string]error{
		"":              nil,
		"timeout":       services.Wrap(services.ErrTimeout, "beets", "import", "timed out", nil),
		"validation":    services.Wrap(services.ErrValidation, "api", "import", "bad path", nil),
		"configuration": services.Wrap(services.ErrConfiguration, "jellyfin", "refresh", "no key", nil),
		"not_found":     services.Wrap(services.ErrNotFound, "beets", "import", "missing dir", nil),
		"external_tool": services.Wrap(services.ErrExternalTool, "beets", "import", "exit 1", nil),
		"transient":     errors.New("io"),
	}
	for want, err := range cases {
		if got := services.FailureKind(err); got != want {
			t.Fatalf("FailureKind(%v) = %q, want %q", err, got, want)
		}
	}
	if got := services.FailureKind(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)); got != "timeout" {
		t.Fatalf("expected deadline to classify as timeout, got %q", got)
	}
}

func TestIsTransientFS(t *testing.T) {
	if services.IsTransientFS(nil) {
		t.Fatal("nil should not be transient")
	}
	if services.IsTransientFS(&fs.PathError{Op: "stat", Path: "/x", Err: fs.ErrNotExist}) {
		t.Fatal("missing file is not transient")
	}
	if !services.IsTransientFS(&fs.PathError{Op: "stat", Path: "/x", Err: syscall.EACCES}) {
		t.Fatal("expected permission denied to be transient")
	}
	if !services.IsTransientFS(&fs.PathError{Op: "stat", Path: "/x", Err: syscall.EBUSY}) {
		t.Fatal("expected EBUSY to be transient")
	}
	if services.IsTransientFS(errors.New("disk on fire")) {
		t.Fatal("unexpected transient classification")
	}
}
