package beets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"dbvoir/internal/config"
	"dbvoir/internal/services"
)

// Result captures one beets import run.
type Result struct {
	Dir      string
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
	// Marker is the skip marker that matched, if any.
	Marker   string
	Duration time.Duration
}

// Skipped reports whether beets declined to import the directory (already in
// the library or no match) but the run still counts as handled.
func (r Result) Skipped() bool {
	return r.Marker != ""
}

// Importer defines the behaviour required by the import dispatcher.
type Importer interface {
	Import(ctx context.Context, dir string) (Result, error)
}

// Output is the raw result of a finished process.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Executor abstracts command execution for testability. A process that ran
// and exited non-zero returns its Output with a nil error; the error is
// reserved for launch failures and cancellation.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) (Output, error)
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithTimeout overrides the per-import timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// Client wraps beets CLI interactions.
type Client struct {
	binary      string
	configPath  string
	timeout     time.Duration
	move        bool
	autotag     bool
	quiet       bool
	skipMarkers []string
	exec        Executor
}

// New constructs a beets client from the [beets] config section.
func New(cfg config.Beets, opts ...Option) (*Client, error) {
	binary := strings.TrimSpace(cfg.Binary)
	if binary == "" {
		return nil, errors.New("beets binary required")
	}
	client := &Client{
		binary:      binary,
		configPath:  strings.TrimSpace(cfg.ConfigPath),
		timeout:     time.Duration(cfg.TimeoutSeconds) * time.Second,
		move:        cfg.Move,
		autotag:     cfg.Autotag,
		quiet:       cfg.Quiet,
		skipMarkers: append([]string(nil), cfg.SkipMarkers...),
		exec:        commandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Args returns the argument vector used to import dir.
func (c *Client) Args(dir string) []string {
	args := make([]string, 0, 8)
	if c.configPath != "" {
		args = append(args, "-c", c.configPath)
	}
	args = append(args, "import")
	if c.quiet {
		args = append(args, "-q")
	}
	if !c.autotag {
		args = append(args, "--noautotag")
	}
	if c.move {
		args = append(args, "--move")
	}
	return append(args, dir)
}

// Import runs `beet import` on dir and classifies the outcome. Failures are
// tagged with services.ErrTimeout or services.ErrExternalTool; the Result is
// populated as far as the run got in both cases.
func (c *Client) Import(ctx context.Context, dir string) (Result, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return Result{}, services.Wrap(services.ErrValidation, "beets", "import", "directory required", nil)
	}

	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := c.Args(dir)
	result := Result{Dir: dir, Args: args}
	started := time.Now()
	out, err := c.exec.Run(runCtx, c.binary, args)
	result.Duration = time.Since(started)
	result.Stdout = out.Stdout
	result.Stderr = out.Stderr
	result.ExitCode = out.ExitCode

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		return result, services.Wrap(services.ErrTimeout, "beets", "import",
			fmt.Sprintf("no result after %s", c.timeout), runCtx.Err())
	case ctx.Err() != nil:
		return result, services.Wrap(services.ErrTransient, "beets", "import", "cancelled", ctx.Err())
	case err != nil:
		return result, services.Wrap(services.ErrExternalTool, "beets", "import", "launch "+c.binary, err)
	}

	result.Marker = c.matchSkipMarker(out)
	if out.ExitCode == 0 || result.Marker != "" {
		return result, nil
	}
	return result, services.Wrap(services.ErrExternalTool, "beets", "import",
		fmt.Sprintf("exit status %d", out.ExitCode), nil)
}

func (c *Client) matchSkipMarker(out Output) string {
	for _, marker := range c.skipMarkers {
		if marker == "" {
			continue
		}
		if strings.Contains(out.Stdout, marker) || strings.Contains(out.Stderr, marker) {
			return marker
		}
	}
	return ""
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) (Output, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	cmd.WaitDelay = 5 * time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return out, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		out.ExitCode = -1
		return out, ctxErr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		out.ExitCode = exitErr.ExitCode()
		return out, nil
	}
	out.ExitCode = -1
	return out, err
}
