package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"dbvoir/internal/api"
	"dbvoir/internal/config"
	"dbvoir/internal/preflight"
)

type statusReport struct {
	ConfigPath string                 `json:"configPath"`
	Daemon     *api.DaemonStatus      `json:"daemon,omitempty"`
	Checks     []statusCheck          `json:"checks"`
	Deps       []api.DependencyStatus `json:"dependencies"`
}

type statusCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show watcher, dependency, and preflight status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			report := statusReport{
				ConfigPath: ctx.configPath,
				Deps:       api.FromDeps(preflight.CheckSystemDeps(cmd.Context(), cfg)),
			}
			for _, r := range preflight.RunAll(cmd.Context(), cfg) {
				report.Checks = append(report.Checks, statusCheck{Name: r.Name, Passed: r.Passed, Detail: r.Detail})
			}
			if _, err := ctx.viaDaemon(func(client *api.Client) error {
				status, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				report.Daemon = &status
				return nil
			}); err != nil {
				return wrapAPIError(err, cfg.Paths.APIBind)
			}

			if jsonOut {
				return writeJSON(cmd, report)
			}
			renderStatus(cmd.OutOrStdout(), cfg, report, shouldColorize(cmd.OutOrStdout()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON")
	return cmd
}

func renderStatus(out io.Writer, cfg *config.Config, report statusReport, colorize bool) {
	lines := renderSectionHeader("Watcher", colorize)
	if d := report.Daemon; d != nil {
		lines = append(lines,
			renderStatusLine("Daemon", statusOK, fmt.Sprintf("running (pid %d, %s)", d.PID, d.WatchMode), colorize),
			renderStatusLine("Watch dir", statusInfo, d.WatchDir, colorize),
			renderStatusLine("Events", statusInfo, strconv.FormatInt(d.EventsSeen, 10)+sinceLabel(d.LastEventAt), colorize),
			renderStatusLine("Pending", statusInfo, strconv.Itoa(d.PendingCount), colorize),
			renderStatusLine("Queue", statusInfo, queueLabel(d), colorize),
			renderStatusLine("Processed", statusInfo, fmt.Sprintf("%d (%s)", d.ProcessedCount, d.ProcessedStore), colorize),
		)
		if last := d.LastImport; last != nil {
			kind := statusOK
			msg := last.Outcome + " " + last.Path
			if last.Error != "" {
				kind = statusError
				msg += ": " + last.Error
			}
			lines = append(lines, renderStatusLine("Last import", kind, msg, colorize))
		}
		jf := "disabled"
		if d.JellyfinEnabled {
			jf = "enabled"
		}
		lines = append(lines, renderStatusLine("Jellyfin", statusInfo, jf, colorize))
	} else {
		lines = append(lines,
			renderStatusLine("Daemon", statusWarn, "not running", colorize),
			renderStatusLine("Watch dir", statusInfo, cfg.Paths.WatchDir, colorize),
		)
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Dependencies", colorize)...)
	for _, dep := range report.Deps {
		kind, msg := statusOK, dep.Command
		if !dep.Available {
			kind, msg = statusError, dep.Detail
			if dep.Optional {
				kind = statusWarn
			}
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, msg, colorize))
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Checks", colorize)...)
	for _, check := range report.Checks {
		kind := statusOK
		if !check.Passed {
			kind = statusError
		}
		lines = append(lines, renderStatusLine(check.Name, kind, check.Detail, colorize))
	}

	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
}

func queueLabel(d *api.DaemonStatus) string {
	label := strconv.Itoa(d.QueueDepth)
	if d.InFlight != "" {
		label += ", importing " + d.InFlight
	}
	return label
}

func sinceLabel(value string) string {
	t, err := api.ParseTime(value)
	if err != nil || t.IsZero() {
		return ""
	}
	return fmt.Sprintf(", last %s ago", time.Since(t).Round(time.Second))
}
