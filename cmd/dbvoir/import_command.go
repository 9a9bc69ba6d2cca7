package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"dbvoir/internal/api"
	"dbvoir/internal/completion"
	"dbvoir/internal/config"
	"dbvoir/internal/dispatch"
	"dbvoir/internal/notifications"
	"dbvoir/internal/services"
	"dbvoir/internal/services/beets"
	"dbvoir/internal/services/jellyfin"
)

func newImportCommand(ctx *commandContext) *cobra.Command {
	var local bool
	cmd := &cobra.Command{
		Use:   "import <path>",
		Short: "Import a file or album directory now, skipping the quiet period",
		Long: "Queue a file or directory on the running watcher. With --local, or when no\n" +
			"watcher is reachable, the import runs in this process and waits for beets.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			if abs, absErr := filepath.Abs(path); absErr == nil {
				path = abs
			}
			out := cmd.OutOrStdout()

			if !local {
				reached, err := ctx.viaDaemon(func(client *api.Client) error {
					resp, err := client.Import(cmd.Context(), path)
					if err != nil {
						return err
					}
					if resp.Queued {
						fmt.Fprintf(out, "Queued %s\n", resp.Path)
					} else {
						fmt.Fprintf(out, "Already queued: %s\n", resp.Path)
					}
					return nil
				})
				if reached || err != nil {
					return err
				}
			}
			return importLocally(cmd.Context(), cfg, path, out)
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "Run the import in this process instead of on the daemon")
	return cmd
}

func importLocally(ctx context.Context, cfg *config.Config, path string, out io.Writer) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", path, err)
	}
	filter := completion.NewExtensionFilter(cfg.Watch.Extensions)
	if !info.IsDir() && !filter.Allowed(path) {
		return fmt.Errorf("%s: unsupported extension %q", path, filepath.Ext(path))
	}

	session, err := openLocal(ctx, cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	importer, err := beets.New(cfg.Beets)
	if err != nil {
		return err
	}
	dispatcher := dispatch.New(afero.NewOsFs(), importer, session.record,
		jellyfin.NewConfiguredService(cfg, session.logger), notifications.NewService(cfg), session.logger)

	ctx = services.WithTrigger(ctx, "cli")
	var outcome dispatch.Outcome
	if info.IsDir() {
		outcome, err = dispatcher.DispatchDirectory(ctx, path, filter.Allowed)
	} else {
		outcome, err = dispatcher.Dispatch(ctx, path)
	}
	fmt.Fprintf(out, "%s: %s\n", path, outcome)
	if err != nil {
		return err
	}
	if !outcome.Succeeded() {
		return errors.New("import did not complete")
	}
	return nil
}
