package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"dbvoir/internal/api"
	"dbvoir/internal/config"
)

func newProcessedCommand(ctx *commandContext) *cobra.Command {
	processedCmd := &cobra.Command{
		Use:   "processed",
		Short: "Inspect and edit the record of imported files",
	}
	processedCmd.AddCommand(newProcessedListCommand(ctx))
	processedCmd.AddCommand(newProcessedForgetCommand(ctx))
	processedCmd.AddCommand(newProcessedPruneCommand(ctx))
	return processedCmd
}

func newProcessedListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recently processed files",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var resp api.ProcessedResponse
			reached, err := ctx.viaDaemon(func(client *api.Client) error {
				var callErr error
				resp, callErr = client.Processed(cmd.Context(), limit)
				return callErr
			})
			if err != nil {
				return err
			}
			if !reached {
				if resp, err = listLocal(cmd, cfg, limit); err != nil {
					return err
				}
			}

			if jsonOut {
				return writeJSON(cmd, resp)
			}
			out := cmd.OutOrStdout()
			if len(resp.Items) == 0 {
				fmt.Fprintln(out, "No processed files")
				return nil
			}
			rows := make([][]string, 0, len(resp.Items))
			for _, item := range resp.Items {
				rows = append(rows, []string{item.ProcessedAt, item.Path})
			}
			fmt.Fprintln(out, renderTable([]column{{title: "Processed"}, {title: "Path", path: true}}, rows))
			fmt.Fprintf(out, "%d of %d entries\n", len(resp.Items), resp.Total)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum entries to show (0 for all)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON")
	return cmd
}

func listLocal(cmd *cobra.Command, cfg *config.Config, limit int) (api.ProcessedResponse, error) {
	session, err := openLocal(cmd.Context(), cfg)
	if err != nil {
		return api.ProcessedResponse{}, err
	}
	defer session.Close()
	entries, err := session.record.List(cmd.Context(), limit)
	if err != nil {
		return api.ProcessedResponse{}, err
	}
	total, err := session.record.Len(cmd.Context())
	if err != nil {
		return api.ProcessedResponse{}, err
	}
	return api.ProcessedResponse{Items: api.FromEntries(entries), Total: total}, nil
}

func newProcessedForgetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "forget <path>",
		Short: "Remove a path so the watcher imports it again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			var removed bool
			reached, err := ctx.viaDaemon(func(client *api.Client) error {
				resp, callErr := client.Forget(cmd.Context(), path)
				removed = resp.Removed
				return callErr
			})
			if err != nil {
				return err
			}
			if !reached {
				session, err := openLocal(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				defer session.Close()
				if removed, err = session.record.Remove(cmd.Context(), path); err != nil {
					return err
				}
			}
			if !removed {
				return fmt.Errorf("%s is not in the processed record", path)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Forgot %s\n", path)
			return nil
		},
	}
}

func newProcessedPruneCommand(ctx *commandContext) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Drop entries processed more than --days ago",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if days < 0 {
				return errors.New("--days must be zero or positive")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var removed int64
			reached, err := ctx.viaDaemon(func(client *api.Client) error {
				resp, callErr := client.Prune(cmd.Context(), days)
				removed = resp.Removed
				return callErr
			})
			if err != nil {
				return err
			}
			if !reached {
				session, err := openLocal(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				defer session.Close()
				cutoff := time.Now().AddDate(0, 0, -days)
				if removed, err = session.record.Prune(cmd.Context(), cutoff); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s entries\n", strconv.FormatInt(removed, 10))
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "Keep entries newer than this many days")
	return cmd
}
