package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dbvoir/internal/api"
	"dbvoir/internal/logging"
	"dbvoir/internal/services/jellyfin"
)

func newRescanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rescan",
		Short: "Ask Jellyfin to refresh its library",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			reached, err := ctx.viaDaemon(func(client *api.Client) error {
				resp, err := client.Rescan(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(out, resp.Detail)
				return nil
			})
			if reached || err != nil {
				return err
			}

			logger, err := logging.NewFromConfig(cfg, "")
			if err != nil {
				return err
			}
			if err := jellyfin.NewConfiguredService(cfg, logger).Refresh(cmd.Context()); err != nil {
				return fmt.Errorf("jellyfin refresh: %w", err)
			}
			fmt.Fprintln(out, "library refresh requested")
			return nil
		},
	}
}
