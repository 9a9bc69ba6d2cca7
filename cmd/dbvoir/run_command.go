package main

import (
	"github.com/spf13/cobra"

	"dbvoir/internal/daemonrun"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "run",
		Aliases: []string{"daemon"},
		Short:   "Watch the download directory in the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{LogLevel: cfg.Logging.Level})
		},
	}
}
