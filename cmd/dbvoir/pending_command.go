package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"dbvoir/internal/api"
)

func newPendingCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List files waiting for their quiet period",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var resp api.PendingResponse
			reached, err := ctx.viaDaemon(func(client *api.Client) error {
				resp, err = client.Pending(cmd.Context())
				return err
			})
			if err != nil {
				return wrapAPIError(err, cfg.Paths.APIBind)
			}
			if !reached {
				return wrapAPIError(api.ErrAPIUnavailable, cfg.Paths.APIBind)
			}
			if jsonOut {
				return writeJSON(cmd, resp)
			}
			if len(resp.Items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No pending files")
				return nil
			}
			rows := make([][]string, 0, len(resp.Items))
			for _, item := range resp.Items {
				waited := ""
				if t, err := api.ParseTime(item.FirstSeen); err == nil && !t.IsZero() {
					waited = time.Since(t).Round(time.Second).String()
				}
				rows = append(rows, []string{item.Path, item.FirstSeen, waited})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]column{{title: "Path", path: true}, {title: "First seen"}, {title: "Waiting", right: true}}, rows))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON")
	return cmd
}
