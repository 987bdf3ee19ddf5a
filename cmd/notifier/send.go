package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

func sendCmd() *cobra.Command {
	var (
		limit  int
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send due notification jobs once and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, logger, err := bootstrap(cmd.Context(), dryRun)
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer a.Close()

			if limit <= 0 {
				limit = a.Cfg.DispatchLimit
			}
			res, err := a.Dispatcher.SendPendingJobs(cmd.Context(), limit, dryRun)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum jobs to process (default DISPATCH_LIMIT)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "render messages without pushing or updating jobs")
	return cmd
}
