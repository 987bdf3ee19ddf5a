package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func retryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry [job-id]",
		Short: "Reset a failed notification job to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, logger, err := bootstrap(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer a.Close()

			job, err := a.Dispatcher.Retry(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("job %s is %s (attempts %d)\n", job.ID, job.Status, job.AttemptCount)
			return nil
		},
	}
}
