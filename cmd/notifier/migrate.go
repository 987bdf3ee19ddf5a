package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			// app.New migrates on open.
			a, logger, err := bootstrap(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer a.Close()
			fmt.Printf("schema up to date (%s)\n", a.DB.Dialect)
			return nil
		},
	}
}
