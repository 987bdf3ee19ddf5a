package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iliyamo/rice-reservation/internal/utils"
)

func hashAdminKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-admin-key [key]",
		Short: "Print the bcrypt hash to store in ADMIN_KEY_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := utils.HashAdminKey(args[0])
			if err != nil {
				return err
			}
			fmt.Println(hash)
			return nil
		},
	}
}
