package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/touchlinehq/touchline/db"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := dbConfigFromViper()
			cfg.AutoMigrate = true
			if _, err := db.Open(cfg); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}
