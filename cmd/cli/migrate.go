package main

import (
	"github.com/spf13/cobra"

	"github.com/iho/gameledger/internal/infrastructure/postgres"
)

func (c *cli) migrateCmd() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database schema migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return postgres.RunMigrations(c.cfg.DatabaseURL, c.log)
		},
	}

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return postgres.RunMigrationsDown(c.cfg.DatabaseURL, c.log)
		},
	}

	migrateCmd.AddCommand(upCmd, downCmd)
	return migrateCmd
}
