package main

import (
	"github.com/spf13/cobra"

	"github.com/useembed/useembed/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down]",
	Short:     "Apply or roll back the database schema",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"up", "down"},
	RunE:      runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadCommandConfig()
	if err != nil {
		return err
	}
	direction := "up"
	if len(args) == 1 {
		direction = args[0]
	}
	return db.Migrate(log, cfg.Postgres, direction)
}
