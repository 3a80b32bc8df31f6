package cmd

import (
	"poll-decision-backend/database"
	"poll-decision-backend/migrations"

	"github.com/spf13/cobra"
)

var seed bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "create or update the database schema",
	RunE:  migrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().BoolVar(&seed, "seed", false,
		"insert demo users and a group into an empty development database")
}

func migrate(cmd *cobra.Command, args []string) error {
	db, err := database.Open(cfg.DB, cfg.App.LogLevel, log)
	if err != nil {
		return err
	}
	defer database.Close(db, log)

	if err := migrations.Run(db, log); err != nil {
		return err
	}
	if seed && cfg.App.IsDevEnvironment() {
		return database.SeedDevelopment(cmd.Context(), db, log)
	}
	return nil
}
