package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zfogg/sparkfeed/internal/database"
	"github.com/zfogg/sparkfeed/internal/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.Open(cfg.Database)
		if err != nil {
			return err
		}
		defer database.Close(db)

		if err := database.Migrate(db); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Log.Info("Migrations complete")
		fmt.Println("Migrations complete")
		return nil
	},
}
