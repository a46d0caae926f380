package main

import (
	"fmt"

	"github.com/neo/battlearena/internal/database"
	"github.com/neo/battlearena/internal/logging"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig("migrate")
		if err != nil {
			return err
		}

		db, err := database.New(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer db.Close()

		applied, err := db.AppliedMigrations()
		if err != nil {
			return err
		}
		for _, m := range applied {
			fmt.Printf("%03d  %-32s %s\n", m.ID, m.Name, m.AppliedAt.Format("2006-01-02 15:04:05"))
		}
		logging.Info("Database migrations completed successfully", map[string]interface{}{
			"applied": len(applied),
		})
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
