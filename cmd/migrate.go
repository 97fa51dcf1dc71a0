package main

import (
	"github.com/spf13/cobra"

	"github.com/yungbote/readsession-backend/internal/app"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := app.NewLogger()
		if err != nil {
			return err
		}
		defer log.Sync()

		cfg := app.LoadConfig(log)
		dbs, err := app.OpenDB(log, cfg)
		if err != nil {
			log.Error("Migration failed", "error", err)
			return err
		}
		log.Info("Migration complete", "driver", cfg.DB.Driver)
		return dbs.Close()
	},
}
