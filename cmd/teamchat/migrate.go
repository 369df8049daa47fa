package main

import (
	"github.com/spf13/cobra"

	"github.com/yungbote/teamchat-backend/internal/app"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			dbService, err := app.OpenDB(log, cfg)
			if err != nil {
				return err
			}
			defer dbService.Close()
			log.Info("Migrations applied", "driver", dbService.Driver())
			return nil
		},
	}
}
