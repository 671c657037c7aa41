package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/rentalytics/rei-gateway/internal/config"
	"github.com/rentalytics/rei-gateway/internal/db"
	"github.com/rentalytics/rei-gateway/internal/repository"
	"github.com/spf13/cobra"
)

// reset-usage is the CLI twin of POST /v1/admin/reset-usage, meant to be
// wired to a monthly scheduler (cron) next to the server.
var resetUsageCmd = &cobra.Command{
	Use:   "reset-usage",
	Short: "Reset the monthly upstream API usage counter",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		sqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		usageRepo := repository.NewUsageRepository(sqlDB)
		if err := usageRepo.Reset(ctx, cfg.Quota.APIName); err != nil {
			return fmt.Errorf("reset usage: %w", err)
		}

		log.Printf(">> usage counter reset api=%s", cfg.Quota.APIName)
		return nil
	},
}
