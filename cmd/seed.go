package cmd

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	"github.com/rentalytics/rei-gateway/internal/config"
	"github.com/rentalytics/rei-gateway/internal/db"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with demo user configs",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1) load config
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		// 2) connect MySQL
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

		log.Println(">> Seeding demo user configs...")

		if err := seedUserConfigs(sqlDB, cfg.Quota.FreeReports); err != nil {
			return err
		}
		if err := seedUsageCounter(sqlDB, cfg.Quota.APIName); err != nil {
			return err
		}

		log.Println(">> Seed completed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

type demoUser struct {
	userID string
	status string
	cycle  string
	subID  *string
}

// seedUserConfigs inserts deterministic demo users (idempotent).
func seedUserConfigs(dbx *sqlx.DB, freeReports int) error {
	users := []demoUser{
		{userID: "demo-free-1", status: "free", cycle: "monthly"},
		{userID: "demo-free-2", status: "free", cycle: "monthly"},
		{userID: "demo-pro-monthly", status: "pro", cycle: "monthly", subID: strptr("sub_demo_monthly")},
		{userID: "demo-pro-yearly", status: "pro", cycle: "yearly", subID: strptr("sub_demo_yearly")},
		{userID: "demo-admin", status: "admin", cycle: "monthly"},
	}

	// idempotent upsert based on user_id (PK)
	const q = `
INSERT INTO user_configs
    (user_id, status, billing_cycle, subscription_id, cancel_at_period_end, free_reports_available, preferences, created_at, updated_at)
VALUES
    (?, ?, ?, ?, 0, ?, '{}', NOW(), NOW())
ON DUPLICATE KEY UPDATE
    status        = VALUES(status),
    billing_cycle = VALUES(billing_cycle),
    updated_at    = VALUES(updated_at)
`
	tx, err := dbx.Beginx()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, u := range users {
		if _, err := tx.Exec(q, u.userID, u.status, u.cycle, u.subID, freeReports); err != nil {
			return fmt.Errorf("insert user %q: %w", u.userID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit users: %w", err)
	}
	return nil
}

// seedUsageCounter creates the api_usage row at 0 if absent.
func seedUsageCounter(dbx *sqlx.DB, apiName string) error {
	const q = `
INSERT INTO api_usage (api_name, count, updated_at)
VALUES (?, 0, NOW())
ON DUPLICATE KEY UPDATE api_name = api_name
`
	if _, err := dbx.Exec(q, apiName); err != nil {
		return fmt.Errorf("ensure usage counter: %w", err)
	}
	return nil
}

func strptr(s string) *string { return &s }
