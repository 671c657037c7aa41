package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rentalytics/rei-gateway/internal/config"
	"github.com/rentalytics/rei-gateway/internal/db"
	"github.com/spf13/cobra"
)

var migrateClickHouse bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations (dev: DROP & CREATE tables)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		if migrateClickHouse {
			return migrateCH(cfg)
		}
		return migrateMySQL(cfg)
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateClickHouse, "clickhouse", false, "apply the ClickHouse audit schema instead of MySQL")
}

func migrateMySQL(cfg config.Config) error {
	sqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
		MaxOpenConns:    cfg.MySQL.MaxOpenConns,
		MaxIdleConns:    cfg.MySQL.MaxIdleConns,
		ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
		PingTimeout:     cfg.MySQL.PingTimeout,
	})
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer sqlDB.Close()

	sqlPath := filepath.Join("migrations", "001_init.sql")
	sqlBytes, err := os.ReadFile(sqlPath)
	if err != nil {
		return fmt.Errorf("read migration file %s: %w", sqlPath, err)
	}

	if _, err := sqlDB.Exec("SET FOREIGN_KEY_CHECKS = 0"); err != nil {
		return fmt.Errorf("disable fk checks: %w", err)
	}
	if _, err := sqlDB.Exec(string(sqlBytes)); err != nil {
		_, _ = sqlDB.Exec("SET FOREIGN_KEY_CHECKS = 1")
		return fmt.Errorf("exec migration: %w", err)
	}
	if _, err := sqlDB.Exec("SET FOREIGN_KEY_CHECKS = 1"); err != nil {
		return fmt.Errorf("enable fk checks: %w", err)
	}

	fmt.Println(">> MySQL migration complete")
	return nil
}

func migrateCH(cfg config.Config) error {
	chDB, err := db.NewClickHouseConnection(db.ClickHouseOpts{
		DSN:             cfg.ClickHouse.DSN,
		MaxOpenConns:    cfg.ClickHouse.MaxOpenConns,
		MaxIdleConns:    cfg.ClickHouse.MaxIdleConns,
		ConnMaxLifetime: cfg.ClickHouse.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ClickHouse.ConnMaxIdleTime,
		PingTimeout:     cfg.ClickHouse.PingTimeout,
	})
	if err != nil {
		return fmt.Errorf("clickhouse connect: %w", err)
	}
	defer chDB.Close()

	sqlPath := filepath.Join("migrations", "002_clickhouse.sql")
	sqlBytes, err := os.ReadFile(sqlPath)
	if err != nil {
		return fmt.Errorf("read migration file %s: %w", sqlPath, err)
	}

	// ClickHouse rejects multi-statement exec; run statements one by one.
	for _, stmt := range splitStatements(string(sqlBytes)) {
		if _, err := chDB.Exec(stmt); err != nil {
			return fmt.Errorf("exec clickhouse migration: %w", err)
		}
	}

	fmt.Println(">> ClickHouse migration complete")
	return nil
}

func splitStatements(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
