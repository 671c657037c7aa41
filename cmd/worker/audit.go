package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rentalytics/rei-gateway/internal/config"
	"github.com/rentalytics/rei-gateway/internal/db"
	"github.com/rentalytics/rei-gateway/internal/kafka"
	"github.com/rentalytics/rei-gateway/internal/repository"
	"github.com/rentalytics/rei-gateway/internal/service/billing"
	"github.com/rentalytics/rei-gateway/internal/service/gateway"
	"github.com/rentalytics/rei-gateway/internal/worker"
	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Start audit worker (billing | usage)",
}

var auditBillingCmd = &cobra.Command{
	Use:   "billing",
	Short: "Drain billing events into the audit trail",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAudit(cmd, billing.BillingEventsKafkaTopic)
	},
}

var auditUsageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Drain usage events into the audit trail",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAudit(cmd, gateway.UsageEventsKafkaTopic)
	},
}

func init() {
	auditCmd.AddCommand(auditBillingCmd)
	auditCmd.AddCommand(auditUsageCmd)
}

func runAudit(cmd *cobra.Command, topic string) error {
	// 1) load config
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2) ClickHouse connection
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

	auditRepo := repository.NewAuditEventsRepository(chDB)

	// 3) kafka consumer (topic-bound worker)
	groupID := cfg.Kafka.GroupID
	if groupID == "" {
		groupID = "reigw-audit"
	}
	groupID = groupID + "-" + topic

	consumer := kafka.NewConsumerFromConfig(kafka.Config{
		Brokers:        cfg.Kafka.Brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       cfg.Kafka.MinBytes,
		MaxBytes:       cfg.Kafka.MaxBytes,
		CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
	})
	defer consumer.Close()

	w := worker.NewAuditKafka(consumer, auditRepo)

	// tune knobs
	if cfg.Audit.BatchSize > 0 {
		w.BatchSize = cfg.Audit.BatchSize
	}
	if cfg.Audit.BatchWait > 0 {
		w.BatchWait = cfg.Audit.BatchWait
	}

	// 4) graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf(">> audit worker started topic=%s group=%s batchSize=%d batchWait=%s",
		topic, groupID, w.BatchSize, w.BatchWait)

	return w.Run(ctx)
}
