package worker

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/rentalytics/rei-gateway/internal/kafka"
	"github.com/rentalytics/rei-gateway/internal/model"
	"github.com/rentalytics/rei-gateway/internal/repository"
)

// AuditKafka drains one audit topic (billing or usage events, published from
// the MySQL outbox) into the ClickHouse read model with size/time batching.
// Consumption is at-least-once; duplicate rows are tolerated because the
// trail is append-only and events carry unique ids.
type AuditKafka struct {
	Consumer *kafka.Consumer
	Audit    repository.AuditEventsRepository

	BatchSize int           // max buffered events per flush
	BatchWait time.Duration // max time to wait before flush
}

func NewAuditKafka(consumer *kafka.Consumer, auditRepo repository.AuditEventsRepository) *AuditKafka {
	return &AuditKafka{
		Consumer:  consumer,
		Audit:     auditRepo,
		BatchSize: 200,
		BatchWait: 300 * time.Millisecond,
	}
}

// Run starts the worker and blocks until ctx is cancelled.
func (w *AuditKafka) Run(ctx context.Context) error {
	if w.BatchSize <= 0 {
		w.BatchSize = 200
	}
	if w.BatchWait <= 0 {
		w.BatchWait = 300 * time.Millisecond
	}

	tick := time.NewTicker(w.BatchWait)
	defer tick.Stop()

	batch := make([]model.AuditEvent, 0, w.BatchSize)
	pending := make([]kafka.Message, 0, w.BatchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}

		fctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := w.Audit.InsertBatch(fctx, batch); err != nil {
			// Offsets stay uncommitted; the batch is redelivered after restart.
			log.Printf("[audit] clickhouse insert failed (%d events): %v", len(batch), err)
			return
		}
		for _, m := range pending {
			if err := w.Consumer.Commit(fctx, m); err != nil {
				log.Printf("[audit] commit err: %v", err)
			}
		}
		batch = batch[:0]
		pending = pending[:0]
	}

	msgCh := make(chan kafka.Message)
	go func() {
		defer close(msgCh)
		for {
			m, err := w.Consumer.Fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("[audit] kafka fetch err: %v", err)
				time.Sleep(200 * time.Millisecond)
				continue
			}
			select {
			case msgCh <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			flush()
			return nil
		case <-tick.C:
			flush()
		case m, ok := <-msgCh:
			if !ok {
				flush()
				return nil
			}

			var ev model.AuditEvent
			if err := json.Unmarshal(m.Value, &ev); err != nil || ev.ID == "" {
				// poison message: commit and skip
				if err := w.Consumer.Commit(ctx, m); err != nil {
					log.Printf("[audit] commit err: %v", err)
				}
				log.Printf("[audit] bad event json on %s@%d", m.Topic, m.Offset)
				continue
			}

			batch = append(batch, ev)
			pending = append(pending, m)
			if len(batch) >= w.BatchSize {
				flush()
			}
		}
	}
}
