package reports

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rentalytics/rei-gateway/internal/logger"
	"github.com/rentalytics/rei-gateway/internal/metrics"
	"github.com/rentalytics/rei-gateway/internal/model"
	"github.com/rentalytics/rei-gateway/internal/repository"
	"github.com/rentalytics/rei-gateway/internal/util"
	"go.uber.org/zap"
)

const ReportEventsKafkaTopic = "usage.events"

var (
	ErrNotFound      = errors.New("report not found")
	ErrAccessDenied  = errors.New("access denied")
	ErrNoFreeReports = errors.New("no free reports left")
	ErrUserNotFound  = errors.New("user not found")
)

// Service owns rental report CRUD and the free-report allowance.
//
// Only creating a new report consumes the allowance, and only for metered
// (free tier) users. Updating an existing report never does. The decrement
// and the insert commit in one transaction, so a failed insert gives the
// slot back.
type Service struct {
	db      *sqlx.DB
	reports repository.ReportsRepository
	configs repository.UserConfigsRepository
	outbox  repository.OutboxRepository
}

func New(
	db *sqlx.DB,
	reportsRepo repository.ReportsRepository,
	configsRepo repository.UserConfigsRepository,
	outboxRepo repository.OutboxRepository,
) *Service {
	return &Service{
		db:      db,
		reports: reportsRepo,
		configs: configsRepo,
		outbox:  outboxRepo,
	}
}

func (s *Service) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	if s.db == nil {
		return fn(nil)
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Save upserts a report. An existing report id updates the stored data after
// an ownership check and never touches the allowance. A new id creates the
// report; for metered users that conditionally consumes one free report in
// the same transaction as the insert.
func (s *Service) Save(ctx context.Context, userID, reportID string, data json.RawMessage) (*model.RentalReport, error) {
	existing, err := s.reports.Get(ctx, nil, reportID)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		if existing.UserID != userID {
			return nil, ErrAccessDenied
		}
		if err := s.reports.UpdateData(ctx, nil, reportID, data); err != nil {
			return nil, err
		}
		existing.ReportData = data
		return existing, nil
	}

	cfg, err := s.configs.Get(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrUserNotFound
	}

	report := model.RentalReport{
		ReportID:   reportID,
		UserID:     userID,
		ReportData: data,
		IsSharable: false,
	}

	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		if cfg.Status.Metered() {
			ok, err := s.configs.DecrementFreeReports(ctx, tx, userID)
			if err != nil {
				return err
			}
			if !ok {
				return ErrNoFreeReports
			}
		}
		if err := s.reports.Insert(ctx, tx, report); err != nil {
			return err
		}
		return s.emitReportCreated(ctx, tx, userID, reportID)
	})
	if err != nil {
		return nil, err
	}

	metrics.ReportsCreatedTotal.WithLabelValues(cfg.Status.String()).Inc()
	return &report, nil
}

// Get returns a report readable by the caller: the owner always, anyone else
// only when the report is marked sharable.
func (s *Service) Get(ctx context.Context, userID, reportID string) (*model.RentalReport, error) {
	report, err := s.reports.Get(ctx, nil, reportID)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, ErrNotFound
	}
	if report.UserID != userID && !report.IsSharable {
		return nil, ErrAccessDenied
	}
	return report, nil
}

// Delete removes the caller's report. Deleting never refunds a free report.
func (s *Service) Delete(ctx context.Context, userID, reportID string) error {
	report, err := s.reports.Get(ctx, nil, reportID)
	if err != nil {
		return err
	}
	if report == nil {
		return ErrNotFound
	}
	if report.UserID != userID {
		return ErrAccessDenied
	}
	return s.reports.Delete(ctx, nil, reportID)
}

// ChangeSharability flips the sharable flag; owner only.
func (s *Service) ChangeSharability(ctx context.Context, userID, reportID string, sharable bool) (*model.RentalReport, error) {
	report, err := s.reports.Get(ctx, nil, reportID)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, ErrNotFound
	}
	if report.UserID != userID {
		return nil, ErrAccessDenied
	}
	if err := s.reports.SetSharability(ctx, nil, reportID, sharable); err != nil {
		return nil, err
	}
	report.IsSharable = sharable
	return report, nil
}

func (s *Service) emitReportCreated(ctx context.Context, tx *sqlx.Tx, userID, reportID string) error {
	ev := model.AuditEvent{
		ID:        util.New(),
		Kind:      model.AuditReportCreated,
		UserID:    userID,
		Subject:   reportID,
		Detail:    `{}`,
		CreatedAt: time.Now(),
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		logger.Log.Warn("marshal audit event failed", zap.Error(err))
		return nil
	}
	return s.outbox.Insert(ctx, tx, "rental_report", reportID, ReportEventsKafkaTopic, payload)
}
