package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	"github.com/rentalytics/rei-gateway/internal/model"
)

// ReportsRepository defines persistence for the rental_reports table.
// report_id is the primary key; ownership and shareability checks happen in
// the service layer against the fetched row.
type ReportsRepository interface {
	Get(ctx context.Context, tx *sqlx.Tx, reportID string) (*model.RentalReport, error)
	Insert(ctx context.Context, tx *sqlx.Tx, report model.RentalReport) error
	UpdateData(ctx context.Context, tx *sqlx.Tx, reportID string, data json.RawMessage) error
	SetSharability(ctx context.Context, tx *sqlx.Tx, reportID string, sharable bool) error
	Delete(ctx context.Context, tx *sqlx.Tx, reportID string) error
}

type ReportsRepositoryImpl struct {
	db *sqlx.DB
}

func NewReportsRepository(db *sqlx.DB) *ReportsRepositoryImpl {
	return &ReportsRepositoryImpl{db: db}
}

var _ ReportsRepository = (*ReportsRepositoryImpl)(nil)

func (r *ReportsRepositoryImpl) ext(tx *sqlx.Tx) sqlx.ExtContext {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *ReportsRepositoryImpl) Get(ctx context.Context, tx *sqlx.Tx, reportID string) (*model.RentalReport, error) {
	var rep model.RentalReport
	err := sqlx.GetContext(ctx, r.ext(tx), &rep, `
		SELECT report_id, user_id, report_data, is_sharable, created_at, updated_at
		  FROM rental_reports
		 WHERE report_id = ? LIMIT 1
	`, reportID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rep, nil
}

func (r *ReportsRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, report model.RentalReport) error {
	_, err := r.ext(tx).ExecContext(ctx, `
		INSERT INTO rental_reports
		    (report_id, user_id, report_data, is_sharable, created_at, updated_at)
		VALUES
		    (?, ?, ?, ?, NOW(), NOW())
	`, report.ReportID, report.UserID, report.ReportData, report.IsSharable)
	return err
}

func (r *ReportsRepositoryImpl) UpdateData(ctx context.Context, tx *sqlx.Tx, reportID string, data json.RawMessage) error {
	_, err := r.ext(tx).ExecContext(ctx, `
		UPDATE rental_reports
		   SET report_data = ?, updated_at = NOW()
		 WHERE report_id = ?
	`, data, reportID)
	return err
}

func (r *ReportsRepositoryImpl) SetSharability(ctx context.Context, tx *sqlx.Tx, reportID string, sharable bool) error {
	_, err := r.ext(tx).ExecContext(ctx, `
		UPDATE rental_reports
		   SET is_sharable = ?, updated_at = NOW()
		 WHERE report_id = ?
	`, sharable, reportID)
	return err
}

func (r *ReportsRepositoryImpl) Delete(ctx context.Context, tx *sqlx.Tx, reportID string) error {
	_, err := r.ext(tx).ExecContext(ctx, `
		DELETE FROM rental_reports WHERE report_id = ?
	`, reportID)
	return err
}
