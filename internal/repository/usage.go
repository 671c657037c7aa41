package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/rentalytics/rei-gateway/internal/model"
)

// UsageRepository meters calls against an upstream API. Reserve is the only
// way Count grows; it is a single conditional UPDATE so two concurrent
// reservations can never both pass the ceiling check.
type UsageRepository interface {
	// Reserve increments the counter iff the result stays within ceiling.
	// Returns false (and no error) when the ceiling has been reached.
	Reserve(ctx context.Context, apiName string, ceiling int) (bool, error)
	Current(ctx context.Context, apiName string) (*model.APIUsage, error)
	Reset(ctx context.Context, apiName string) error
}

type UsageRepositoryImpl struct {
	db *sqlx.DB
}

func NewUsageRepository(db *sqlx.DB) *UsageRepositoryImpl {
	return &UsageRepositoryImpl{db: db}
}

var _ UsageRepository = (*UsageRepositoryImpl)(nil)

// ensureRow creates the counter at 0 on first use (idempotent).
func (r *UsageRepositoryImpl) ensureRow(ctx context.Context, apiName string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO api_usage (api_name, count, updated_at)
		VALUES (?, 0, NOW())
		ON DUPLICATE KEY UPDATE api_name = api_name
	`, apiName)
	return err
}

func (r *UsageRepositoryImpl) Reserve(ctx context.Context, apiName string, ceiling int) (bool, error) {
	if err := r.ensureRow(ctx, apiName); err != nil {
		return false, err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE api_usage
		   SET count = count + 1, updated_at = NOW()
		 WHERE api_name = ? AND count < ?
	`, apiName, ceiling)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *UsageRepositoryImpl) Current(ctx context.Context, apiName string) (*model.APIUsage, error) {
	var usage model.APIUsage
	err := r.db.GetContext(ctx, &usage, `
		SELECT api_name, count, updated_at FROM api_usage WHERE api_name = ? LIMIT 1
	`, apiName)
	if err == sql.ErrNoRows {
		return &model.APIUsage{APIName: apiName}, nil
	}
	if err != nil {
		return nil, err
	}
	return &usage, nil
}

// Reset zeroes the counter; invoked by the scheduled monthly trigger.
func (r *UsageRepositoryImpl) Reset(ctx context.Context, apiName string) error {
	if err := r.ensureRow(ctx, apiName); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE api_usage SET count = 0, updated_at = NOW() WHERE api_name = ?
	`, apiName)
	return err
}
