package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/rentalytics/rei-gateway/internal/model"
)

// UserConfigsRepository persists per-user billing/entitlement records.
//
// Subscription transitions are expressed as narrow column-level updates rather
// than whole-row writes: each transition touches only the fields it owns, so
// interleaved webhook deliveries cannot clobber unrelated fields (preferences
// in particular). The bool results report whether a row matched, which the
// service layer uses to distinguish "user absent" from success.
type UserConfigsRepository interface {
	Get(ctx context.Context, tx *sqlx.Tx, userID string) (*model.UserConfig, error)
	Create(ctx context.Context, tx *sqlx.Tx, cfg model.UserConfig) error

	ActivateSubscription(ctx context.Context, tx *sqlx.Tx, userID, subscriptionID string, cycle model.BillingCycle) (bool, error)
	MirrorPeriod(ctx context.Context, tx *sqlx.Tx, userID string, periodEnd *int64, cancelAtPeriodEnd bool) (bool, error)
	Deactivate(ctx context.Context, tx *sqlx.Tx, userID string) (bool, error)
	SetBillingCycle(ctx context.Context, tx *sqlx.Tx, userID string, cycle model.BillingCycle) (bool, error)

	// DecrementFreeReports applies a conditional decrement (only if > 0) in a
	// single statement, closing the race between concurrent report creations.
	DecrementFreeReports(ctx context.Context, tx *sqlx.Tx, userID string) (bool, error)
}

type UserConfigsRepositoryImpl struct {
	db *sqlx.DB
}

func NewUserConfigsRepository(db *sqlx.DB) *UserConfigsRepositoryImpl {
	return &UserConfigsRepositoryImpl{db: db}
}

var _ UserConfigsRepository = (*UserConfigsRepositoryImpl)(nil)

func (r *UserConfigsRepositoryImpl) ext(tx *sqlx.Tx) sqlx.ExtContext {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *UserConfigsRepositoryImpl) Get(ctx context.Context, tx *sqlx.Tx, userID string) (*model.UserConfig, error) {
	var cfg model.UserConfig
	err := sqlx.GetContext(ctx, r.ext(tx), &cfg, `
		SELECT user_id, status, billing_cycle, subscription_id, current_period_end,
		       cancel_at_period_end, free_reports_available, preferences, created_at, updated_at
		  FROM user_configs
		 WHERE user_id = ? LIMIT 1
	`, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Create inserts a fresh config; existing rows are left untouched.
func (r *UserConfigsRepositoryImpl) Create(ctx context.Context, tx *sqlx.Tx, cfg model.UserConfig) error {
	prefs := cfg.Preferences
	if len(prefs) == 0 {
		prefs = []byte(`{}`)
	}
	_, err := r.ext(tx).ExecContext(ctx, `
		INSERT INTO user_configs
		    (user_id, status, billing_cycle, cancel_at_period_end, free_reports_available, preferences, created_at, updated_at)
		VALUES
		    (?, ?, ?, 0, ?, ?, NOW(), NOW())
		ON DUPLICATE KEY UPDATE user_id = user_id
	`, cfg.UserID, cfg.Status.String(), cfg.BillingCycle.String(), cfg.FreeReportsAvailable, prefs)
	return err
}

func (r *UserConfigsRepositoryImpl) ActivateSubscription(ctx context.Context, tx *sqlx.Tx, userID, subscriptionID string, cycle model.BillingCycle) (bool, error) {
	res, err := r.ext(tx).ExecContext(ctx, `
		UPDATE user_configs
		   SET status = 'pro', subscription_id = ?, billing_cycle = ?, updated_at = NOW()
		 WHERE user_id = ?
	`, subscriptionID, cycle.String(), userID)
	return matched(res, err)
}

// MirrorPeriod copies the provider's period state; subscription_id is owned
// by the activation transition and stays untouched here.
func (r *UserConfigsRepositoryImpl) MirrorPeriod(ctx context.Context, tx *sqlx.Tx, userID string, periodEnd *int64, cancelAtPeriodEnd bool) (bool, error) {
	res, err := r.ext(tx).ExecContext(ctx, `
		UPDATE user_configs
		   SET current_period_end = ?, cancel_at_period_end = ?, updated_at = NOW()
		 WHERE user_id = ?
	`, periodEnd, cancelAtPeriodEnd, userID)
	return matched(res, err)
}

// Deactivate reverts to free; subscription_id stays as a historical reference.
func (r *UserConfigsRepositoryImpl) Deactivate(ctx context.Context, tx *sqlx.Tx, userID string) (bool, error) {
	res, err := r.ext(tx).ExecContext(ctx, `
		UPDATE user_configs
		   SET status = 'free', current_period_end = NULL, cancel_at_period_end = 0, updated_at = NOW()
		 WHERE user_id = ?
	`, userID)
	return matched(res, err)
}

func (r *UserConfigsRepositoryImpl) SetBillingCycle(ctx context.Context, tx *sqlx.Tx, userID string, cycle model.BillingCycle) (bool, error) {
	res, err := r.ext(tx).ExecContext(ctx, `
		UPDATE user_configs
		   SET billing_cycle = ?, updated_at = NOW()
		 WHERE user_id = ?
	`, cycle.String(), userID)
	return matched(res, err)
}

func (r *UserConfigsRepositoryImpl) DecrementFreeReports(ctx context.Context, tx *sqlx.Tx, userID string) (bool, error) {
	res, err := r.ext(tx).ExecContext(ctx, `
		UPDATE user_configs
		   SET free_reports_available = free_reports_available - 1, updated_at = NOW()
		 WHERE user_id = ? AND free_reports_available > 0
	`, userID)
	return matched(res, err)
}

func matched(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
