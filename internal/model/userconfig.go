package model

import (
	"encoding/json"
	"strings"
	"time"
)

type UserStatus string

const (
	StatusFree  UserStatus = "free"
	StatusPro   UserStatus = "pro"
	StatusAdmin UserStatus = "admin"
)

func (s UserStatus) String() string { return string(s) }

func (s UserStatus) Valid() bool {
	return s == StatusFree || s == StatusPro || s == StatusAdmin
}

// Metered reports true when report creation consumes the free-report allowance.
func (s UserStatus) Metered() bool { return s == StatusFree }

type BillingCycle string

const (
	CycleMonthly BillingCycle = "monthly"
	CycleYearly  BillingCycle = "yearly"
)

func (c BillingCycle) String() string { return string(c) }

// ParseBillingCycle normalizes input; empty => monthly.
// Returns (value, true) if valid; otherwise (monthly, false).
func ParseBillingCycle(s string) (BillingCycle, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "monthly":
		return CycleMonthly, true
	case "yearly":
		return CycleYearly, true
	default:
		return CycleMonthly, false
	}
}

func (c BillingCycle) Valid() bool {
	return c == CycleMonthly || c == CycleYearly
}

// UserConfig is the per-user billing/entitlement record.
// Preferences is owned by other features and must never be rewritten by
// subscription transitions; every transition updates only its own columns.
type UserConfig struct {
	UserID               string          `db:"user_id" json:"userId"`
	Status               UserStatus      `db:"status" json:"status"`
	BillingCycle         BillingCycle    `db:"billing_cycle" json:"billingCycle"`
	SubscriptionID       *string         `db:"subscription_id" json:"subscriptionId,omitempty"`
	CurrentPeriodEnd     *int64          `db:"current_period_end" json:"current_period_end,omitempty"`
	CancelAtPeriodEnd    bool            `db:"cancel_at_period_end" json:"cancel_at_period_end"`
	FreeReportsAvailable int             `db:"free_reports_available" json:"freeReportsAvailable"`
	Preferences          json.RawMessage `db:"preferences" json:"preferences,omitempty"`
	CreatedAt            time.Time       `db:"created_at" json:"-"`
	UpdatedAt            time.Time       `db:"updated_at" json:"-"`
}
