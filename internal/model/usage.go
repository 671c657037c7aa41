package model

import "time"

// APIUsage tracks metered calls against an upstream within the current reset window.
// Count is only ever mutated through the conditional reserve/reset statements.
type APIUsage struct {
	APIName   string    `db:"api_name" json:"apiName"`
	Count     int       `db:"count" json:"count"`
	UpdatedAt time.Time `db:"updated_at" json:"-"`
}
