package model

import (
	"encoding/json"
	"time"
)

// RentalReport is the DB entity persisted in rental_reports table.
type RentalReport struct {
	ReportID   string          `db:"report_id" json:"reportId"`
	UserID     string          `db:"user_id" json:"userId"`
	ReportData json.RawMessage `db:"report_data" json:"reportData"`
	IsSharable bool            `db:"is_sharable" json:"isSharable"`
	CreatedAt  time.Time       `db:"created_at" json:"-"`
	UpdatedAt  time.Time       `db:"updated_at" json:"-"`
}
