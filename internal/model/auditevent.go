package model

import "time"

type AuditEventKind string

const (
	AuditSubscriptionActivated AuditEventKind = "subscription.activated"
	AuditSubscriptionUpdated   AuditEventKind = "subscription.updated"
	AuditSubscriptionDeleted   AuditEventKind = "subscription.deleted"
	AuditAPICall               AuditEventKind = "api.call"
	AuditReportCreated         AuditEventKind = "report.created"
)

func (k AuditEventKind) String() string { return string(k) }

// AuditEvent is the payload published to Kafka (via Debezium outbox SMT)
// and the row shape of the ClickHouse audit_events read model.
type AuditEvent struct {
	ID        string         `json:"id" db:"id"` // ULID
	Kind      AuditEventKind `json:"kind" db:"kind"`
	UserID    string         `json:"user_id" db:"user_id"`
	Subject   string         `json:"subject" db:"subject"` // api name, report id, or subscription id
	Detail    string         `json:"detail" db:"detail"`   // free-form JSON
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}
