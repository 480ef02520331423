package models

import "time"

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// PaymentRecord is the audit entry for one completed checkout session.
// SessionID is unique across the log.
type PaymentRecord struct {
	ID          string        `json:"id" bson:"_id"`
	AccountID   string        `json:"account_id" bson:"account_id"`
	SessionID   string        `json:"session_id" bson:"session_id"`
	EventID     string        `json:"event_id,omitempty" bson:"event_id,omitempty"`
	PackageID   string        `json:"package_id,omitempty" bson:"package_id,omitempty"`
	AmountTotal int64         `json:"amount_total" bson:"amount_total"`
	Credits     int64         `json:"credits" bson:"credits"`
	Status      PaymentStatus `json:"status" bson:"status"`
	CreatedAt   time.Time     `json:"created_at" bson:"created_at"`
}
