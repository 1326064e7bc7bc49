package models

import "time"

// WebhookAttempt is the audit record behind replay detection. RequestID is
// unique in the store so concurrent duplicates collapse to a single row.
type WebhookAttempt struct {
	ID        int64     `db:"id"`
	RequestID string    `db:"request_id"`
	Signature string    `db:"signature"`
	Payload   []byte    `db:"payload"`
	Verified  bool      `db:"verified"`
	IPAddress string    `db:"ip_address"`
	UserAgent string    `db:"user_agent"`
	CreatedAt time.Time `db:"created_at"`
}

// WebhookStats summarizes validation outcomes
type WebhookStats struct {
	Total            int64
	Verified         int64
	Failed           int64
	VerificationRate float64
}
