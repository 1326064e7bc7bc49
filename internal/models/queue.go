package models

import (
	"encoding/json"
	"math"
	"time"
)

// Queue status constants
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

const (
	// BaseRetryDelay is the initial backoff applied to a freshly enqueued item
	BaseRetryDelay = 300 * time.Second

	// MaxRetryDelay caps the exponential backoff at 24 hours
	MaxRetryDelay = 86400 * time.Second
)

// QueueItem is a durable record of a failed sync awaiting retry
type QueueItem struct {
	ID          int64           `db:"id"`
	UserID      int64           `db:"user_id"`
	Payload     json.RawMessage `db:"payload"`
	EventType   string          `db:"event_type"`
	Attempts    int             `db:"attempts"`
	MaxAttempts int             `db:"max_attempts"`
	NextRetryAt time.Time       `db:"next_retry_at"`
	LastError   string          `db:"last_error"`
	Status      string          `db:"status"`
	CreatedAt   time.Time       `db:"created_at"`
	ModifiedAt  time.Time       `db:"modified_at"`
}

// RetryDelay computes the exponential backoff for a given attempt count:
// base * multiplier^attempts, capped at MaxRetryDelay.
func RetryDelay(attempts int, multiplier float64) time.Duration {
	delay := float64(BaseRetryDelay) * math.Pow(multiplier, float64(attempts))
	if delay > float64(MaxRetryDelay) || math.IsInf(delay, 1) {
		return MaxRetryDelay
	}
	return time.Duration(delay)
}

// ApplyFailure records one failed delivery attempt and resolves the next state.
// Attempts increments first; when the budget is exhausted the item becomes
// terminally failed, otherwise it returns to pending with a backed-off retry time.
func (q *QueueItem) ApplyFailure(errMsg string, multiplier float64, now time.Time) {
	q.Attempts++
	q.LastError = errMsg
	q.ModifiedAt = now

	if q.Attempts >= q.MaxAttempts {
		q.Status = StatusFailed
		return
	}

	q.Status = StatusPending
	q.NextRetryAt = now.Add(RetryDelay(q.Attempts, multiplier))
}

// ApplySuccess moves the item to its terminal completed state
func (q *QueueItem) ApplySuccess(now time.Time) {
	q.Status = StatusCompleted
	q.ModifiedAt = now
}

// Terminal reports whether no further automatic transition applies
func (q *QueueItem) Terminal() bool {
	return q.Status == StatusCompleted || q.Status == StatusFailed
}
