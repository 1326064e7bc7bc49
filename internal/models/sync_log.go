package models

import (
	"encoding/json"
	"time"
)

// Event type constants recorded on every sync attempt
const (
	EventUserCreated = "user_created"
	EventUserUpdated = "user_updated"
	EventManual      = "manual"
	EventError       = "error"
)

// SyncLogEntry is an append-only audit record of a single delivery attempt.
// QueueID links replays back to the queue item that triggered them.
type SyncLogEntry struct {
	ID            int64           `db:"id"`
	CorrelationID string          `db:"correlation_id"`
	UserID        int64           `db:"user_id"`
	QueueID       *int64          `db:"queue_id"`
	EventType     string          `db:"event_type"`
	Payload       json.RawMessage `db:"payload"`
	ResponseBody  string          `db:"response_body"`
	HTTPCode      *int            `db:"http_code"`
	Success       bool            `db:"success"`
	ErrorMessage  string          `db:"error_message"`
	ExecutionMs   int64           `db:"execution_ms"`
	CreatedAt     time.Time       `db:"created_at"`
}

// LogFilter narrows log listings; zero values mean "no constraint"
type LogFilter struct {
	UserID    int64
	Success   *bool
	EventType string
	DateFrom  time.Time
	DateTo    time.Time
}

// LogStats aggregates attempt outcomes over a date range
type LogStats struct {
	Total     int64
	Succeeded int64
	Failed    int64
}
