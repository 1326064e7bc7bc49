package db

import (
	"context"
	"fmt"
	"time"

	"github.com/Guizzs26/go-user-sync/internal/models"
)

// SeenRecently answers the replay lookup: has this request id been recorded
// inside the window?
func (s *Store) SeenRecently(ctx context.Context, requestID string, window time.Duration) (bool, error) {
	var seen bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM usersync_webhook
			WHERE request_id = $1 AND created_at > $2
		)
	`, requestID, time.Now().Add(-window)).Scan(&seen)
	if err != nil {
		return false, fmt.Errorf("checking webhook request id %q: %w", requestID, err)
	}
	return seen, nil
}

// RecordAttempt persists the audit row. The unique index on request_id makes
// a racing duplicate fail here, which the validator treats as a replay.
func (s *Store) RecordAttempt(ctx context.Context, attempt models.WebhookAttempt) error {
	query := `
		INSERT INTO usersync_webhook
			(request_id, signature, payload, verified, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.pool.Exec(ctx, query,
		attempt.RequestID,
		attempt.Signature,
		attempt.Payload,
		attempt.Verified,
		attempt.IPAddress,
		attempt.UserAgent,
		attempt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("recording webhook attempt %q: %w", attempt.RequestID, err)
	}
	return nil
}

// WebhookStats summarizes validation outcomes over an optional date range
func (s *Store) WebhookStats(ctx context.Context, from, to time.Time) (models.WebhookStats, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE verified),
		       COUNT(*) FILTER (WHERE NOT verified)
		FROM usersync_webhook
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at <= $2)
	`

	var stats models.WebhookStats
	err := s.pool.QueryRow(ctx, query, nullableTime(from), nullableTime(to)).
		Scan(&stats.Total, &stats.Verified, &stats.Failed)
	if err != nil {
		return models.WebhookStats{}, fmt.Errorf("collecting webhook statistics: %w", err)
	}

	if stats.Total > 0 {
		stats.VerificationRate = float64(stats.Verified) / float64(stats.Total) * 100
	}
	return stats, nil
}

// CleanupWebhooks deletes audit rows past the retention window
func (s *Store) CleanupWebhooks(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)

	tag, err := s.pool.Exec(ctx, `DELETE FROM usersync_webhook WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleaning up webhook attempts: %w", err)
	}
	return tag.RowsAffected(), nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
