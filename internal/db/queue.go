package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Guizzs26/go-user-sync/internal/models"
	"github.com/jackc/pgx/v5"
)

// ErrQueueItemNotFound marks a lookup for a queue id that no longer exists
var ErrQueueItemNotFound = errors.New("queue item not found")

const queueColumns = `id, user_id, payload, event_type, attempts, max_attempts,
       next_retry_at, COALESCE(last_error, ''), status, created_at, modified_at`

func scanQueueItem(row pgx.Row) (models.QueueItem, error) {
	var item models.QueueItem
	err := row.Scan(
		&item.ID,
		&item.UserID,
		&item.Payload,
		&item.EventType,
		&item.Attempts,
		&item.MaxAttempts,
		&item.NextRetryAt,
		&item.LastError,
		&item.Status,
		&item.CreatedAt,
		&item.ModifiedAt,
	)
	return item, err
}

// Enqueue inserts a fresh pending item with its first retry one base delay out
func (s *Store) Enqueue(ctx context.Context, userID int64, payload json.RawMessage, eventType, lastError string) (int64, error) {
	now := time.Now()

	query := `
		INSERT INTO usersync_queue
			(user_id, payload, event_type, attempts, max_attempts, next_retry_at, last_error, status, created_at, modified_at)
		VALUES ($1, $2, $3, 0, $4, $5, NULLIF($6, ''), $7, $8, $8)
		RETURNING id
	`

	var id int64
	err := s.pool.QueryRow(ctx, query,
		userID, payload, eventType, s.maxAttempts,
		now.Add(models.BaseRetryDelay), lastError, models.StatusPending, now,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("enqueueing retry for user %d: %w", userID, err)
	}

	s.logger.Info("Sync queued for retry", "queue_id", id, "user_id", userID, "event_type", eventType)
	return id, nil
}

// Due returns pending items whose retry time has passed, oldest first
func (s *Store) Due(ctx context.Context, limit int) ([]models.QueueItem, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM usersync_queue
		WHERE status = $1 AND next_retry_at <= NOW()
		ORDER BY next_retry_at ASC
		LIMIT $2
	`, queueColumns)

	rows, err := s.pool.Query(ctx, query, models.StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("fetching due queue items: %w", err)
	}
	defer rows.Close()

	var items []models.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning queue item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// MarkProcessing claims an item with a compare-and-set on status=pending.
// Racing workers converge to one winner; losers get false and skip.
func (s *Store) MarkProcessing(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE usersync_queue
		SET status = $1, modified_at = NOW()
		WHERE id = $2 AND status = $3
	`

	tag, err := s.pool.Exec(ctx, query, models.StatusProcessing, id, models.StatusPending)
	if err != nil {
		return false, fmt.Errorf("claiming queue item %d: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) MarkCompleted(ctx context.Context, id int64) error {
	query := `
		UPDATE usersync_queue
		SET status = $1, modified_at = NOW()
		WHERE id = $2
	`

	if _, err := s.pool.Exec(ctx, query, models.StatusCompleted, id); err != nil {
		return fmt.Errorf("completing queue item %d: %w", id, err)
	}
	return nil
}

// MarkFailed records a failed replay: attempts increments, then the item
// either retires as failed or reschedules with exponential backoff.
func (s *Store) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting failure transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := fmt.Sprintf(`SELECT %s FROM usersync_queue WHERE id = $1 FOR UPDATE`, queueColumns)
	item, err := scanQueueItem(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrQueueItemNotFound
		}
		return fmt.Errorf("loading queue item %d: %w", id, err)
	}

	item.ApplyFailure(errMsg, s.multiplier, time.Now())

	update := `
		UPDATE usersync_queue
		SET attempts = $1, last_error = $2, status = $3, next_retry_at = $4, modified_at = $5
		WHERE id = $6
	`
	if _, err := tx.Exec(ctx, update,
		item.Attempts, item.LastError, item.Status, item.NextRetryAt, item.ModifiedAt, id,
	); err != nil {
		return fmt.Errorf("updating failed queue item %d: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing failure for queue item %d: %w", id, err)
	}

	if item.Status == models.StatusFailed {
		s.logger.Warn("Queue item exhausted its retry budget",
			"queue_id", id, "attempts", item.Attempts, "error", errMsg)
	}
	return nil
}

// RetryNow forces an item back to pending for immediate pickup, the manual
// admin override for both scheduled and terminally failed items.
func (s *Store) RetryNow(ctx context.Context, id int64) error {
	query := `
		UPDATE usersync_queue
		SET status = $1, next_retry_at = NOW(), modified_at = NOW()
		WHERE id = $2
	`

	tag, err := s.pool.Exec(ctx, query, models.StatusPending, id)
	if err != nil {
		return fmt.Errorf("forcing retry of queue item %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrQueueItemNotFound
	}
	return nil
}

func (s *Store) GetQueueItem(ctx context.Context, id int64) (models.QueueItem, error) {
	query := fmt.Sprintf(`SELECT %s FROM usersync_queue WHERE id = $1`, queueColumns)

	item, err := scanQueueItem(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.QueueItem{}, ErrQueueItemNotFound
		}
		return models.QueueItem{}, fmt.Errorf("loading queue item %d: %w", id, err)
	}
	return item, nil
}

func (s *Store) DeleteQueueItem(ctx context.Context, id int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM usersync_queue WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting queue item %d: %w", id, err)
	}
	return nil
}

func (s *Store) PendingCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM usersync_queue WHERE status = $1`, models.StatusPending,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting pending queue items: %w", err)
	}
	return count, nil
}

// QueueStats returns item counts by status
func (s *Store) QueueStats(ctx context.Context) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM usersync_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("collecting queue statistics: %w", err)
	}
	defer rows.Close()

	stats := map[string]int64{
		models.StatusPending:    0,
		models.StatusProcessing: 0,
		models.StatusCompleted:  0,
		models.StatusFailed:     0,
	}
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scanning queue statistics: %w", err)
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// CleanupQueue deletes completed items past the retention window
func (s *Store) CleanupQueue(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM usersync_queue WHERE status = $1 AND modified_at < $2`,
		models.StatusCompleted, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("cleaning up completed queue items: %w", err)
	}
	return tag.RowsAffected(), nil
}
