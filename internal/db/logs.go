package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Guizzs26/go-user-sync/internal/models"
)

// Insert appends one attempt record to the audit trail. Entries are
// immutable once written.
func (s *Store) Insert(ctx context.Context, entry *models.SyncLogEntry) (int64, error) {
	query := `
		INSERT INTO usersync_log
			(correlation_id, user_id, queue_id, event_type, payload, response_body,
			 http_code, success, error_message, execution_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, NULLIF($9, ''), $10, NOW())
		RETURNING id
	`

	var id int64
	err := s.pool.QueryRow(ctx, query,
		entry.CorrelationID,
		entry.UserID,
		entry.QueueID,
		entry.EventType,
		entry.Payload,
		entry.ResponseBody,
		entry.HTTPCode,
		entry.Success,
		entry.ErrorMessage,
		entry.ExecutionMs,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting sync log entry for user %d: %w", entry.UserID, err)
	}
	return id, nil
}

// logFilterClause builds the WHERE fragment shared by List and CountLogs
func logFilterClause(filter models.LogFilter) (string, []any) {
	var where []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.UserID > 0 {
		where = append(where, "user_id = "+arg(filter.UserID))
	}
	if filter.Success != nil {
		where = append(where, "success = "+arg(*filter.Success))
	}
	if filter.EventType != "" {
		where = append(where, "event_type = "+arg(filter.EventType))
	}
	if !filter.DateFrom.IsZero() {
		where = append(where, "created_at >= "+arg(filter.DateFrom))
	}
	if !filter.DateTo.IsZero() {
		where = append(where, "created_at <= "+arg(filter.DateTo))
	}

	if len(where) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(where, " AND "), args
}

// ListLogs pages through the audit trail, newest first
func (s *Store) ListLogs(ctx context.Context, filter models.LogFilter, page, perPage int) ([]models.SyncLogEntry, error) {
	if perPage <= 0 {
		perPage = 50
	}
	if page < 0 {
		page = 0
	}

	clause, args := logFilterClause(filter)
	args = append(args, perPage, page*perPage)

	query := fmt.Sprintf(`
		SELECT id, correlation_id, user_id, queue_id, event_type, payload,
		       COALESCE(response_body, ''), http_code, success,
		       COALESCE(error_message, ''), execution_ms, created_at
		FROM usersync_log
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, clause, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sync log entries: %w", err)
	}
	defer rows.Close()

	var entries []models.SyncLogEntry
	for rows.Next() {
		var e models.SyncLogEntry
		err := rows.Scan(
			&e.ID, &e.CorrelationID, &e.UserID, &e.QueueID, &e.EventType,
			&e.Payload, &e.ResponseBody, &e.HTTPCode, &e.Success,
			&e.ErrorMessage, &e.ExecutionMs, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning sync log entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) CountLogs(ctx context.Context, filter models.LogFilter) (int64, error) {
	clause, args := logFilterClause(filter)

	var count int64
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM usersync_log %s", clause), args...,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting sync log entries: %w", err)
	}
	return count, nil
}

// LogStats aggregates attempt outcomes over an optional date range
func (s *Store) LogStats(ctx context.Context, from, to time.Time) (models.LogStats, error) {
	filter := models.LogFilter{DateFrom: from, DateTo: to}
	clause, args := logFilterClause(filter)

	query := fmt.Sprintf(`
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE success),
		       COUNT(*) FILTER (WHERE NOT success)
		FROM usersync_log
		%s
	`, clause)

	var stats models.LogStats
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&stats.Total, &stats.Succeeded, &stats.Failed); err != nil {
		return models.LogStats{}, fmt.Errorf("collecting sync log statistics: %w", err)
	}
	return stats, nil
}

// CleanupLogs deletes audit rows past the retention window
func (s *Store) CleanupLogs(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)

	tag, err := s.pool.Exec(ctx, `DELETE FROM usersync_log WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleaning up sync log entries: %w", err)
	}
	return tag.RowsAffected(), nil
}
