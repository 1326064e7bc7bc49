package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Guizzs26/go-user-sync/internal/models"
	"github.com/Guizzs26/go-user-sync/pkg/metrics"
	"github.com/google/uuid"
)

// RetryQueue is the durable store of failed syncs awaiting replay.
// MarkProcessing is a compare-and-set on status=pending: when two workers
// race on the same due item exactly one claim succeeds.
type RetryQueue interface {
	Due(ctx context.Context, limit int) ([]models.QueueItem, error)
	MarkProcessing(ctx context.Context, id int64) (bool, error)
	MarkCompleted(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, errMsg string) error
	PendingCount(ctx context.Context) (int64, error)
}

// Retention deletes aged rows past their configured retention
type Retention interface {
	CleanupLogs(ctx context.Context, olderThanDays int) (int64, error)
	CleanupWebhooks(ctx context.Context, olderThanDays int) (int64, error)
	CleanupQueue(ctx context.Context, olderThanDays int) (int64, error)
}

// ProcessStats summarizes one scheduled drain
type ProcessStats struct {
	Processed int
	Succeeded int
	Failed    int
	Skipped   int
}

// CleanupStats counts rows removed per table by the daily cleanup
type CleanupStats struct {
	Logs     int64
	Webhooks int64
	Queue    int64
}

// QueueProcessor replays due queue items through the delivery client.
// One bad item never aborts the batch: failures are isolated per item.
type QueueProcessor struct {
	queue     RetryQueue
	logs      SyncLog
	retention Retention
	deliverer Deliverer
	logger    *slog.Logger
}

func NewQueueProcessor(queue RetryQueue, logs SyncLog, retention Retention, deliverer Deliverer, logger *slog.Logger) *QueueProcessor {
	return &QueueProcessor{
		queue:     queue,
		logs:      logs,
		retention: retention,
		deliverer: deliverer,
		logger:    logger,
	}
}

// ProcessQueue drains at most limit due items. Each scheduled invocation is
// bounded so its latency stays predictable.
func (p *QueueProcessor) ProcessQueue(ctx context.Context, limit int) (ProcessStats, error) {
	var stats ProcessStats

	items, err := p.queue.Due(ctx, limit)
	if err != nil {
		return stats, fmt.Errorf("fetching due queue items: %w", err)
	}

	for _, item := range items {
		outcome := p.processItem(ctx, item)
		switch outcome {
		case itemSkipped:
			stats.Skipped++
		case itemSucceeded:
			stats.Processed++
			stats.Succeeded++
			metrics.QueueProcessed.WithLabelValues("completed").Inc()
		case itemFailed:
			stats.Processed++
			stats.Failed++
			metrics.QueueProcessed.WithLabelValues("failed").Inc()
		}
	}

	if pending, err := p.queue.PendingCount(ctx); err == nil {
		metrics.QueueDepth.Set(float64(pending))
	}

	if stats.Processed > 0 {
		p.logger.Info("Queue drain complete",
			"processed", stats.Processed,
			"succeeded", stats.Succeeded,
			"failed", stats.Failed,
			"skipped", stats.Skipped,
		)
	}

	return stats, nil
}

type itemOutcome int

const (
	itemSkipped itemOutcome = iota
	itemSucceeded
	itemFailed
)

func (p *QueueProcessor) processItem(ctx context.Context, item models.QueueItem) (outcome itemOutcome) {
	l := p.logger.With("queue_id", item.ID, "user_id", item.UserID, "attempts", item.Attempts)

	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("panic processing queue item: %v", r)
			l.Error("Queue item aborted by panic", "panic", r)
			if err := p.queue.MarkFailed(ctx, item.ID, msg); err != nil {
				l.Error("Failed to mark panicked item", "error", err)
			}
			outcome = itemFailed
		}
	}()

	claimed, err := p.queue.MarkProcessing(ctx, item.ID)
	if err != nil {
		l.Error("Failed to claim queue item", "error", err)
		return itemFailed
	}
	if !claimed {
		// Another worker already owns this item
		l.Debug("Queue item claimed elsewhere, skipping")
		return itemSkipped
	}

	var payload map[string]any
	if err := json.Unmarshal(item.Payload, &payload); err != nil || payload == nil {
		// Malformed stored payloads fail without ever touching the network
		msg := "invalid payload JSON in queue item"
		l.Error("Dropping undeliverable queue item", "error", err)
		if err := p.queue.MarkFailed(ctx, item.ID, msg); err != nil {
			l.Error("Failed to mark malformed item", "error", err)
		}
		return itemFailed
	}

	result := p.deliverer.Send(ctx, payload)

	queueID := item.ID
	entry := &models.SyncLogEntry{
		CorrelationID: uuid.NewString(),
		UserID:        item.UserID,
		QueueID:       &queueID,
		EventType:     item.EventType,
		Payload:       item.Payload,
		ResponseBody:  result.Body,
		HTTPCode:      result.HTTPCode,
		Success:       result.Success,
		ErrorMessage:  result.Error,
		ExecutionMs:   result.ExecutionMs,
	}
	if _, err := p.logs.Insert(ctx, entry); err != nil {
		l.Error("Failed to write sync log entry", "error", err)
	}

	if result.Success {
		if err := p.queue.MarkCompleted(ctx, item.ID); err != nil {
			l.Error("Failed to mark queue item completed", "error", err)
		}
		l.Info("Queue replay delivered", "http_code", derefCode(result.HTTPCode))
		return itemSucceeded
	}

	if err := p.queue.MarkFailed(ctx, item.ID, result.Error); err != nil {
		l.Error("Failed to mark queue item failed", "error", err)
	}
	l.Warn("Queue replay failed", "http_code", derefCode(result.HTTPCode), "error", result.Error)
	return itemFailed
}

// Cleanup is the daily retention entry point: aged sync logs, webhook audit
// rows and completed queue items are removed.
func (p *QueueProcessor) Cleanup(ctx context.Context, logDays, webhookDays, queueDays int) (CleanupStats, error) {
	var stats CleanupStats
	var firstErr error

	logs, err := p.retention.CleanupLogs(ctx, logDays)
	if err != nil {
		firstErr = fmt.Errorf("log cleanup: %w", err)
		p.logger.Error("Log cleanup failed", "error", err)
	}
	stats.Logs = logs

	webhooks, err := p.retention.CleanupWebhooks(ctx, webhookDays)
	if err != nil && firstErr == nil {
		firstErr = fmt.Errorf("webhook cleanup: %w", err)
	}
	if err != nil {
		p.logger.Error("Webhook cleanup failed", "error", err)
	}
	stats.Webhooks = webhooks

	queue, err := p.retention.CleanupQueue(ctx, queueDays)
	if err != nil && firstErr == nil {
		firstErr = fmt.Errorf("queue cleanup: %w", err)
	}
	if err != nil {
		p.logger.Error("Queue cleanup failed", "error", err)
	}
	stats.Queue = queue

	p.logger.Info("Retention cleanup complete",
		"logs", stats.Logs,
		"webhooks", stats.Webhooks,
		"queue", stats.Queue,
	)
	return stats, firstErr
}
