package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Guizzs26/go-user-sync/internal/mapper"
	"github.com/Guizzs26/go-user-sync/internal/models"
	"github.com/Guizzs26/go-user-sync/pkg/metrics"
	"github.com/google/uuid"
)

// Directory is the read-only source-of-truth user lookup
type Directory interface {
	UserByID(ctx context.Context, id int64) (*models.UserRecord, error)
	LoadProfileFields(ctx context.Context, user *models.UserRecord) error
	ActiveUserIDs(ctx context.Context, limit int) ([]int64, error)
}

// SyncLog appends attempt records to the audit trail
type SyncLog interface {
	Insert(ctx context.Context, entry *models.SyncLogEntry) (int64, error)
}

// Enqueuer schedules a failed sync for retry
type Enqueuer interface {
	Enqueue(ctx context.Context, userID int64, payload json.RawMessage, eventType, lastError string) (int64, error)
}

// Deliverer posts a payload to the destination API
type Deliverer interface {
	Send(ctx context.Context, payload map[string]any) models.DeliveryResult
}

// Transformer rewrites payload fields per the configured rule sets
type Transformer interface {
	ApplyAll(ctx context.Context, payload map[string]any) map[string]any
}

// Orchestrator composes lookup, payload building, transformation and delivery
// for a single user sync, always logging the attempt and falling back to the
// retry queue on failure.
type Orchestrator struct {
	directory        Directory
	logs             SyncLog
	queue            Enqueuer
	deliverer        Deliverer
	transformer      Transformer
	builder          *mapper.PayloadBuilder
	transformEnabled bool
	batchDelay       time.Duration
	logger           *slog.Logger
}

func NewOrchestrator(
	directory Directory,
	logs SyncLog,
	queue Enqueuer,
	deliverer Deliverer,
	transformer Transformer,
	builder *mapper.PayloadBuilder,
	transformEnabled bool,
	batchDelay time.Duration,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		directory:        directory,
		logs:             logs,
		queue:            queue,
		deliverer:        deliverer,
		transformer:      transformer,
		builder:          builder,
		transformEnabled: transformEnabled,
		batchDelay:       batchDelay,
		logger:           logger,
	}
}

// SyncUser delivers one user to the destination API. queueID is non-nil when
// the call is a queue replay: replays are logged with their queue link and
// never re-enqueued, so an item cannot multiply while it is being retried.
// The triggering event must never observe a raised error from this path.
func (o *Orchestrator) SyncUser(ctx context.Context, userID int64, eventType string, queueID *int64) (result models.DeliveryResult) {
	correlationID := uuid.NewString()
	start := time.Now()

	l := o.logger.With(
		"correlation_id", correlationID,
		"user_id", userID,
		"event_type", eventType,
	)

	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("panic during sync: %v", r)
			l.Error("Sync aborted by panic", "panic", r)
			o.writeLog(ctx, l, &models.SyncLogEntry{
				CorrelationID: correlationID,
				UserID:        userID,
				QueueID:       queueID,
				EventType:     eventType,
				Payload:       json.RawMessage("{}"),
				ErrorMessage:  msg,
				ExecutionMs:   time.Since(start).Milliseconds(),
			})
			result = models.DeliveryResult{Error: msg}
		}
	}()

	user, err := o.directory.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			// Missing users are a data error: logged, surfaced, never retried
			msg := fmt.Sprintf("user with id %d not found", userID)
			l.Error("Sync target does not exist")
			o.writeLog(ctx, l, &models.SyncLogEntry{
				CorrelationID: correlationID,
				UserID:        userID,
				QueueID:       queueID,
				EventType:     models.EventError,
				Payload:       json.RawMessage("{}"),
				ErrorMessage:  msg,
			})
			metrics.SyncAttempts.WithLabelValues("error", eventType).Inc()
			return models.DeliveryResult{Error: msg}
		}

		msg := fmt.Sprintf("directory lookup failed: %v", err)
		l.Error("Directory lookup failed", "error", err)
		o.writeLog(ctx, l, &models.SyncLogEntry{
			CorrelationID: correlationID,
			UserID:        userID,
			QueueID:       queueID,
			EventType:     eventType,
			Payload:       json.RawMessage("{}"),
			ErrorMessage:  msg,
			ExecutionMs:   time.Since(start).Milliseconds(),
		})
		metrics.SyncAttempts.WithLabelValues("error", eventType).Inc()
		return models.DeliveryResult{Error: msg}
	}

	if err := o.directory.LoadProfileFields(ctx, user); err != nil {
		// Custom fields are best-effort; the core record still syncs
		l.Warn("Failed to load profile fields", "error", err)
	}

	payload := o.builder.Build(user)
	if o.transformEnabled && o.transformer != nil {
		payload = o.transformer.ApplyAll(ctx, payload)
	}

	result = o.deliverer.Send(ctx, payload)

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		payloadJSON = json.RawMessage("{}")
	}

	o.writeLog(ctx, l, &models.SyncLogEntry{
		CorrelationID: correlationID,
		UserID:        userID,
		QueueID:       queueID,
		EventType:     eventType,
		Payload:       payloadJSON,
		ResponseBody:  result.Body,
		HTTPCode:      result.HTTPCode,
		Success:       result.Success,
		ErrorMessage:  result.Error,
		ExecutionMs:   result.ExecutionMs,
	})

	if result.Success {
		metrics.SyncAttempts.WithLabelValues("success", eventType).Inc()
		l.Info("User synchronized", "http_code", derefCode(result.HTTPCode), "duration_ms", result.ExecutionMs)
		return result
	}

	metrics.SyncAttempts.WithLabelValues("failure", eventType).Inc()
	l.Warn("Sync delivery failed", "http_code", derefCode(result.HTTPCode), "error", result.Error)

	if queueID == nil {
		if _, err := o.queue.Enqueue(ctx, userID, payloadJSON, eventType, result.Error); err != nil {
			l.Error("CRITICAL: failed to enqueue retry, delivery is lost", "error", err)
		}
	}

	return result
}

// SyncUsers sequentially syncs a batch of users with a fixed inter-request
// delay as deliberate backpressure on the destination API.
func (o *Orchestrator) SyncUsers(ctx context.Context, userIDs []int64, eventType string, delay time.Duration) models.BatchResult {
	results := models.BatchResult{
		Total:   len(userIDs),
		Details: make(map[int64]models.DeliveryResult, len(userIDs)),
	}

	for i, userID := range userIDs {
		result := o.SyncUser(ctx, userID, eventType, nil)
		results.Details[userID] = result

		if result.Success {
			results.Succeeded++
		} else {
			results.Failed++
		}

		if delay > 0 && i+1 < len(userIDs) {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return results
			}
		}
	}

	return results
}

// SyncAll pushes every active directory user, either immediately or by
// seeding the retry queue for the scheduled processor to drain.
func (o *Orchestrator) SyncAll(ctx context.Context, limit int, enqueueOnly bool) (models.BatchResult, error) {
	userIDs, err := o.directory.ActiveUserIDs(ctx, limit)
	if err != nil {
		return models.BatchResult{}, fmt.Errorf("listing active users: %w", err)
	}

	if !enqueueOnly {
		return o.SyncUsers(ctx, userIDs, models.EventManual, o.batchDelay), nil
	}

	results := models.BatchResult{Total: len(userIDs), Details: map[int64]models.DeliveryResult{}}
	for _, userID := range userIDs {
		user, err := o.directory.UserByID(ctx, userID)
		if err != nil {
			results.Failed++
			continue
		}
		if err := o.directory.LoadProfileFields(ctx, user); err != nil {
			o.logger.Warn("Failed to load profile fields", "user_id", userID, "error", err)
		}

		payloadJSON, err := json.Marshal(o.builder.Build(user))
		if err != nil {
			results.Failed++
			continue
		}
		if _, err := o.queue.Enqueue(ctx, userID, payloadJSON, models.EventManual, ""); err != nil {
			results.Failed++
			continue
		}
		results.Succeeded++
	}
	return results, nil
}

func (o *Orchestrator) writeLog(ctx context.Context, l *slog.Logger, entry *models.SyncLogEntry) {
	if _, err := o.logs.Insert(ctx, entry); err != nil {
		l.Error("Failed to write sync log entry", "error", err)
	}
}

func derefCode(code *int) int {
	if code == nil {
		return 0
	}
	return *code
}
