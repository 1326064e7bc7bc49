package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/Guizzs26/go-user-sync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type markCall struct {
	ID    int64
	Error string
}

type fakeRetryQueue struct {
	due       []models.QueueItem
	unclaimed map[int64]bool
	completed []int64
	failed    []markCall
	pending   int64
}

func (f *fakeRetryQueue) Due(_ context.Context, limit int) ([]models.QueueItem, error) {
	if limit < len(f.due) {
		return f.due[:limit], nil
	}
	return f.due, nil
}

func (f *fakeRetryQueue) MarkProcessing(_ context.Context, id int64) (bool, error) {
	return !f.unclaimed[id], nil
}

func (f *fakeRetryQueue) MarkCompleted(_ context.Context, id int64) error {
	f.completed = append(f.completed, id)
	return nil
}

func (f *fakeRetryQueue) MarkFailed(_ context.Context, id int64, errMsg string) error {
	f.failed = append(f.failed, markCall{id, errMsg})
	return nil
}

func (f *fakeRetryQueue) PendingCount(_ context.Context) (int64, error) {
	return f.pending, nil
}

type fakeRetention struct {
	logs, webhooks, queue int64
}

func (f *fakeRetention) CleanupLogs(_ context.Context, _ int) (int64, error)     { return f.logs, nil }
func (f *fakeRetention) CleanupWebhooks(_ context.Context, _ int) (int64, error) { return f.webhooks, nil }
func (f *fakeRetention) CleanupQueue(_ context.Context, _ int) (int64, error)    { return f.queue, nil }

func queueItem(id, userID int64, payload string) models.QueueItem {
	return models.QueueItem{
		ID:        id,
		UserID:    userID,
		Payload:   json.RawMessage(payload),
		EventType: models.EventUserUpdated,
		Status:    models.StatusPending,
	}
}

func newProcessorFixture(queue *fakeRetryQueue, deliverer Deliverer) (*QueueProcessor, *fakeSyncLog) {
	logs := &fakeSyncLog{}
	p := NewQueueProcessor(
		queue,
		logs,
		&fakeRetention{},
		deliverer,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return p, logs
}

func TestProcessQueueDeliversAndCompletes(t *testing.T) {
	queue := &fakeRetryQueue{due: []models.QueueItem{queueItem(1, 7, `{"email":"a@x.com"}`)}}
	deliverer := &fakeDeliverer{result: successResult()}
	p, logs := newProcessorFixture(queue, deliverer)

	stats, err := p.ProcessQueue(context.Background(), 100)
	require.NoError(t, err)

	assert.Equal(t, ProcessStats{Processed: 1, Succeeded: 1}, stats)
	assert.Equal(t, []int64{1}, queue.completed)
	assert.Empty(t, queue.failed)

	require.Len(t, logs.entries, 1)
	entry := logs.entries[0]
	require.NotNil(t, entry.QueueID, "queue replays must link their queue item")
	assert.Equal(t, int64(1), *entry.QueueID)
	assert.Equal(t, int64(7), entry.UserID)
	assert.True(t, entry.Success)
}

func TestProcessQueueRoutesFailureToMarkFailed(t *testing.T) {
	queue := &fakeRetryQueue{due: []models.QueueItem{queueItem(2, 7, `{"email":"a@x.com"}`)}}
	deliverer := &fakeDeliverer{result: serverErrorResult()}
	p, logs := newProcessorFixture(queue, deliverer)

	stats, err := p.ProcessQueue(context.Background(), 100)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Failed)
	require.Len(t, queue.failed, 1)
	assert.Equal(t, int64(2), queue.failed[0].ID)
	assert.Contains(t, queue.failed[0].Error, "Internal Server Error")

	require.Len(t, logs.entries, 1)
	assert.False(t, logs.entries[0].Success)
}

func TestProcessQueueMalformedPayloadFailsWithoutDelivery(t *testing.T) {
	queue := &fakeRetryQueue{due: []models.QueueItem{queueItem(3, 7, `{not-json`)}}
	deliverer := &fakeDeliverer{result: successResult()}
	p, logs := newProcessorFixture(queue, deliverer)

	stats, err := p.ProcessQueue(context.Background(), 100)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Failed)
	assert.Empty(t, deliverer.payloads, "malformed payloads must not reach the network")
	require.Len(t, queue.failed, 1)
	assert.Equal(t, "invalid payload JSON in queue item", queue.failed[0].Error)
	assert.Empty(t, logs.entries, "no delivery attempt, no attempt log")
}

func TestProcessQueueSkipsItemsClaimedElsewhere(t *testing.T) {
	queue := &fakeRetryQueue{
		due:       []models.QueueItem{queueItem(4, 7, `{}`), queueItem(5, 8, `{"a":1}`)},
		unclaimed: map[int64]bool{4: true},
	}
	deliverer := &fakeDeliverer{result: successResult()}
	p, _ := newProcessorFixture(queue, deliverer)

	stats, err := p.ProcessQueue(context.Background(), 100)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, []int64{5}, queue.completed)
}

func TestProcessQueueIsolatesPanicPerItem(t *testing.T) {
	queue := &fakeRetryQueue{due: []models.QueueItem{queueItem(6, 7, `{"a":1}`), queueItem(7, 8, `{"b":2}`)}}

	// First Send panics, second succeeds
	deliverer := &panicOnceDeliverer{result: successResult()}
	p, _ := newProcessorFixture(queue, deliverer)

	var stats ProcessStats
	var err error
	require.NotPanics(t, func() {
		stats, err = p.ProcessQueue(context.Background(), 100)
	})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Failed, "panicked item counts as failed")
	assert.Equal(t, 1, stats.Succeeded, "one bad item must not abort the batch")
	require.Len(t, queue.failed, 1)
	assert.Contains(t, queue.failed[0].Error, "panic processing queue item")
}

type panicOnceDeliverer struct {
	result models.DeliveryResult
	calls  int
}

func (p *panicOnceDeliverer) Send(_ context.Context, _ map[string]any) models.DeliveryResult {
	p.calls++
	if p.calls == 1 {
		panic("poison item")
	}
	return p.result
}

func TestProcessQueueHonorsLimit(t *testing.T) {
	queue := &fakeRetryQueue{due: []models.QueueItem{
		queueItem(1, 1, `{}`), queueItem(2, 2, `{}`), queueItem(3, 3, `{}`),
	}}
	deliverer := &fakeDeliverer{result: successResult()}
	p, _ := newProcessorFixture(queue, deliverer)

	stats, err := p.ProcessQueue(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Processed)
}

func TestCleanupAggregatesCounts(t *testing.T) {
	p := NewQueueProcessor(
		&fakeRetryQueue{},
		&fakeSyncLog{},
		&fakeRetention{logs: 10, webhooks: 4, queue: 2},
		&fakeDeliverer{},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	stats, err := p.Cleanup(context.Background(), 90, 30, 7)
	require.NoError(t, err)
	assert.Equal(t, CleanupStats{Logs: 10, Webhooks: 4, Queue: 2}, stats)
}
