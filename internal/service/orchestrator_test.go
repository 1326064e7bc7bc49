package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Guizzs26/go-user-sync/internal/mapper"
	"github.com/Guizzs26/go-user-sync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDirectory struct {
	users      map[int64]*models.UserRecord
	activeIDs  []int64
	profileErr error
}

func (f *fakeDirectory) UserByID(_ context.Context, id int64) (*models.UserRecord, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	clone := *user
	return &clone, nil
}

func (f *fakeDirectory) LoadProfileFields(_ context.Context, _ *models.UserRecord) error {
	return f.profileErr
}

func (f *fakeDirectory) ActiveUserIDs(_ context.Context, limit int) ([]int64, error) {
	if limit < len(f.activeIDs) {
		return f.activeIDs[:limit], nil
	}
	return f.activeIDs, nil
}

type fakeSyncLog struct {
	entries []*models.SyncLogEntry
}

func (f *fakeSyncLog) Insert(_ context.Context, entry *models.SyncLogEntry) (int64, error) {
	f.entries = append(f.entries, entry)
	return int64(len(f.entries)), nil
}

type enqueueCall struct {
	UserID    int64
	Payload   json.RawMessage
	EventType string
	LastError string
}

type fakeEnqueuer struct {
	calls []enqueueCall
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, userID int64, payload json.RawMessage, eventType, lastError string) (int64, error) {
	f.calls = append(f.calls, enqueueCall{userID, payload, eventType, lastError})
	return int64(len(f.calls)), nil
}

type fakeDeliverer struct {
	result   models.DeliveryResult
	payloads []map[string]any
	doPanic  bool
}

func (f *fakeDeliverer) Send(_ context.Context, payload map[string]any) models.DeliveryResult {
	if f.doPanic {
		panic("delivery exploded")
	}
	f.payloads = append(f.payloads, payload)
	return f.result
}

type fakeTransformer struct{}

func (fakeTransformer) ApplyAll(_ context.Context, payload map[string]any) map[string]any {
	payload["transformed"] = true
	return payload
}

func httpCode(code int) *int { return &code }

func successResult() models.DeliveryResult {
	return models.DeliveryResult{Success: true, HTTPCode: httpCode(200), Body: "ok", ExecutionMs: 12}
}

func serverErrorResult() models.DeliveryResult {
	return models.DeliveryResult{
		Success:  false,
		HTTPCode: httpCode(500),
		Body:     "boom",
		Error:    "Internal Server Error: API encountered an error - Response: boom",
	}
}

type orchestratorFixture struct {
	orch      *Orchestrator
	directory *fakeDirectory
	logs      *fakeSyncLog
	queue     *fakeEnqueuer
	deliverer *fakeDeliverer
}

func newOrchestratorFixture(result models.DeliveryResult, transformEnabled bool) *orchestratorFixture {
	directory := &fakeDirectory{
		users: map[int64]*models.UserRecord{
			7: {ID: 7, FirstName: "Ann", Email: "a@x.com"},
		},
	}
	logs := &fakeSyncLog{}
	queue := &fakeEnqueuer{}
	deliverer := &fakeDeliverer{result: result}

	orch := NewOrchestrator(
		directory,
		logs,
		queue,
		deliverer,
		fakeTransformer{},
		mapper.NewPayloadBuilder("firstname:first_name\nemail:email"),
		transformEnabled,
		0,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return &orchestratorFixture{orch, directory, logs, queue, deliverer}
}

func TestSyncUserSuccess(t *testing.T) {
	fx := newOrchestratorFixture(successResult(), false)

	result := fx.orch.SyncUser(context.Background(), 7, models.EventUserCreated, nil)

	require.True(t, result.Success)
	assert.Empty(t, fx.queue.calls, "successful syncs must not enqueue")

	require.Len(t, fx.logs.entries, 1)
	entry := fx.logs.entries[0]
	assert.Equal(t, int64(7), entry.UserID)
	assert.Nil(t, entry.QueueID)
	assert.Equal(t, models.EventUserCreated, entry.EventType)
	assert.True(t, entry.Success)
	assert.Equal(t, 200, *entry.HTTPCode)
	assert.NotEmpty(t, entry.CorrelationID)

	require.Len(t, fx.deliverer.payloads, 1)
	assert.Equal(t, "Ann", fx.deliverer.payloads[0]["first_name"])
	assert.Equal(t, int64(7), fx.deliverer.payloads[0]["moodle_id"])
}

func TestSyncUserFailureEnqueuesExactlyOnce(t *testing.T) {
	fx := newOrchestratorFixture(serverErrorResult(), false)

	result := fx.orch.SyncUser(context.Background(), 7, models.EventManual, nil)

	require.False(t, result.Success)
	require.Len(t, fx.queue.calls, 1)

	call := fx.queue.calls[0]
	assert.Equal(t, int64(7), call.UserID)
	assert.Equal(t, models.EventManual, call.EventType)
	assert.Contains(t, call.LastError, "Internal Server Error")

	var queued map[string]any
	require.NoError(t, json.Unmarshal(call.Payload, &queued))
	assert.Equal(t, "Ann", queued["first_name"])
	assert.Equal(t, "a@x.com", queued["email"])
	assert.Equal(t, float64(7), queued["moodle_id"])

	require.Len(t, fx.logs.entries, 1)
	assert.False(t, fx.logs.entries[0].Success)
	assert.Equal(t, 500, *fx.logs.entries[0].HTTPCode)
}

func TestSyncUserFromQueueNeverReEnqueues(t *testing.T) {
	fx := newOrchestratorFixture(serverErrorResult(), false)

	queueID := int64(42)
	result := fx.orch.SyncUser(context.Background(), 7, models.EventManual, &queueID)

	require.False(t, result.Success)
	assert.Empty(t, fx.queue.calls, "queue replays must not enqueue again")

	require.Len(t, fx.logs.entries, 1)
	require.NotNil(t, fx.logs.entries[0].QueueID)
	assert.Equal(t, int64(42), *fx.logs.entries[0].QueueID)
}

func TestSyncUserMissingUser(t *testing.T) {
	fx := newOrchestratorFixture(successResult(), false)

	result := fx.orch.SyncUser(context.Background(), 999, models.EventManual, nil)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "not found")
	assert.Empty(t, fx.queue.calls, "missing users are not retried")
	assert.Empty(t, fx.deliverer.payloads, "no delivery should be attempted")

	require.Len(t, fx.logs.entries, 1)
	assert.Equal(t, models.EventError, fx.logs.entries[0].EventType)
	assert.False(t, fx.logs.entries[0].Success)
}

func TestSyncUserRecoversFromPanic(t *testing.T) {
	fx := newOrchestratorFixture(models.DeliveryResult{}, false)
	fx.deliverer.doPanic = true

	var result models.DeliveryResult
	require.NotPanics(t, func() {
		result = fx.orch.SyncUser(context.Background(), 7, models.EventUserUpdated, nil)
	})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "panic during sync")

	require.Len(t, fx.logs.entries, 1)
	assert.False(t, fx.logs.entries[0].Success)
	assert.Contains(t, fx.logs.entries[0].ErrorMessage, "delivery exploded")
}

func TestSyncUserAppliesTransformsWhenEnabled(t *testing.T) {
	fx := newOrchestratorFixture(successResult(), true)

	fx.orch.SyncUser(context.Background(), 7, models.EventManual, nil)

	require.Len(t, fx.deliverer.payloads, 1)
	assert.Equal(t, true, fx.deliverer.payloads[0]["transformed"])
}

func TestSyncUserSkipsTransformsWhenDisabled(t *testing.T) {
	fx := newOrchestratorFixture(successResult(), false)

	fx.orch.SyncUser(context.Background(), 7, models.EventManual, nil)

	require.Len(t, fx.deliverer.payloads, 1)
	assert.NotContains(t, fx.deliverer.payloads[0], "transformed")
}

func TestSyncUsersAggregatesResults(t *testing.T) {
	fx := newOrchestratorFixture(successResult(), false)
	fx.directory.users[8] = &models.UserRecord{ID: 8, FirstName: "Bo"}

	results := fx.orch.SyncUsers(context.Background(), []int64{7, 8, 999}, models.EventManual, 0)

	assert.Equal(t, 3, results.Total)
	assert.Equal(t, 2, results.Succeeded)
	assert.Equal(t, 1, results.Failed)
	assert.Len(t, results.Details, 3)
	assert.True(t, results.Details[7].Success)
	assert.False(t, results.Details[999].Success)
}

func TestSyncUsersHonorsContextCancellation(t *testing.T) {
	fx := newOrchestratorFixture(successResult(), false)
	fx.directory.users[8] = &models.UserRecord{ID: 8}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := fx.orch.SyncUsers(ctx, []int64{7, 8}, models.EventManual, time.Second)

	// The first sync runs, the inter-request delay observes cancellation
	assert.Equal(t, 1, results.Succeeded+results.Failed)
}

func TestSyncAllEnqueueOnly(t *testing.T) {
	fx := newOrchestratorFixture(successResult(), false)
	fx.directory.activeIDs = []int64{7}

	results, err := fx.orch.SyncAll(context.Background(), 100, true)
	require.NoError(t, err)

	assert.Equal(t, 1, results.Succeeded)
	require.Len(t, fx.queue.calls, 1)
	assert.Empty(t, fx.deliverer.payloads, "enqueue-only must not deliver inline")
}
