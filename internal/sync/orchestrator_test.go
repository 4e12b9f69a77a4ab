package sync

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/offlinehq/recbox/internal/recordsdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrchestrator(t *testing.T, api RemoteAPI, collections ...string) (*Orchestrator, *Store) {
	t.Helper()
	store := newTestStore(t)
	limiter := testLimiter()
	fetcher := NewFetcher(api, limiter)
	fetcher.maxRetries = 0
	queue := NewOfflineQueue(store, api, limiter)
	metrics := NewMetricsTracker(store, 300*time.Second, 10)
	return NewOrchestrator(store, fetcher, queue, metrics, collections), store
}

// blockingRemote parks every list call until released, so tests can observe
// an in-flight sync.
type blockingRemote struct {
	fakeRemote
	started chan struct{}
	release chan struct{}
}

func newBlockingRemote() *blockingRemote {
	return &blockingRemote{
		started: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
}

func (b *blockingRemote) ListRecords(ctx context.Context, params *recordsdk.ListRecordsParams) (*recordsdk.ListRecordsResponse, error) {
	b.started <- struct{}{}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.release:
	}
	return b.fakeRemote.ListRecords(ctx, params)
}

func TestSyncCollectionSuccess(t *testing.T) {
	base := time.Now()
	api := &fakeRemote{
		pages: []*recordsdk.ListRecordsResponse{
			{Records: []*recordsdk.Record{wireRecord("a", "c1", base), wireRecord("b", "c1", base)}},
		},
	}
	orch, store := newTestOrchestrator(t, api, "c1")
	ctx := context.Background()

	result, err := orch.SyncCollection(ctx, "c1", nil)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.IsSuccess())
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, "c1", result.CollectionID)
	assert.False(t, result.FinishedAt.IsZero())

	records, err := store.Records(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, records, 2)

	_, ok, err := store.Checkpoint(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, ok, "checkpoint written after the batch committed")

	status := orch.Status("c1")
	assert.Equal(t, StateCompleted, status.State)
	assert.Equal(t, 1.0, status.Progress)
}

func TestSyncCollectionUnknown(t *testing.T) {
	orch, _ := newTestOrchestrator(t, &fakeRemote{}, "c1")

	result, err := orch.SyncCollection(context.Background(), "nope", nil)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrUnknownCollection)
}

func TestSyncCollectionNotConfigured(t *testing.T) {
	orch := &Orchestrator{}

	_, err := orch.SyncCollection(context.Background(), "c1", nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestSyncCollectionFailureAsResult(t *testing.T) {
	api := &fakeRemote{
		errs: []error{&recordsdk.APIError{Code: recordsdk.CodeAccessDenied, StatusCode: http.StatusForbidden}},
	}
	orch, store := newTestOrchestrator(t, api, "c1")
	ctx := context.Background()

	result, err := orch.SyncCollection(ctx, "c1", nil)
	require.NoError(t, err, "runtime failures travel in the result, not the error")
	require.NotNil(t, result)
	assert.False(t, result.IsSuccess())
	require.Len(t, result.Errors, 1)
	assert.Equal(t, OpFetch, result.Errors[0].Op)

	// the failed run must not move the checkpoint
	_, ok, err := store.Checkpoint(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, ok)

	status := orch.Status("c1")
	assert.Equal(t, StateFailed, status.State)
	assert.Equal(t, 1, status.RetryCount)

	// the failed attempt still lands in the history
	history, err := orch.Metrics().History(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.False(t, history[0].IsSuccess())
}

func TestSyncCollectionExclusive(t *testing.T) {
	api := newBlockingRemote()
	orch, _ := newTestOrchestrator(t, api, "c1")
	ctx := context.Background()

	done := make(chan *SyncResult, 1)
	go func() {
		result, err := orch.SyncCollection(ctx, "c1", nil)
		require.NoError(t, err)
		done <- result
	}()

	<-api.started
	assert.True(t, orch.status.Syncing("c1"))

	_, err := orch.SyncCollection(ctx, "c1", nil)
	assert.ErrorIs(t, err, ErrSyncInProgress)

	close(api.release)
	result := <-done
	assert.True(t, result.IsSuccess())

	// once finished the collection can sync again
	_, err = orch.SyncCollection(ctx, "c1", nil)
	assert.NoError(t, err)
}

func TestSyncCollectionCancel(t *testing.T) {
	api := newBlockingRemote()
	orch, store := newTestOrchestrator(t, api, "c1")
	ctx := context.Background()

	done := make(chan *SyncResult, 1)
	go func() {
		result, err := orch.SyncCollection(ctx, "c1", nil)
		require.NoError(t, err)
		done <- result
	}()

	<-api.started
	require.True(t, orch.CancelSync("c1"))

	result := <-done
	assert.False(t, result.IsSuccess())
	assert.Equal(t, StateCancelled, orch.Status("c1").State)

	// nothing was committed
	records, err := store.Records(context.Background(), "c1")
	require.NoError(t, err)
	assert.Empty(t, records)
	_, ok, err := store.Checkpoint(context.Background(), "c1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSyncCollectionIncrementalAfterCheckpoint(t *testing.T) {
	base := time.Now()
	api := &fakeRemote{
		pages: []*recordsdk.ListRecordsResponse{
			{Records: []*recordsdk.Record{wireRecord("a", "c1", base)}},
			{Records: []*recordsdk.Record{wireRecord("b", "c1", base.Add(time.Minute))}},
		},
	}
	orch, _ := newTestOrchestrator(t, api, "c1")
	ctx := context.Background()

	strategy, err := orch.DefaultStrategy(ctx, "c1", PriorityNormal)
	require.NoError(t, err)
	assert.False(t, strategy.Incremental, "first sync is full")

	_, err = orch.SyncCollection(ctx, "c1", nil)
	require.NoError(t, err)

	strategy, err = orch.DefaultStrategy(ctx, "c1", PriorityNormal)
	require.NoError(t, err)
	assert.True(t, strategy.Incremental)
	assert.False(t, strategy.LastSyncAt.IsZero())

	// the incremental run only sees changed items and must not delete "a"
	result, err := orch.SyncCollection(ctx, "c1", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 0, result.Deleted)
}

func TestSyncCollectionDrainsQueueAfterSuccess(t *testing.T) {
	api := &fakeRemote{}
	orch, store := newTestOrchestrator(t, api, "c1")
	ctx := context.Background()

	require.NoError(t, orch.queue.Enqueue(ctx, &OfflineChange{
		ItemID: "a", CollectionID: "c1", ChangeType: ChangeUpdate,
		Payload: map[string]any{"title": "offline edit"},
	}))

	_, err := orch.SyncCollection(ctx, "c1", nil)
	require.NoError(t, err)

	pending, err := store.PendingChangeCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
	assert.Len(t, api.updated, 1)
}

func TestSyncAll(t *testing.T) {
	api := &fakeRemote{
		errs: []error{&recordsdk.APIError{Code: recordsdk.CodeAccessDenied, StatusCode: http.StatusForbidden}},
	}
	orch, _ := newTestOrchestrator(t, api, "c1", "c2")

	results := orch.SyncAll(context.Background())
	require.Len(t, results, 2, "a failed collection does not stop the rest")

	failed := 0
	for _, r := range results {
		if !r.IsSuccess() {
			failed++
		}
	}
	assert.Equal(t, 1, failed)
}

func TestReplayQueued(t *testing.T) {
	api := &fakeRemote{}
	orch, _ := newTestOrchestrator(t, api, "c1")
	ctx := context.Background()

	require.NoError(t, orch.queue.Enqueue(ctx, &OfflineChange{
		ItemID: "a", CollectionID: "c1", ChangeType: ChangeUpdate,
		Payload: map[string]any{"k": "v"},
	}))

	results, err := orch.ReplayQueued(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Replayed())
}

func TestSetDefaultPolicyAppliesToStrategy(t *testing.T) {
	orch, _ := newTestOrchestrator(t, &fakeRemote{}, "c1")
	orch.SetDefaultPolicy(PolicyLatestWins, nil)

	strategy, err := orch.DefaultStrategy(context.Background(), "c1", PriorityHigh)
	require.NoError(t, err)
	assert.Equal(t, PolicyLatestWins, strategy.Policy)
	assert.Equal(t, PriorityHigh, strategy.Priority)
}
