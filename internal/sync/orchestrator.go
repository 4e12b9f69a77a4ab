package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// progress checkpoints within one sync run
	progressFetched    = 0.5
	progressReconciled = 0.9

	// syncAllConcurrency caps concurrent collection syncs in SyncAll. The
	// shared rate limiter is the real ceiling anyway.
	syncAllConcurrency = 2
)

// Orchestrator owns one sync task per collection at a time. It drives the
// fetch/reconcile/persist sequence, tracks status, updates the checkpoint
// bookkeeping, records results, and drains the offline queue after a
// successful sync.
type Orchestrator struct {
	store       *Store
	fetcher     *Fetcher
	reconciler  *Reconciler
	queue       *OfflineQueue
	metrics     *MetricsTracker
	status      *StatusRegistry
	collections []string
	batchSize   int

	mu         sync.Mutex
	policy     ConflictPolicy
	mergeRules *MergeRules
}

func NewOrchestrator(store *Store, fetcher *Fetcher, queue *OfflineQueue, metrics *MetricsTracker, collections []string) *Orchestrator {
	return &Orchestrator{
		store:       store,
		fetcher:     fetcher,
		reconciler:  NewReconciler(NewConflictResolver()),
		queue:       queue,
		metrics:     metrics,
		status:      NewStatusRegistry(),
		collections: slices.Clone(collections),
		batchSize:   100,
		policy:      PolicyRemoteWins,
	}
}

// SetDefaultPolicy sets the conflict policy used when no strategy is passed.
func (o *Orchestrator) SetDefaultPolicy(policy ConflictPolicy, rules *MergeRules) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.policy = policy
	o.mergeRules = rules
}

// SetBatchSize sets the page size used for remote list calls.
func (o *Orchestrator) SetBatchSize(n int) {
	if n > 0 {
		o.batchSize = n
	}
}

// Collections returns the collections this engine tracks.
func (o *Orchestrator) Collections() []string {
	return slices.Clone(o.collections)
}

// Status returns the current sync status of a collection.
func (o *Orchestrator) Status(collectionID string) Status {
	return o.status.Get(collectionID)
}

// Metrics exposes the tracker for health queries.
func (o *Orchestrator) Metrics() *MetricsTracker {
	return o.metrics
}

func (o *Orchestrator) knows(collectionID string) bool {
	return slices.Contains(o.collections, collectionID)
}

// DefaultStrategy builds the strategy for a collection: incremental from the
// persisted checkpoint when one exists, full otherwise.
func (o *Orchestrator) DefaultStrategy(ctx context.Context, collectionID string, priority Priority) (*Strategy, error) {
	at, ok, err := o.store.Checkpoint(ctx, collectionID)
	if err != nil {
		return nil, err
	}

	var strategy *Strategy
	if ok {
		strategy = IncrementalSync(collectionID, at)
	} else {
		strategy = FullSync(collectionID)
	}

	o.mu.Lock()
	strategy.Policy = o.policy
	strategy.MergeRules = o.mergeRules
	o.mu.Unlock()
	strategy.Priority = priority
	strategy.BatchSize = o.batchSize
	return strategy, nil
}

// SyncCollection runs one sync for a collection. A second call while one is
// in flight fails immediately with ErrSyncInProgress rather than queuing.
//
// Runtime failures come back as a non-nil SyncResult with a non-empty Errors
// list and a nil error: that is the normal failure channel. A returned error
// means the call could not even begin (unknown collection, engine not
// configured, sync already in flight).
func (o *Orchestrator) SyncCollection(ctx context.Context, collectionID string, strategy *Strategy) (*SyncResult, error) {
	if o.store == nil || o.fetcher == nil {
		return nil, ErrNotConfigured
	}
	if !o.knows(collectionID) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, collectionID)
	}

	if strategy == nil {
		var err error
		strategy, err = o.DefaultStrategy(ctx, collectionID, PriorityNormal)
		if err != nil {
			return nil, err
		}
	}

	runCtx, err := o.status.Begin(ctx, collectionID)
	if err != nil {
		return nil, err
	}

	slog.Info("sync start", "collection", collectionID, "incremental", strategy.Incremental, "policy", strategy.Policy, "priority", strategy.Priority)
	result := &SyncResult{CollectionID: collectionID, StartedAt: time.Now()}

	// fetch
	var remote []*Record
	if strategy.Incremental && !strategy.LastSyncAt.IsZero() {
		remote, err = o.fetcher.FetchSince(runCtx, collectionID, strategy.LastSyncAt, strategy.BatchSize)
	} else {
		remote, err = o.fetcher.FetchAll(runCtx, collectionID, strategy.BatchSize)
	}
	if err != nil {
		return o.finish(ctx, runCtx, result, newSyncError("", OpFetch, err)), nil
	}
	o.status.SetProgress(collectionID, progressFetched)

	// reconcile
	local, err := o.store.Records(runCtx, collectionID)
	if err != nil {
		return o.finish(ctx, runCtx, result, newSyncError("", OpUpdate, &ReconcileError{CollectionID: collectionID, Err: err})), nil
	}

	outcome := o.reconciler.Reconcile(local, remote, strategy)
	result.Conflicts = outcome.Conflicts
	result.Errors = append(result.Errors, outcome.Errors...)

	// persist: all-or-nothing per collection per run
	if err := o.store.ApplyBatch(runCtx, collectionID, outcome.Batch); err != nil {
		return o.finish(ctx, runCtx, result, newSyncError("", OpUpdate, &ReconcileError{CollectionID: collectionID, Err: err})), nil
	}
	o.status.SetProgress(collectionID, progressReconciled)

	result.Created = outcome.Created
	result.Updated = outcome.Updated
	result.Deleted = outcome.Deleted

	// the checkpoint moves only after the batch committed; a crash between
	// the two leaves the previous checkpoint so the next run re-syncs
	now := time.Now()
	if err := o.store.SetCheckpoint(runCtx, collectionID, now); err != nil {
		return o.finish(ctx, runCtx, result, newSyncError("", OpUpdate, &ReconcileError{CollectionID: collectionID, Err: err})), nil
	}

	result.FinishedAt = time.Now()
	o.status.Complete(collectionID, now)
	o.record(ctx, result)

	slog.Info("sync done",
		"collection", collectionID,
		"created", result.Created,
		"updated", result.Updated,
		"deleted", result.Deleted,
		"conflicts", len(result.Conflicts),
		"errors", len(result.Errors),
		"took", result.Duration(),
	)

	// opportunistic queue drain
	o.drainQueue(ctx)

	return result, nil
}

// finish closes out a failed or cancelled run and records its result.
func (o *Orchestrator) finish(ctx, runCtx context.Context, result *SyncResult, syncErr *SyncError) *SyncResult {
	result.Errors = append(result.Errors, syncErr)
	result.FinishedAt = time.Now()

	if errors.Is(syncErr.Err, context.Canceled) || errors.Is(runCtx.Err(), context.Canceled) {
		slog.Warn("sync cancelled", "collection", result.CollectionID)
		o.status.SetCancelled(result.CollectionID)
	} else {
		slog.Error("sync failed", "collection", result.CollectionID, "error", syncErr.Err)
		o.status.Fail(result.CollectionID, syncErr.Err)
	}

	o.record(ctx, result)
	return result
}

func (o *Orchestrator) record(ctx context.Context, result *SyncResult) {
	if o.metrics == nil {
		return
	}
	if err := o.metrics.Record(context.WithoutCancel(ctx), result); err != nil {
		slog.Error("record sync result failed", "collection", result.CollectionID, "error", err)
	}
}

func (o *Orchestrator) drainQueue(ctx context.Context) {
	if o.queue == nil {
		return
	}
	results, err := o.queue.Replay(ctx)
	if err != nil {
		slog.Error("queue drain failed", "error", err)
		return
	}
	if len(results) == 0 {
		return
	}
	replayed, failed := 0, 0
	for _, r := range results {
		if r.Replayed() {
			replayed++
		} else {
			failed++
		}
	}
	slog.Info("queue drained", "replayed", replayed, "failed", failed)
}

// ReplayQueued drains the offline queue outside of a sync run, e.g. when
// connectivity resumes.
func (o *Orchestrator) ReplayQueued(ctx context.Context) ([]*OfflineChangeResult, error) {
	if o.queue == nil {
		return nil, ErrNotConfigured
	}
	return o.queue.Replay(ctx)
}

// SyncAll syncs every tracked collection with bounded concurrency,
// continuing past per-collection failures.
func (o *Orchestrator) SyncAll(ctx context.Context) []*SyncResult {
	g := new(errgroup.Group)
	g.SetLimit(syncAllConcurrency)

	var mu sync.Mutex
	results := make([]*SyncResult, 0, len(o.collections))

	for _, collectionID := range o.collections {
		g.Go(func() error {
			res, err := o.SyncCollection(ctx, collectionID, nil)
			if err != nil {
				slog.Warn("sync all skipped collection", "collection", collectionID, "error", err)
				return nil
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}

	g.Wait()
	return results
}

// CancelSync signals cancellation to the named collection's in-flight sync.
// Cancellation is cooperative: the transactional batch guarantees no partial
// reconciliation is committed.
func (o *Orchestrator) CancelSync(collectionID string) bool {
	return o.status.Cancel(collectionID)
}

// CancelAll signals cancellation to every in-flight sync and returns how many
// were signalled.
func (o *Orchestrator) CancelAll() int {
	return o.status.CancelAll()
}
