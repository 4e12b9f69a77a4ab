package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/offlinehq/recbox/internal/recordsdk"
)

// OfflineQueue is the durable list of pending local mutations awaiting replay
// against the remote service. Entries are consumed only on confirmed
// successful replay; failures leave them queued verbatim. The queue is
// serialized through a single owner: Enqueue and Replay never interleave.
type OfflineQueue struct {
	store   *Store
	api     RemoteAPI
	limiter *RateLimiter

	mu sync.Mutex
}

func NewOfflineQueue(store *Store, api RemoteAPI, limiter *RateLimiter) *OfflineQueue {
	return &OfflineQueue{
		store:   store,
		api:     api,
		limiter: limiter,
	}
}

// Enqueue appends a local mutation to the durable queue and marks the record
// dirty. An empty ID and timestamp are filled in.
func (q *OfflineQueue) Enqueue(ctx context.Context, change *OfflineChange) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if change.ID == "" {
		change.ID = uuid.NewString()
	}
	if change.Timestamp.IsZero() {
		change.Timestamp = time.Now()
	}

	if err := q.store.AppendChange(ctx, change); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}

	if err := q.store.MarkDirty(ctx, change.CollectionID, change.ItemID); err != nil {
		slog.Warn("queue mark dirty failed", "item", change.ItemID, "error", err)
	}

	slog.Debug("queue enqueued", "id", change.ID, "type", change.ChangeType, "collection", change.CollectionID, "item", change.ItemID)
	return nil
}

// Len returns the number of queued changes.
func (q *OfflineQueue) Len(ctx context.Context) (int, error) {
	return q.store.PendingChangeCount(ctx)
}

// Replay attempts every queued change in FIFO order. A failed change stays in
// the queue with its id and payload untouched and does not stop the rest; the
// outcome of each attempt is returned. No cross-item dependency resolution is
// attempted.
func (q *OfflineQueue) Replay(ctx context.Context) ([]*OfflineChangeResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	changes, err := q.store.PendingChanges(ctx)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	if len(changes) == 0 {
		return nil, nil
	}

	results := make([]*OfflineChangeResult, 0, len(changes))
	for _, change := range changes {
		if err := q.limiter.Acquire(ctx); err != nil {
			results = append(results, &OfflineChangeResult{Change: change, Err: err})
			continue
		}

		if err := q.replayOne(ctx, change); err != nil {
			slog.Warn("queue replay failed", "id", change.ID, "type", change.ChangeType, "error", err)
			results = append(results, &OfflineChangeResult{
				Change: change,
				Err:    &QueueReplayError{ChangeID: change.ID, Err: err},
			})
			continue
		}

		if err := q.store.RemoveChange(ctx, change.ID); err != nil {
			// replayed but not dequeued: it will replay again, the remote
			// service sees the same payload twice
			slog.Error("queue dequeue failed after replay", "id", change.ID, "error", err)
			results = append(results, &OfflineChangeResult{
				Change: change,
				Err:    &QueueReplayError{ChangeID: change.ID, Err: err},
			})
			continue
		}

		if err := q.store.ClearDirty(ctx, change.CollectionID, change.ItemID); err != nil {
			slog.Warn("queue clear dirty failed", "item", change.ItemID, "error", err)
		}

		slog.Debug("queue replayed", "id", change.ID, "type", change.ChangeType, "item", change.ItemID)
		results = append(results, &OfflineChangeResult{Change: change})
	}

	return results, nil
}

func (q *OfflineQueue) replayOne(ctx context.Context, change *OfflineChange) error {
	switch change.ChangeType {
	case ChangeCreate:
		created, err := q.api.CreateRecord(ctx, &recordsdk.CreateRecordRequest{
			CollectionID: change.CollectionID,
			Fields:       change.Payload,
		})
		if err != nil {
			return err
		}
		// The server assigns the canonical id. Swap the provisional row for
		// the acknowledged record so the cache holds a single copy.
		batch := &ChangeBatch{Upserts: []*Record{fromWire(created)}}
		if created.ID != change.ItemID {
			batch.Deletes = []string{change.ItemID}
		}
		if err := q.store.ApplyBatch(ctx, change.CollectionID, batch); err != nil {
			return fmt.Errorf("record %s created remotely, local rewrite failed: %w", created.ID, err)
		}
		return nil

	case ChangeUpdate:
		_, err := q.api.UpdateRecord(ctx, &recordsdk.UpdateRecordRequest{
			RecordID:     change.ItemID,
			CollectionID: change.CollectionID,
			Fields:       change.Payload,
		})
		return err

	case ChangeDelete:
		// deletes replay as archive updates, the service soft-deletes
		archived := true
		_, err := q.api.UpdateRecord(ctx, &recordsdk.UpdateRecordRequest{
			RecordID:     change.ItemID,
			CollectionID: change.CollectionID,
			Archived:     &archived,
		})
		return err

	default:
		return fmt.Errorf("unknown change type %q", change.ChangeType)
	}
}
