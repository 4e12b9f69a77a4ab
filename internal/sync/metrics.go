package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultStaleThreshold is how long after the last successful sync a
	// collection's cache counts as stale.
	DefaultStaleThreshold = 300 * time.Second

	// DefaultHistorySize bounds the per-collection result history.
	DefaultHistorySize = 50

	// maxTrackedCollections bounds in-memory history across collections.
	maxTrackedCollections = 256
)

type collectionHistory struct {
	mu      sync.Mutex
	results []*SyncResult // oldest first
}

// MetricsTracker records the outcome of every sync attempt and answers
// staleness and health queries. History is bounded (most recent N per
// collection) and persisted through the store so it survives restart; an LRU
// keeps the hot collections in memory.
type MetricsTracker struct {
	store          *Store
	staleThreshold time.Duration
	historySize    int
	cache          *lru.Cache[string, *collectionHistory]
}

func NewMetricsTracker(store *Store, staleThreshold time.Duration, historySize int) *MetricsTracker {
	if staleThreshold <= 0 {
		staleThreshold = DefaultStaleThreshold
	}
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	cache, _ := lru.New[string, *collectionHistory](maxTrackedCollections)
	return &MetricsTracker{
		store:          store,
		staleThreshold: staleThreshold,
		historySize:    historySize,
		cache:          cache,
	}
}

// Record appends a sync result to the bounded history.
func (m *MetricsTracker) Record(ctx context.Context, result *SyncResult) error {
	history, err := m.history(ctx, result.CollectionID)
	if err != nil {
		return err
	}

	history.mu.Lock()
	history.results = append(history.results, result)
	if excess := len(history.results) - m.historySize; excess > 0 {
		history.results = history.results[excess:]
	}
	history.mu.Unlock()

	if err := m.store.AppendResult(ctx, result, m.historySize); err != nil {
		return fmt.Errorf("persist result: %w", err)
	}
	return nil
}

// IsDataStale reports whether a collection was never synced or its last
// successful sync is older than the freshness threshold.
func (m *MetricsTracker) IsDataStale(ctx context.Context, collectionID string) (bool, error) {
	at, ok, err := m.store.Checkpoint(ctx, collectionID)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return time.Since(at) > m.staleThreshold, nil
}

// LastSyncAt returns the last successful sync timestamp, zero when never
// synced.
func (m *MetricsTracker) LastSyncAt(ctx context.Context, collectionID string) (time.Time, error) {
	at, _, err := m.store.Checkpoint(ctx, collectionID)
	return at, err
}

// AverageSyncDuration aggregates over the bounded history.
func (m *MetricsTracker) AverageSyncDuration(ctx context.Context, collectionID string) (time.Duration, error) {
	history, err := m.history(ctx, collectionID)
	if err != nil {
		return 0, err
	}

	history.mu.Lock()
	defer history.mu.Unlock()
	if len(history.results) == 0 {
		return 0, nil
	}

	var total time.Duration
	for _, r := range history.results {
		total += r.Duration()
	}
	return total / time.Duration(len(history.results)), nil
}

// SuccessRate is the fraction of recorded attempts with no errors, in [0,1].
func (m *MetricsTracker) SuccessRate(ctx context.Context, collectionID string) (float64, error) {
	history, err := m.history(ctx, collectionID)
	if err != nil {
		return 0, err
	}

	history.mu.Lock()
	defer history.mu.Unlock()
	if len(history.results) == 0 {
		return 0, nil
	}

	ok := 0
	for _, r := range history.results {
		if r.IsSuccess() {
			ok++
		}
	}
	return float64(ok) / float64(len(history.results)), nil
}

// TotalItemsSynced sums applied mutations over the bounded history.
func (m *MetricsTracker) TotalItemsSynced(ctx context.Context, collectionID string) (int, error) {
	history, err := m.history(ctx, collectionID)
	if err != nil {
		return 0, err
	}

	history.mu.Lock()
	defer history.mu.Unlock()

	total := 0
	for _, r := range history.results {
		total += r.ItemsSynced()
	}
	return total, nil
}

// History returns a copy of the recorded results, oldest first.
func (m *MetricsTracker) History(ctx context.Context, collectionID string) ([]*SyncResult, error) {
	history, err := m.history(ctx, collectionID)
	if err != nil {
		return nil, err
	}

	history.mu.Lock()
	defer history.mu.Unlock()
	out := make([]*SyncResult, len(history.results))
	copy(out, history.results)
	return out, nil
}

// history returns the in-memory history for a collection, hydrating it from
// the store on first access after a restart.
func (m *MetricsTracker) history(ctx context.Context, collectionID string) (*collectionHistory, error) {
	if h, ok := m.cache.Get(collectionID); ok {
		return h, nil
	}

	persisted, err := m.store.ResultHistory(ctx, collectionID, m.historySize)
	if err != nil {
		return nil, fmt.Errorf("load result history: %w", err)
	}

	// persisted rows come newest first
	h := &collectionHistory{results: make([]*SyncResult, 0, len(persisted))}
	for i := len(persisted) - 1; i >= 0; i-- {
		h.results = append(h.results, persisted[i])
	}

	if prev, ok, _ := m.cache.PeekOrAdd(collectionID, h); ok {
		return prev, nil
	}
	return h, nil
}
