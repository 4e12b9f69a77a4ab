package sync

import (
	"context"
	"sync"
	"time"
)

// State is the sync state of one collection.
type State string

const (
	StateIdle      State = "idle"
	StateSyncing   State = "syncing"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Status is a snapshot of one collection's sync state. Payload fields are
// meaningful only for their state: Progress while Syncing, CompletedAt when
// Completed, Err and RetryCount when Failed.
type Status struct {
	State       State
	Progress    float64
	CompletedAt time.Time
	Err         error
	RetryCount  int
	LastUpdated time.Time
}

type statusEntry struct {
	status Status
	cancel context.CancelFunc
}

// StatusRegistry tracks per-collection sync status and enforces at most one
// active sync per collection. Check-and-set is atomic under the registry
// mutex; the in-flight run's cancel func lives here so cancellation is
// per-collection.
type StatusRegistry struct {
	mu      sync.Mutex
	entries map[string]*statusEntry
}

func NewStatusRegistry() *StatusRegistry {
	return &StatusRegistry{
		entries: make(map[string]*statusEntry),
	}
}

func (s *StatusRegistry) entry(collectionID string) *statusEntry {
	e, ok := s.entries[collectionID]
	if !ok {
		e = &statusEntry{status: Status{State: StateIdle}}
		s.entries[collectionID] = e
	}
	return e
}

// Begin transitions a collection to Syncing and returns a cancellable context
// for the run. It fails fast with ErrSyncInProgress when a sync is already in
// flight for the collection.
func (s *StatusRegistry) Begin(ctx context.Context, collectionID string) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entry(collectionID)
	if e.status.State == StateSyncing {
		return nil, ErrSyncInProgress
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.status.State = StateSyncing
	e.status.Progress = 0
	e.status.Err = nil
	e.status.LastUpdated = time.Now()
	return runCtx, nil
}

// SetProgress updates the progress of an in-flight sync.
func (s *StatusRegistry) SetProgress(collectionID string, progress float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entry(collectionID)
	if e.status.State != StateSyncing {
		return
	}
	e.status.Progress = progress
	e.status.LastUpdated = time.Now()
}

// Complete transitions a collection to Completed and resets its retry count.
func (s *StatusRegistry) Complete(collectionID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entry(collectionID)
	e.release()
	e.status.State = StateCompleted
	e.status.Progress = 1
	e.status.CompletedAt = at
	e.status.Err = nil
	e.status.RetryCount = 0
	e.status.LastUpdated = time.Now()
}

// Fail transitions a collection to Failed, incrementing the retry count kept
// across consecutive failures.
func (s *StatusRegistry) Fail(collectionID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entry(collectionID)
	e.release()
	e.status.State = StateFailed
	e.status.Err = err
	e.status.RetryCount++
	e.status.LastUpdated = time.Now()
}

// SetCancelled records that an in-flight sync was cancelled.
func (s *StatusRegistry) SetCancelled(collectionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entry(collectionID)
	e.release()
	e.status.State = StateCancelled
	e.status.LastUpdated = time.Now()
}

// Cancel signals cancellation to the named collection's in-flight run.
// Returns false when no sync is in flight.
func (s *StatusRegistry) Cancel(collectionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[collectionID]
	if !ok || e.status.State != StateSyncing || e.cancel == nil {
		return false
	}
	e.cancel()
	return true
}

// CancelAll signals cancellation to every in-flight run.
func (s *StatusRegistry) CancelAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.entries {
		if e.status.State == StateSyncing && e.cancel != nil {
			e.cancel()
			n++
		}
	}
	return n
}

// Get returns a snapshot of the collection's status.
func (s *StatusRegistry) Get(collectionID string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[collectionID]
	if !ok {
		return Status{State: StateIdle}
	}
	return e.status
}

// Syncing reports whether the collection has a sync in flight.
func (s *StatusRegistry) Syncing(collectionID string) bool {
	return s.Get(collectionID).State == StateSyncing
}

// SyncingCount returns the number of collections with a sync in flight.
func (s *StatusRegistry) SyncingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.entries {
		if e.status.State == StateSyncing {
			n++
		}
	}
	return n
}

// release drops the run's cancel func once the run reached a terminal state.
func (e *statusEntry) release() {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}
