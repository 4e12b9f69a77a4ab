package sync

import (
	"errors"
	"fmt"
)

var (
	// ErrSyncInProgress is returned when a sync is requested for a
	// collection that already has one in flight. Callers should not queue
	// behind it; the running sync covers them.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrNotConfigured indicates the engine was built without a remote
	// transport or local store. This is a programming error, not a runtime
	// condition, and is the one case that surfaces synchronously.
	ErrNotConfigured = errors.New("sync: engine not configured")

	// ErrUnknownCollection is returned for a collection the engine was
	// never configured to track.
	ErrUnknownCollection = errors.New("sync: unknown collection")
)

// FetchError wraps a transport or pagination failure during remote fetch.
type FetchError struct {
	CollectionID string
	Err          error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.CollectionID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ReconcileError wraps a local persistence failure while applying a batch.
type ReconcileError struct {
	CollectionID string
	Err          error
}

func (e *ReconcileError) Error() string {
	return fmt.Sprintf("reconcile %s: %v", e.CollectionID, e.Err)
}

func (e *ReconcileError) Unwrap() error { return e.Err }

// ConflictError indicates a resolution policy misconfiguration, e.g. a merge
// policy without rules or a combinator failure.
type ConflictError struct {
	ItemID string
	Field  string
	Err    error
}

func (e *ConflictError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("conflict %s field %q: %v", e.ItemID, e.Field, e.Err)
	}
	return fmt.Sprintf("conflict %s: %v", e.ItemID, e.Err)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// QueueReplayError wraps a remote rejection of a queued offline mutation.
type QueueReplayError struct {
	ChangeID string
	Err      error
}

func (e *QueueReplayError) Error() string {
	return fmt.Sprintf("replay change %s: %v", e.ChangeID, e.Err)
}

func (e *QueueReplayError) Unwrap() error { return e.Err }
