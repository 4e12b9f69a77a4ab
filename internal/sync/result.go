package sync

import (
	"time"
)

// Operation names the remote or local action an error occurred in.
type Operation string

const (
	OpFetch    Operation = "fetch"
	OpCreate   Operation = "create"
	OpUpdate   Operation = "update"
	OpDelete   Operation = "delete"
	OpConflict Operation = "conflict"
)

// Resolution is the outcome chosen for one conflicting item.
type Resolution string

const (
	ResolutionLocalWins  Resolution = "localWins"
	ResolutionRemoteWins Resolution = "remoteWins"
	ResolutionMerged     Resolution = "merged"
	ResolutionDeferred   Resolution = "deferred"
)

// SyncConflict is an immutable audit record of one detected conflict and how
// it was resolved.
type SyncConflict struct {
	ItemID     string
	Local      *Record
	Remote     *Record
	Resolution Resolution
	Timestamp  time.Time
}

// SyncError is a non-fatal, item-scoped error recorded during a sync run.
// ItemID is empty for collection-level failures (e.g. a failed fetch).
type SyncError struct {
	ItemID    string
	Op        Operation
	Err       error
	Timestamp time.Time
}

func (e *SyncError) Error() string {
	if e.ItemID == "" {
		return string(e.Op) + ": " + e.Err.Error()
	}
	return string(e.Op) + " " + e.ItemID + ": " + e.Err.Error()
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

func newSyncError(itemID string, op Operation, err error) *SyncError {
	return &SyncError{
		ItemID:    itemID,
		Op:        op,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// SyncResult is the immutable outcome of one sync attempt for a collection.
type SyncResult struct {
	CollectionID string
	StartedAt    time.Time
	FinishedAt   time.Time
	Created      int
	Updated      int
	Deleted      int
	Conflicts    []*SyncConflict
	Errors       []*SyncError
}

// Duration is the wall time the sync attempt took.
func (r *SyncResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// IsSuccess reports whether the attempt completed without any errors.
func (r *SyncResult) IsSuccess() bool {
	return len(r.Errors) == 0
}

// ItemsSynced is the total number of applied mutations.
func (r *SyncResult) ItemsSynced() int {
	return r.Created + r.Updated + r.Deleted
}

// OfflineChange is one durable queued local mutation awaiting replay.
type OfflineChange struct {
	ID           string
	ItemID       string
	CollectionID string
	ChangeType   ChangeType
	Timestamp    time.Time
	Payload      map[string]any
}

// ChangeType is the kind of queued local mutation.
type ChangeType string

const (
	ChangeCreate ChangeType = "create"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// OfflineChangeResult is the replay outcome for one queued change.
type OfflineChangeResult struct {
	Change *OfflineChange
	Err    error
}

// Replayed reports whether the change was confirmed by the remote service.
func (r *OfflineChangeResult) Replayed() bool {
	return r.Err == nil
}
