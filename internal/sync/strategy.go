package sync

import (
	"time"
)

// ConflictPolicy selects how overlapping edits are resolved. It is chosen per
// sync run, not per item.
type ConflictPolicy string

const (
	PolicyRemoteWins ConflictPolicy = "remoteWins"
	PolicyLocalWins  ConflictPolicy = "localWins"
	PolicyLatestWins ConflictPolicy = "latestWins"
	PolicyMerge      ConflictPolicy = "merge"
)

// Priority orders background scheduling urgency. It never preempts an
// in-flight sync.
type Priority int

const (
	PriorityBackground Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityImmediate
)

func (p Priority) String() string {
	switch p {
	case PriorityBackground:
		return "background"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityImmediate:
		return "immediate"
	default:
		return "unknown"
	}
}

// Strategy describes how one sync run should behave. Constructed fresh per
// invocation and never mutated.
type Strategy struct {
	CollectionID string
	LastSyncAt   time.Time // zero when the collection was never synced
	Incremental  bool
	Policy       ConflictPolicy
	MergeRules   *MergeRules // only consulted when Policy == PolicyMerge
	Priority     Priority
	BatchSize    int
}

// FullSync builds a strategy that fetches the entire remote set and
// reconciles by full set difference.
func FullSync(collectionID string) *Strategy {
	return &Strategy{
		CollectionID: collectionID,
		Incremental:  false,
		Policy:       PolicyRemoteWins,
		Priority:     PriorityNormal,
		BatchSize:    100,
	}
}

// IncrementalSync builds a strategy that fetches only items modified at or
// after lastSync. Incremental runs never delete local records.
func IncrementalSync(collectionID string, lastSync time.Time) *Strategy {
	return &Strategy{
		CollectionID: collectionID,
		LastSyncAt:   lastSync,
		Incremental:  true,
		Policy:       PolicyRemoteWins,
		Priority:     PriorityNormal,
		BatchSize:    100,
	}
}

// WithPolicy returns a copy of the strategy with the given conflict policy.
func (s *Strategy) WithPolicy(policy ConflictPolicy) *Strategy {
	cp := *s
	cp.Policy = policy
	return &cp
}

// WithPriority returns a copy of the strategy with the given priority.
func (s *Strategy) WithPriority(priority Priority) *Strategy {
	cp := *s
	cp.Priority = priority
	return &cp
}
