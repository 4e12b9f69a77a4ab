package sync

import (
	"time"

	"github.com/offlinehq/recbox/internal/recordsdk"
)

// Record is the local cache representation of one item in a collection.
type Record struct {
	ID           string
	CollectionID string
	Fields       map[string]any
	LastModified time.Time
	Archived     bool

	// Dirty marks unsynced local edits. A record stays dirty until its
	// pending change is confirmed replayed against the remote service.
	Dirty bool
}

// Clone returns a deep-enough copy: the fields map is copied, values are
// shared.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Fields = make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		cp.Fields[k] = v
	}
	return &cp
}

// fromWire converts a wire record into a clean (not dirty) local record.
func fromWire(w *recordsdk.Record) *Record {
	return &Record{
		ID:           w.ID,
		CollectionID: w.CollectionID,
		Fields:       w.Fields,
		LastModified: w.LastModified,
		Archived:     w.Archived,
		Dirty:        false,
	}
}

// ChangeBatch is the set of local mutations produced by one reconcile run.
// The store applies a batch in a single transaction, all-or-nothing.
type ChangeBatch struct {
	Upserts []*Record
	Deletes []string // record IDs
}

// IsEmpty reports whether the batch carries no mutations.
func (b *ChangeBatch) IsEmpty() bool {
	return b == nil || (len(b.Upserts) == 0 && len(b.Deletes) == 0)
}
