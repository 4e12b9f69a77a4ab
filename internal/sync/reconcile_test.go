package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReconciler() *Reconciler {
	return NewReconciler(NewConflictResolver())
}

func TestReconcileCreatesMissing(t *testing.T) {
	base := time.Now()
	r := newTestReconciler()

	remote := []*Record{
		remoteRecord("a", "c1", base),
		remoteRecord("b", "c1", base),
	}

	out := r.Reconcile(nil, remote, FullSync("c1"))
	assert.Equal(t, 2, out.Created)
	assert.Equal(t, 0, out.Updated)
	assert.Equal(t, 0, out.Deleted)
	assert.Len(t, out.Batch.Upserts, 2)
	assert.Empty(t, out.Conflicts)
	assert.Empty(t, out.Errors)
}

func TestReconcileOverwritesWithoutLocalEdits(t *testing.T) {
	base := time.Now()
	r := newTestReconciler()

	local := []*Record{localRecord("a", "c1", base, false)}
	remote := []*Record{remoteRecord("a", "c1", base.Add(time.Minute))}

	out := r.Reconcile(local, remote, FullSync("c1"))
	assert.Equal(t, 1, out.Updated)
	assert.Empty(t, out.Conflicts, "no pending local edits means no conflict")
	require.Len(t, out.Batch.Upserts, 1)
	assert.Equal(t, remote[0].Fields, out.Batch.Upserts[0].Fields)
}

func TestReconcileIdempotent(t *testing.T) {
	base := time.Now()
	r := newTestReconciler()

	remote := []*Record{
		remoteRecord("a", "c1", base),
		remoteRecord("b", "c1", base),
	}

	first := r.Reconcile(nil, remote, FullSync("c1"))
	require.Equal(t, 2, first.Created)

	// local state now equals remote: a second run is a no-op
	local := first.Batch.Upserts
	second := r.Reconcile(local, remote, FullSync("c1"))
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 0, second.Updated)
	assert.Equal(t, 0, second.Deleted)
	assert.True(t, second.Batch.IsEmpty())
}

func TestReconcileIncrementalNeverDeletes(t *testing.T) {
	base := time.Now()
	r := newTestReconciler()

	local := []*Record{
		localRecord("a", "c1", base, false),
		localRecord("b", "c1", base, false),
		localRecord("c", "c1", base, false),
	}
	// only b changed since the checkpoint; a partial result set cannot
	// prove a and c are gone
	remote := []*Record{remoteRecord("b", "c1", base.Add(time.Minute))}

	out := r.Reconcile(local, remote, IncrementalSync("c1", base))
	assert.Equal(t, 0, out.Deleted)
	assert.Empty(t, out.Batch.Deletes)
	assert.Equal(t, 1, out.Updated)
}

func TestReconcileFullSyncDeletesAbsent(t *testing.T) {
	base := time.Now()
	r := newTestReconciler()

	local := []*Record{
		localRecord("a", "c1", base, false),
		localRecord("b", "c1", base, false),
		localRecord("c", "c1", base, false),
	}
	remote := []*Record{
		remoteRecord("a", "c1", base),
		remoteRecord("c", "c1", base),
	}

	out := r.Reconcile(local, remote, FullSync("c1"))
	assert.Equal(t, []string{"b"}, out.Batch.Deletes)
	assert.Equal(t, 1, out.Deleted)
}

func TestReconcileFullSyncKeepsDirtyAbsent(t *testing.T) {
	base := time.Now()
	r := newTestReconciler()

	// "b" is a queued offline create: it has no remote counterpart yet and
	// must survive a full sync
	local := []*Record{
		localRecord("a", "c1", base, false),
		localRecord("b", "c1", base, true),
	}
	remote := []*Record{remoteRecord("a", "c1", base)}

	out := r.Reconcile(local, remote, FullSync("c1"))
	assert.Empty(t, out.Batch.Deletes)
	assert.Equal(t, 0, out.Deleted)
}

func TestReconcileConflictRemoteWins(t *testing.T) {
	base := time.Now()
	r := newTestReconciler()

	local := []*Record{localRecord("a", "c1", base.Add(time.Minute), true)}
	remote := []*Record{remoteRecord("a", "c1", base)}

	out := r.Reconcile(local, remote, FullSync("c1"))
	require.Len(t, out.Conflicts, 1)
	assert.Equal(t, "a", out.Conflicts[0].ItemID)
	assert.Equal(t, ResolutionRemoteWins, out.Conflicts[0].Resolution)
	require.Len(t, out.Batch.Upserts, 1)
	assert.Equal(t, remote[0].Fields, out.Batch.Upserts[0].Fields)
	assert.Equal(t, 1, out.Updated)
}

func TestReconcileConflictRecordedEvenWhenRemoteWins(t *testing.T) {
	base := time.Now()
	r := newTestReconciler()

	local := []*Record{localRecord("a", "c1", base.Add(time.Minute), true)}
	remote := []*Record{remoteRecord("a", "c1", base)}

	out := r.Reconcile(local, remote, FullSync("c1"))
	require.Len(t, out.Conflicts, 1, "every detected conflict is reported, whatever the resolution")
	assert.Same(t, local[0], out.Conflicts[0].Local)
	assert.Same(t, remote[0], out.Conflicts[0].Remote)
	assert.False(t, out.Conflicts[0].Timestamp.IsZero())
}

func TestReconcilePolicyMisconfigurationKeepsLocal(t *testing.T) {
	base := time.Now()
	r := newTestReconciler()

	local := []*Record{localRecord("a", "c1", base.Add(time.Minute), true)}
	remote := []*Record{remoteRecord("a", "c1", base)}

	strategy := FullSync("c1").WithPolicy(PolicyMerge) // no rules

	out := r.Reconcile(local, remote, strategy)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, OpConflict, out.Errors[0].Op)
	assert.Empty(t, out.Batch.Upserts, "the local value stays untouched")
	assert.Equal(t, 0, out.Updated)
}

func TestReconcileMixed(t *testing.T) {
	base := time.Now()
	r := newTestReconciler()

	local := []*Record{
		localRecord("keep", "c1", base, false),
		localRecord("update", "c1", base, false),
		localRecord("gone", "c1", base, false),
	}
	remote := []*Record{
		remoteRecord("keep", "c1", base),
		remoteRecord("update", "c1", base.Add(time.Minute)),
		remoteRecord("new", "c1", base),
	}
	// local "keep" matches remote byte for byte except fields; unchanged()
	// compares dirty, archived and timestamp only
	local[0].Fields = remote[0].Fields

	out := r.Reconcile(local, remote, FullSync("c1"))
	assert.Equal(t, 1, out.Created)
	assert.Equal(t, 1, out.Updated)
	assert.Equal(t, []string{"gone"}, out.Batch.Deletes)
}
