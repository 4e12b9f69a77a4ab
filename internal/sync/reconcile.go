package sync

import (
	"sort"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

// ReconcileOutcome is the diff produced by one reconcile run: the mutation
// batch for the store plus counts, audit conflicts, and item-level errors.
type ReconcileOutcome struct {
	Batch     *ChangeBatch
	Created   int
	Updated   int
	Deleted   int
	Conflicts []*SyncConflict
	Errors    []*SyncError
}

// Reconciler computes the per-collection diff between local state and a
// fetched remote result set, applying the conflict resolver per overlapping
// item. It is pure: persistence belongs to the caller.
type Reconciler struct {
	resolver *ConflictResolver
}

func NewReconciler(resolver *ConflictResolver) *Reconciler {
	return &Reconciler{resolver: resolver}
}

// Reconcile diffs the remote result set against local state.
//
// Remote items present locally are overwritten from remote, unless the item
// carries unsynced local edits that conflict, in which case the resolver
// decides. Remote items absent locally are created. Deletions are computed
// only for full (non-incremental) syncs: a partial "changed since" result set
// cannot prove absence, so incremental runs never delete.
func (r *Reconciler) Reconcile(local, remote []*Record, strategy *Strategy) *ReconcileOutcome {
	out := &ReconcileOutcome{Batch: &ChangeBatch{}}

	localByID := make(map[string]*Record, len(local))
	for _, rec := range local {
		localByID[rec.ID] = rec
	}

	remoteIDs := mapset.NewThreadUnsafeSet[string]()
	for _, rem := range remote {
		remoteIDs.Add(rem.ID)

		loc, exists := localByID[rem.ID]
		if !exists {
			out.Batch.Upserts = append(out.Batch.Upserts, rem)
			out.Created++
			continue
		}

		if r.resolver.DetectConflict(loc, rem) {
			resolved, err := r.resolver.Resolve(loc, rem, strategy)
			if err != nil {
				// policy misconfiguration: keep the local value, record
				// the failure, move on to the next item
				out.Errors = append(out.Errors, newSyncError(loc.ID, OpConflict, err))
				continue
			}
			out.Conflicts = append(out.Conflicts, &SyncConflict{
				ItemID:     loc.ID,
				Local:      loc,
				Remote:     rem,
				Resolution: resolved.Resolution,
				Timestamp:  time.Now(),
			})
			out.Errors = append(out.Errors, resolved.Errs...)
			out.Batch.Upserts = append(out.Batch.Upserts, resolved.Record)
			out.Updated++
			continue
		}

		if unchanged(loc, rem) {
			continue
		}

		// no pending local edits, or remote is at least as new: overwrite
		out.Batch.Upserts = append(out.Batch.Upserts, rem)
		out.Updated++
	}

	if !strategy.Incremental {
		localIDs := mapset.NewThreadUnsafeSet[string]()
		for _, rec := range local {
			// records with unsynced local edits are not deleted: a queued
			// offline create has no remote counterpart yet
			if rec.Dirty {
				continue
			}
			localIDs.Add(rec.ID)
		}

		gone := localIDs.Difference(remoteIDs).ToSlice()
		sort.Strings(gone)
		out.Batch.Deletes = gone
		out.Deleted = len(gone)
	}

	return out
}

// unchanged reports whether the local record already matches the remote one,
// making the overwrite a no-op.
func unchanged(local, remote *Record) bool {
	return !local.Dirty &&
		local.Archived == remote.Archived &&
		local.LastModified.Equal(remote.LastModified)
}
