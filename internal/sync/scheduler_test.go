package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerSyncsStaleCollections(t *testing.T) {
	api := &fakeRemote{}
	orch, store := newTestOrchestrator(t, api, "c1")
	s := NewScheduler(orch, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// never synced counts as stale, so the first sweep syncs it
	s.StartAutomaticSync(ctx)
	defer s.StopAutomaticSync()

	require.Eventually(t, func() bool {
		_, ok, err := store.Checkpoint(context.Background(), "c1")
		return err == nil && ok
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, StateCompleted, orch.Status("c1").State)
}

func TestSchedulerSkipsFreshCollections(t *testing.T) {
	api := &fakeRemote{}
	orch, store := newTestOrchestrator(t, api, "c1")

	// freshly synced: the sweep must leave it alone
	require.NoError(t, store.SetCheckpoint(context.Background(), "c1", time.Now()))

	s := NewScheduler(orch, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.StartAutomaticSync(ctx)
	time.Sleep(100 * time.Millisecond)
	s.StopAutomaticSync()

	assert.Equal(t, 0, api.listCalls)
	assert.Equal(t, StateIdle, orch.Status("c1").State)
}

func TestSchedulerStartStopIdempotent(t *testing.T) {
	orch, _ := newTestOrchestrator(t, &fakeRemote{}, "c1")
	s := NewScheduler(orch, time.Hour)

	ctx := context.Background()
	s.StartAutomaticSync(ctx)
	s.StartAutomaticSync(ctx) // no-op

	s.StopAutomaticSync()
	s.StopAutomaticSync() // no-op
}

func TestSchedulerDefaultsInterval(t *testing.T) {
	orch, _ := newTestOrchestrator(t, &fakeRemote{}, "c1")
	s := NewScheduler(orch, 0)
	assert.Equal(t, DefaultSyncInterval, s.interval)
}
