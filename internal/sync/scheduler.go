package sync

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultSyncInterval is the minimum interval between automatic sync sweeps.
const DefaultSyncInterval = 60 * time.Second

// Scheduler periodically finds stale collections and enqueues background
// incremental syncs for them. Priority only weighs ordering and logging; it
// never preempts an in-flight sync.
type Scheduler struct {
	orch     *Orchestrator
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func NewScheduler(orch *Orchestrator, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	return &Scheduler{
		orch:     orch,
		interval: interval,
	}
}

// StartAutomaticSync begins the recurring staleness sweep. Calling it while
// running is a no-op.
func (s *Scheduler) StartAutomaticSync(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		// a timer and not a ticker, to avoid queued ticks when a sweep
		// takes longer than the interval
		timer := time.NewTimer(s.interval)
		defer timer.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-timer.C:
				s.sweep(loopCtx)
				timer.Reset(s.interval)
			}
		}
	}()

	slog.Info("scheduler start", "interval", s.interval)
}

// StopAutomaticSync stops the sweep loop and waits for it to exit. In-flight
// syncs are not cancelled.
func (s *Scheduler) StopAutomaticSync() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	slog.Info("scheduler stop")
}

// sweep syncs every stale collection without an in-flight sync, sequentially.
func (s *Scheduler) sweep(ctx context.Context) {
	metrics := s.orch.Metrics()

	for _, collectionID := range s.orch.Collections() {
		if ctx.Err() != nil {
			return
		}
		if s.orch.Status(collectionID).State == StateSyncing {
			continue
		}

		stale, err := metrics.IsDataStale(ctx, collectionID)
		if err != nil {
			slog.Error("scheduler staleness check failed", "collection", collectionID, "error", err)
			continue
		}
		if !stale {
			continue
		}

		strategy, err := s.orch.DefaultStrategy(ctx, collectionID, PriorityBackground)
		if err != nil {
			slog.Error("scheduler strategy failed", "collection", collectionID, "error", err)
			continue
		}
		strategy.Policy = PolicyRemoteWins

		slog.Debug("scheduler enqueue", "collection", collectionID, "priority", strategy.Priority)
		if _, err := s.orch.SyncCollection(ctx, collectionID, strategy); err != nil {
			// ErrSyncInProgress just means someone beat us to it
			slog.Debug("scheduler sync skipped", "collection", collectionID, "error", err)
		}
	}
}
