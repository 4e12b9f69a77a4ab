// Package daemon wires the configuration, the record service client, the
// local store, and the sync engine into a long-running process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"
	"github.com/offlinehq/recbox/internal/config"
	"github.com/offlinehq/recbox/internal/recordsdk"
	"github.com/offlinehq/recbox/internal/sync"
	"github.com/offlinehq/recbox/internal/utils"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

type Daemon struct {
	config    *config.Config
	sdk       *recordsdk.Client
	store     *sync.Store
	orch      *sync.Orchestrator
	scheduler *sync.Scheduler
	lock      *flock.Flock
}

// New builds a daemon from a validated config. Nothing is opened or locked
// until Start.
func New(cfg *config.Config) (*Daemon, error) {
	sdk, err := recordsdk.New(&recordsdk.Options{
		BaseURL:   cfg.ServerURL,
		AccountID: cfg.AccountID,
		Tokens:    recordsdk.StaticToken(cfg.RefreshToken),
	})
	if err != nil {
		return nil, fmt.Errorf("create sdk client: %w", err)
	}

	store := sync.NewStore(cfg.StorePath())
	limiter := sync.NewRateLimiter(cfg.RequestRate())
	fetcher := sync.NewFetcher(sdk.Records, limiter)
	queue := sync.NewOfflineQueue(store, sdk.Records, limiter)
	metrics := sync.NewMetricsTracker(store, cfg.StaleThreshold(), config.DefaultHistorySize)

	orch := sync.NewOrchestrator(store, fetcher, queue, metrics, cfg.Collections)
	orch.SetBatchSize(cfg.Batch())

	if cfg.MergeRulesPath != "" {
		rules, err := sync.LoadMergeRules(cfg.MergeRulesPath)
		if err != nil {
			return nil, fmt.Errorf("load merge rules: %w", err)
		}
		orch.SetDefaultPolicy(sync.PolicyMerge, rules)
	}

	return &Daemon{
		config:    cfg,
		sdk:       sdk,
		store:     store,
		orch:      orch,
		scheduler: sync.NewScheduler(orch, cfg.SyncInterval()),
		lock:      flock.New(cfg.LockPath()),
	}, nil
}

// Orchestrator exposes the engine for one-shot CLI use.
func (d *Daemon) Orchestrator() *sync.Orchestrator {
	return d.orch
}

// Open acquires the data-dir lock and opens the local store without starting
// the scheduler. Used by one-shot commands.
func (d *Daemon) Open() error {
	if err := utils.EnsureParent(d.config.LockPath()); err != nil {
		return fmt.Errorf("prepare lock dir: %w", err)
	}

	locked, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire data dir lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another recbox instance holds %s", d.config.LockPath())
	}

	if err := d.store.Open(); err != nil {
		d.lock.Unlock()
		return err
	}
	return nil
}

// Start runs the daemon until ctx is cancelled: an initial sync of every
// collection, then the automatic staleness scheduler.
func (d *Daemon) Start(ctx context.Context) error {
	slog.Info("daemon start", "dataDir", d.config.DataDir, "collections", len(d.config.Collections))

	if err := d.Open(); err != nil {
		return err
	}

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		// run an initial pass before the timer loop takes over
		slog.Info("running initial sync")
		results := d.orch.SyncAll(egCtx)
		for _, res := range results {
			if !res.IsSuccess() {
				slog.Warn("initial sync errors", "collection", res.CollectionID, "errors", len(res.Errors))
			}
		}

		d.scheduler.StartAutomaticSync(egCtx)
		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return d.Stop(shutdownCtx)
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("daemon failure", "error", err)
		return err
	}

	slog.Info("daemon stopped")
	return nil
}

// Stop cancels in-flight syncs, stops the scheduler, and releases resources.
func (d *Daemon) Stop(ctx context.Context) error {
	d.scheduler.StopAutomaticSync()
	d.orch.CancelAll()
	d.sdk.Close()

	done := make(chan error, 1)
	go func() {
		done <- d.Close()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// Close releases the store and the data-dir lock.
func (d *Daemon) Close() error {
	err := d.store.Close()
	if unlockErr := d.lock.Unlock(); unlockErr != nil && err == nil {
		err = unlockErr
	}
	return err
}
