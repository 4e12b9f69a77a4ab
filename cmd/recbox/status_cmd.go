package main

import (
	"fmt"
	"time"

	"github.com/offlinehq/recbox/internal/sync"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newStatusCmd())
}

// recbox status reads straight from the local store, so it works whether or
// not a daemon is running.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show per-collection sync state",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromViper()
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			store := sync.NewStore(cfg.StorePath())
			if err := store.Open(); err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			metrics := sync.NewMetricsTracker(store, cfg.StaleThreshold(), 0)

			for _, id := range cfg.Collections {
				lastSync, err := metrics.LastSyncAt(ctx, id)
				if err != nil {
					return err
				}

				stale, err := metrics.IsDataStale(ctx, id)
				if err != nil {
					return err
				}

				rate, err := metrics.SuccessRate(ctx, id)
				if err != nil {
					return err
				}

				last := "never"
				if !lastSync.IsZero() {
					last = fmt.Sprintf("%s ago", time.Since(lastSync).Round(time.Second))
				}

				freshness := green("fresh")
				if stale {
					freshness = red("stale")
				}

				fmt.Printf("%s: %s, last sync %s, success rate %.0f%%\n",
					cyan(id), freshness, last, rate*100)
			}

			pending, err := store.PendingChangeCount(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("offline queue: %d pending change(s)\n", pending)

			return nil
		},
	}
}
