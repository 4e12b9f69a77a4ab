package main

import (
	"fmt"
	"time"

	"github.com/offlinehq/recbox/internal/daemon"
	"github.com/offlinehq/recbox/internal/sync"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newSyncCmd())
}

// recbox sync [collection...] runs a one-shot sync and exits.
func newSyncCmd() *cobra.Command {
	var full bool
	var policy string

	cmd := &cobra.Command{
		Use:   "sync [collection...]",
		Short: "Run a one-shot sync and exit",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromViper()
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			d, err := daemon.New(cfg)
			if err != nil {
				return err
			}
			if err := d.Open(); err != nil {
				return err
			}
			defer d.Close()

			orch := d.Orchestrator()

			collections := args
			if len(collections) == 0 {
				collections = orch.Collections()
			}

			failed := 0
			for _, id := range collections {
				strategy, err := orch.DefaultStrategy(cmd.Context(), id, sync.PriorityNormal)
				if err != nil {
					return err
				}
				if full {
					strategy = sync.FullSync(id)
				}
				if policy != "" {
					strategy = strategy.WithPolicy(sync.ConflictPolicy(policy))
				}

				result, err := orch.SyncCollection(cmd.Context(), id, strategy)
				if err != nil {
					return err
				}

				printResult(result)
				if !result.IsSuccess() {
					failed++
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d collections had errors", failed, len(collections))
			}
			return nil
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().BoolVarP(&full, "full", "f", false, "force a full sync instead of incremental")
	cmd.Flags().StringVarP(&policy, "policy", "p", "", "conflict policy override (remoteWins, localWins, latestWins)")

	return cmd
}

func printResult(res *sync.SyncResult) {
	state := green("ok")
	if !res.IsSuccess() {
		state = red("failed")
	}
	fmt.Printf("%s %s: %d created, %d updated, %d deleted, %d conflicts, %d errors (%s)\n",
		state, cyan(res.CollectionID),
		res.Created, res.Updated, res.Deleted,
		len(res.Conflicts), len(res.Errors),
		res.Duration().Round(time.Millisecond))
}
