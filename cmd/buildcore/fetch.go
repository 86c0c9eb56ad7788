package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/buildcore-project/buildcore/internal/cachekey"
	"github.com/buildcore-project/buildcore/internal/project"
	"github.com/buildcore-project/buildcore/internal/queue"
	"github.com/buildcore-project/buildcore/internal/scheduler"
)

func newFetchCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch <element-file>...",
		Short: "Track and download each source into its local staging directory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := flags.newLogger()

			cfg, err := flags.loadProject()
			if err != nil {
				return err
			}
			store, err := flags.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			cache := cachekey.NewEngine(4096)
			roots, err := project.LoadGraph(cfg, cache, store, args)
			if err != nil {
				return err
			}
			elements := project.Flatten(roots)

			chain := []queue.Queue{
				&queue.TrackQueue{},
				&queue.FetchQueue{SkipCached: true},
			}
			sched := scheduler.New(scheduler.Config{}, chain, elements)

			ctx, cancel := contextWithSignals()
			defer cancel()

			if err := sched.Run(ctx); err != nil {
				return fmt.Errorf("fetch failed: %w", err)
			}
			log.Info("fetch completed")
			return nil
		},
	}
	return cmd
}
