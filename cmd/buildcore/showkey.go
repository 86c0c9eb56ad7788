package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/buildcore-project/buildcore/internal/cachekey"
	"github.com/buildcore-project/buildcore/internal/project"
)

func newShowCacheKeyCommand(flags *globalFlags) *cobra.Command {
	var strong bool

	cmd := &cobra.Command{
		Use:   "show-cache-key <element-file>...",
		Short: "Print each target's computed cache key without building it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			for _, e := range roots {
				key := e.CacheKey()
				if strong {
					key = e.StrongKey()
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", key, e.Name)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strong, "strong", false, "print the strong key (folds in runtime deps) instead of the weak key")
	return cmd
}
