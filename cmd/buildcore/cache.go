package main

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/buildcore-project/buildcore/internal/artifactcache"
)

func newCacheCommand(flags *globalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and garbage-collect the local artifact cache",
	}

	root.AddCommand(newCacheLsCommand(flags))
	root.AddCommand(newCacheGCCommand(flags))
	return root
}

func newCacheLsCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List committed artifacts, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := flags.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			infos, err := store.Info()
			if err != nil {
				return err
			}
			for _, info := range infos {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %10d bytes  %s\n", info.Key, info.SizeBytes, info.CommittedAt.Format("2006-01-02T15:04:05Z07:00"))
			}
			return nil
		},
	}
}

func newCacheGCCommand(flags *globalFlags) *cobra.Command {
	var maxBytes int64

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Evict the oldest artifacts until the cache is under --max-bytes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if maxBytes <= 0 {
				return fmt.Errorf("--max-bytes must be set to a positive size")
			}

			store, err := flags.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			infos, err := store.Info()
			if err != nil {
				return err
			}

			total := lo.SumBy(infos, func(info artifactcache.ArtifactInfo) int64 { return info.SizeBytes })

			var evicted, freed int64
			for _, info := range infos {
				if total <= maxBytes {
					break
				}
				if err := store.Remove(info.Key); err != nil {
					return fmt.Errorf("evict %s: %w", info.Key, err)
				}
				total -= info.SizeBytes
				evicted++
				freed += info.SizeBytes
			}

			fmt.Fprintf(cmd.OutOrStdout(), "evicted %d artifact(s), freed %d bytes, %d bytes remaining\n", evicted, freed, total)
			return nil
		},
	}

	cmd.Flags().Int64Var(&maxBytes, "max-bytes", 0, "target cache size in bytes after eviction")
	return cmd
}
