package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/buildcore-project/buildcore/internal/cachekey"
	"github.com/buildcore-project/buildcore/internal/project"
	"github.com/buildcore-project/buildcore/internal/queue"
	"github.com/buildcore-project/buildcore/internal/sandbox"
	"github.com/buildcore-project/buildcore/internal/scheduler"
)

// newShellCommand drops an interactive shell into a single element's
// staged sandbox once its build dependencies are cached, the one caller
// that actually varies sandbox.Flags instead of always running with the
// build queue's default.
func newShellCommand(flags *globalFlags) *cobra.Command {
	var asRoot, readOnlyRoot, networkEnabled bool
	var sandboxKind, dockerImage string

	cmd := &cobra.Command{
		Use:   "shell <element-file>",
		Short: "Open an interactive shell inside an element's sandbox",
		Args:  cobra.ExactArgs(1),
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
			target := roots[0]
			elements := project.Flatten(roots)

			runner, closeRunner, err := newRunner(sandboxKind, dockerImage)
			if err != nil {
				return err
			}
			defer closeRunner()

			chain := []queue.Queue{
				&queue.TrackQueue{},
				&queue.FetchQueue{SkipCached: true},
				&queue.BuildQueue{
					Runner:    runner,
					Store:     store,
					Commands:  resolveCommands,
					StageDeps: stageDeps(cfg, store),
					Logs:      filepath.Join(flags.cacheDir, "logs"),
				},
			}
			sched := scheduler.New(scheduler.Config{Failure: scheduler.KeepGoing}, chain, elements)

			ctx, cancel := contextWithSignals()
			defer cancel()

			if err := sched.Run(ctx); err != nil {
				return fmt.Errorf("stage dependencies: %w", err)
			}

			mounts, _, err := stageDeps(cfg, store)(target)
			if err != nil {
				return fmt.Errorf("stage dependencies: %w", err)
			}

			var shellFlags sandbox.Flags = sandbox.FlagInteractive
			if asRoot {
				shellFlags |= sandbox.FlagRoot
			}
			if readOnlyRoot {
				shellFlags |= sandbox.FlagRootReadOnly
			}
			if networkEnabled {
				shellFlags |= sandbox.FlagNetworkEnabled
			}

			code, err := runner.Run(ctx, []string{"/bin/sh"}, "/", target.Env, mounts, shellFlags)
			if err != nil {
				return fmt.Errorf("shell: %w", err)
			}
			if code != 0 {
				return fmt.Errorf("shell exited with code %d", code)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asRoot, "root", false, "run the shell as uid 0 inside the sandbox")
	cmd.Flags().BoolVar(&readOnlyRoot, "root-read-only", false, "remount the sandbox root read-only")
	cmd.Flags().BoolVar(&networkEnabled, "network", false, "allow outbound network access")
	cmd.Flags().StringVar(&sandboxKind, "sandbox", "chroot", "sandbox driver: chroot or docker")
	cmd.Flags().StringVar(&dockerImage, "docker-image", "", "base image for the docker sandbox driver")
	return cmd
}
