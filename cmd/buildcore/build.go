package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/buildcore-project/buildcore/internal/artifactcache"
	"github.com/buildcore-project/buildcore/internal/cachekey"
	"github.com/buildcore-project/buildcore/internal/element"
	"github.com/buildcore-project/buildcore/internal/fileutil"
	"github.com/buildcore-project/buildcore/internal/logger"
	"github.com/buildcore-project/buildcore/internal/project"
	"github.com/buildcore-project/buildcore/internal/queue"
	"github.com/buildcore-project/buildcore/internal/registry"
	"github.com/buildcore-project/buildcore/internal/registry/kinds"
	"github.com/buildcore-project/buildcore/internal/sandbox"
	"github.com/buildcore-project/buildcore/internal/sandbox/dockerdriver"
	"github.com/buildcore-project/buildcore/internal/scheduler"
)

func newBuildCommand(flags *globalFlags) *cobra.Command {
	var keepGoing bool
	var sandboxKind string
	var dockerImage string
	var remoteEndpoint, remoteBucket, remoteAccessKey, remoteSecretKey string
	var remoteTLS bool

	cmd := &cobra.Command{
		Use:   "build <element-file>...",
		Short: "Track, fetch, and build the given elements and their dependencies",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := flags.newLogger()
			runID := uuid.NewString()
			log = log.With("run_id", runID)

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
			log.Infof("resolved %d elements from %d target(s)", len(elements), len(args))

			runner, closeRunner, err := newRunner(sandboxKind, dockerImage)
			if err != nil {
				return err
			}
			defer closeRunner()

			var remote artifactcache.Remote
			if remoteEndpoint != "" {
				remote, err = artifactcache.NewS3Remote(remoteEndpoint, remoteAccessKey, remoteSecretKey, remoteBucket, remoteTLS)
				if err != nil {
					return fmt.Errorf("configure remote cache: %w", err)
				}
			}

			policy := scheduler.FailFast
			if keepGoing {
				policy = scheduler.KeepGoing
			}

			chain := buildChain(cfg, store, remote, runner, filepath.Join(flags.cacheDir, "logs"))
			sched := scheduler.New(scheduler.Config{Failure: policy}, chain, elements)

			ctx, cancel := contextWithSignals()
			defer cancel()
			ctx = logger.WithLogger(ctx, log)

			if err := sched.Run(ctx); err != nil {
				return fmt.Errorf("build failed: %w", err)
			}
			log.Info("build completed successfully")
			return nil
		},
	}

	cmd.Flags().BoolVar(&keepGoing, "keep-going", false, "continue building independent elements after a failure")
	cmd.Flags().StringVar(&sandboxKind, "sandbox", "chroot", "sandbox driver: chroot or docker")
	cmd.Flags().StringVar(&dockerImage, "docker-image", "", "base image for the docker sandbox driver")
	cmd.Flags().StringVar(&remoteEndpoint, "remote-endpoint", "", "S3-compatible endpoint for a remote artifact cache (enables pull/push)")
	cmd.Flags().StringVar(&remoteBucket, "remote-bucket", "buildcore", "bucket name on the remote artifact cache")
	cmd.Flags().StringVar(&remoteAccessKey, "remote-access-key", "", "access key for the remote artifact cache")
	cmd.Flags().StringVar(&remoteSecretKey, "remote-secret-key", "", "secret key for the remote artifact cache")
	cmd.Flags().BoolVar(&remoteTLS, "remote-tls", true, "use TLS when connecting to the remote artifact cache")
	return cmd
}

func newRunner(kind, dockerImage string) (sandbox.Runner, func(), error) {
	switch kind {
	case "docker":
		d, err := dockerdriver.New(dockerImage)
		if err != nil {
			return nil, nil, err
		}
		return d, func() { _ = d.Close() }, nil
	default:
		return sandbox.NewChrootDriver(""), func() {}, nil
	}
}

// buildChain wires the TRACK/FETCH/PULL/BUILD/PUSH pipeline in scheduler
// order. PullQueue/PushQueue are only inserted when a remote cache was
// configured.
func buildChain(cfg *project.Config, store artifactcache.Store, remote artifactcache.Remote, runner sandbox.Runner, logsDir string) []queue.Queue {
	chain := []queue.Queue{
		&queue.TrackQueue{},
		&queue.FetchQueue{SkipCached: true},
	}
	if remote != nil {
		chain = append(chain, &queue.PullQueue{Store: store, Remote: remote})
	}
	chain = append(chain,
		&queue.BuildQueue{
			Runner:    runner,
			Store:     store,
			Commands:  resolveCommands,
			StageDeps: stageDeps(cfg, store),
			Logs:      logsDir,
		},
	)
	if remote != nil {
		chain = append(chain, &queue.PushQueue{Store: store, Remote: remote})
	}
	return chain
}

// resolveCommands looks up an element's kind and, if it runs shell
// commands, returns its step list; kinds like "compose" that only union
// trees return an empty list, which the build queue treats as an
// immediate successful no-op build.
func resolveCommands(e *element.Element) ([]string, error) {
	k, err := registry.NewElementKind(e.KindID, e.Config)
	if err != nil {
		return nil, err
	}
	lister, ok := k.(kinds.CommandLister)
	if !ok {
		return nil, nil
	}
	return lister.ShellCommands(), nil
}

// stageDeps returns a StageDeps closure that extracts every build
// dependency's cached tree read-only under /buildcore/deps/<name>,
// provisions a fresh write directory for the build's own output, and — for
// element kinds that declare themselves a union (kinds.Unioner, i.e.
// "compose" and "stack") — copies every dependency's tree into that output
// directory before any sandbox command runs, so a compose/stack element's
// committed artifact actually contains its dependencies' files rather than
// an empty directory.
func stageDeps(cfg *project.Config, store artifactcache.Store) func(*element.Element) ([]sandbox.Mount, string, error) {
	return func(e *element.Element) ([]sandbox.Mount, string, error) {
		var mounts []sandbox.Mount
		depDirs := make(map[string]string, len(e.BuildDeps))
		for _, dep := range e.BuildDeps {
			key := dep.CacheKey()
			if key == cachekey.Absent {
				return nil, "", fmt.Errorf("dependency %q has no cache key", dep.Name)
			}
			dir, err := store.Extract(key)
			if err != nil {
				return nil, "", fmt.Errorf("extract dependency %q: %w", dep.Name, err)
			}
			depDirs[dep.Name] = dir
			mounts = append(mounts, sandbox.Mount{
				Source:   dir,
				Target:   filepath.Join("/buildcore/deps", fileutil.SafeName(dep.Name)),
				ReadOnly: true,
			})
		}

		outDir, err := os.MkdirTemp("", "buildcore-out-*")
		if err != nil {
			return nil, "", err
		}

		if unionsDeps(e) {
			if err := unionDepTrees(cfg, e, depDirs, outDir); err != nil {
				return nil, "", err
			}
		}

		mounts = append(mounts, sandbox.Mount{Source: outDir, Target: "/buildcore/output"})
		return mounts, outDir, nil
	}
}

// unionsDeps reports whether e's kind implements kinds.Unioner and opts
// into having its dependency trees unioned into the build output.
func unionsDeps(e *element.Element) bool {
	k, err := registry.NewElementKind(e.KindID, e.Config)
	if err != nil {
		return false
	}
	u, ok := k.(kinds.Unioner)
	return ok && u.UnionDeps()
}

// unionDepTrees copies every build dependency's extracted tree into outDir,
// in dependency order. A path staged by more than one dependency is an
// overlap: when the project sets fail-on-overlap, an overlap fails the
// build unless relPath matches a split-rule domain, which marks it as
// intentionally shared across dependencies.
func unionDepTrees(cfg *project.Config, e *element.Element, depDirs map[string]string, outDir string) error {
	owner := make(map[string]string, len(depDirs))
	for _, dep := range e.BuildDeps {
		dir := depDirs[dep.Name]
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			if rel == "." {
				return nil
			}
			dest := filepath.Join(outDir, rel)
			if d.IsDir() {
				return os.MkdirAll(dest, 0o755)
			}

			if prevOwner, exists := owner[rel]; exists && prevOwner != dep.Name {
				if cfg.FailOnOverlap && !matchesAnySplitRule(cfg, rel) {
					return fmt.Errorf("element %q: path %q staged by both %q and %q", e.Name, rel, prevOwner, dep.Name)
				}
			}
			owner[rel] = dep.Name

			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return err
			}
			return copyFileContents(path, dest)
		})
		if err != nil {
			return fmt.Errorf("union dependency %q into %q: %w", dep.Name, e.Name, err)
		}
	}
	return nil
}

func matchesAnySplitRule(cfg *project.Config, relPath string) bool {
	for domain := range cfg.SplitRules {
		if cfg.MatchesSplitRule(domain, relPath) {
			return true
		}
	}
	return false
}

func copyFileContents(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, info.Mode())
}
