package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/adrg/xdg"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/buildcore-project/buildcore/internal/artifactcache"
	"github.com/buildcore-project/buildcore/internal/logger"
	"github.com/buildcore-project/buildcore/internal/project"
	_ "github.com/buildcore-project/buildcore/internal/registry/kinds"
)

// globalFlags carries the persistent flags every subcommand reads from.
type globalFlags struct {
	projectDir  string
	cacheDir    string
	debug       bool
	quiet       bool
	format      string
	metricsAddr string
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "buildcore",
		Short: "Content-addressed build orchestrator",
		Long:  "buildcore tracks, fetches, builds, and caches a project's elements as a DAG.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flags.metricsAddr != "" {
				serveMetrics(flags.metricsAddr)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&flags.projectDir, "project-dir", ".", "project root directory (containing project.conf)")
	root.PersistentFlags().StringVar(&flags.cacheDir, "cache-dir", defaultCacheDir(), "artifact cache directory")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "enable debug logging")
	root.PersistentFlags().BoolVarP(&flags.quiet, "quiet", "q", false, "omit timestamps from log output (messages are still printed)")
	root.PersistentFlags().StringVar(&flags.format, "log-format", "text", "log output format: text or json")
	root.PersistentFlags().StringVar(&flags.metricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090)")

	root.AddCommand(newBuildCommand(flags))
	root.AddCommand(newShellCommand(flags))
	root.AddCommand(newFetchCommand(flags))
	root.AddCommand(newTrackCommand(flags))
	root.AddCommand(newShowCacheKeyCommand(flags))
	root.AddCommand(newCacheCommand(flags))
	root.AddCommand(newVersionCommand())

	return root
}

func defaultCacheDir() string {
	dir, err := xdg.CacheFile("buildcore")
	if err != nil {
		return filepath.Join(os.TempDir(), "buildcore-cache")
	}
	return dir
}

func (f *globalFlags) newLogger() logger.Logger {
	opts := []logger.Option{logger.WithFormat(f.format)}
	if f.debug {
		opts = append(opts, logger.WithDebug())
	}
	if f.quiet {
		opts = append(opts, logger.WithQuiet())
	}
	return logger.NewLogger(opts...)
}

func (f *globalFlags) loadProject() (*project.Config, error) {
	return project.Load(f.projectDir)
}

func (f *globalFlags) openStore() (*artifactcache.LocalStore, error) {
	if err := os.MkdirAll(f.cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return artifactcache.Open(f.cacheDir)
}

// contextWithSignals returns a context canceled on SIGINT/SIGTERM, so a
// build interrupted mid-flight tears its sandboxes down cleanly instead of
// leaving scratch directories and mounts behind.
func contextWithSignals() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		_ = http.ListenAndServe(addr, mux)
	}()
}
