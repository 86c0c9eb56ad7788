package queue

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/buildcore-project/buildcore/internal/cachekey"
	"github.com/buildcore-project/buildcore/internal/element"
	"github.com/buildcore-project/buildcore/internal/errs"
	"github.com/buildcore-project/buildcore/internal/fileutil"
	"github.com/buildcore-project/buildcore/internal/logger"
	"github.com/buildcore-project/buildcore/internal/sandbox"
	"github.com/buildcore-project/buildcore/internal/stringutil"
)

// BuildResult carries the sandbox outcome through to Done.
type BuildResult struct {
	StagedDir string
}

// BuildQueue assembles an element's dependency trees, invokes its kind's
// build commands inside a sandbox.Runner, and commits the result to the
// artifact store. Ready mirrors Element.Buildable: every build dependency
// must itself be cached and every source must be CACHED before a build may
// start.
type BuildQueue struct {
	Runner sandbox.Runner
	Store  interface {
		Commit(key cachekey.Key, dir string) error
	}
	// Commands resolves an element's kind-specific build step list. Kept as
	// an indirection rather than a direct registry.ElementKind type
	// assertion so the queue package does not need to import every concrete
	// kind implementation.
	Commands func(e *element.Element) ([]string, error)
	// StageDeps materializes e's build dependency trees into a fresh work
	// directory and returns mount entries for the sandbox, plus the
	// directory build output should be collected from afterward.
	StageDeps func(e *element.Element) ([]sandbox.Mount, string, error)
	// Logs is the directory per-element build logs are written under.
	// Empty disables the file half of the fan-out; step progress still
	// goes to stderr.
	Logs string
}

func (q *BuildQueue) Name() string    { return "Build" }
func (q *BuildQueue) QueueType() Type { return TypeBuild }

func (q *BuildQueue) Skip(e *element.Element) bool {
	return e.Cached(false)
}

func (q *BuildQueue) Ready(e *element.Element) bool {
	return e.Buildable()
}

func (q *BuildQueue) Process(ctx context.Context, e *element.Element) (Result, int, error) {
	cmds, err := q.Commands(e)
	if err != nil {
		return nil, 1, errs.Build(e.Name, "resolve-commands", err)
	}

	log, closeLog, err := q.elementLogger(e)
	if err != nil {
		return nil, 1, errs.Build(e.Name, "open-build-log", err)
	}
	defer closeLog()

	mounts, outDir, err := q.StageDeps(e)
	if err != nil {
		return nil, 1, errs.Build(e.Name, "stage-deps", err)
	}

	for i, cmd := range cmds {
		log.Infof("step %d/%d: %s", i+1, len(cmds), cmd)
		exitCode, err := q.Runner.Run(ctx, []string{"/bin/sh", "-c", cmd}, "/", e.Env, mounts, sandbox.FlagRootReadOnly)
		if err != nil {
			log.Errorf("step %d/%d could not run: %v", i+1, len(cmds), err)
			return nil, 1, errs.Build(e.Name, fmt.Sprintf("run-step-%d", i), err)
		}
		if exitCode != 0 {
			log.Errorf("step %d/%d exited %d", i+1, len(cmds), exitCode)
			return BuildResult{StagedDir: outDir}, exitCode, nil
		}
	}

	return BuildResult{StagedDir: outDir}, 0, nil
}

// elementLogger opens the per-element build log, fanned out to stderr and
// a file under q.Logs named after the element plus a short base58 digest of
// its cache key, so two elements whose names collapse to the same
// filesystem-safe name still get distinct logs.
func (q *BuildQueue) elementLogger(e *element.Element) (logger.Logger, func(), error) {
	if q.Logs == "" {
		return logger.NewLogger(), func() {}, nil
	}
	if err := os.MkdirAll(q.Logs, 0o755); err != nil {
		return nil, nil, err
	}
	name := fileutil.SafeName(e.Name)
	if key := e.CacheKey(); key != cachekey.Absent {
		name += "-" + stringutil.Base58EncodeSHA256(string(key))[:8]
	}
	l, closer, err := logger.NewElementLogger(filepath.Join(q.Logs, name+".log"), false)
	if err != nil {
		return nil, nil, err
	}
	return l, func() { _ = closer.Close() }, nil
}

func (q *BuildQueue) Done(e *element.Element, result Result, returncode int) bool {
	if returncode != 0 {
		return false
	}
	br, ok := result.(BuildResult)
	if !ok || br.StagedDir == "" {
		return false
	}
	key := e.CacheKey()
	if key == cachekey.Absent {
		return false
	}
	if err := q.Store.Commit(key, br.StagedDir); err != nil {
		return false
	}
	return true
}
