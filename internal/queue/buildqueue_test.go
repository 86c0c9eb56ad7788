package queue_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildcore-project/buildcore/internal/cachekey"
	"github.com/buildcore-project/buildcore/internal/element"
	"github.com/buildcore-project/buildcore/internal/queue"
	"github.com/buildcore-project/buildcore/internal/sandbox"
)

type fakeRunner struct {
	exitCode int
	calls    int
}

func (f *fakeRunner) Run(ctx context.Context, cmd []string, cwd string, env map[string]string, mounts []sandbox.Mount, flags sandbox.Flags) (int, error) {
	f.calls++
	return f.exitCode, nil
}

type fakeCommitStore struct {
	committed map[cachekey.Key]string
}

func (f *fakeCommitStore) Commit(key cachekey.Key, dir string) error {
	f.committed[key] = dir
	return nil
}

func newBuildElement(cache *cachekey.Engine) *element.Element {
	e := element.New("proj:foo", "script", 1, cache, nil)
	e.Sources = nil // zero sources => Consistency() is Cached
	return e
}

func newBuildElementWithStore(cache *cachekey.Engine, store *fakeStore) *element.Element {
	e := element.New("proj:foo", "script", 1, cache, store)
	e.Sources = nil
	return e
}

func TestBuildQueue_ReadyRequiresBuildable(t *testing.T) {
	cache := cachekey.NewEngine(16)
	e := newBuildElement(cache)

	q := &queue.BuildQueue{}
	assert.True(t, q.Ready(e))
}

func TestBuildQueue_ProcessRunsEachCommandAndCommitsOnSuccess(t *testing.T) {
	cache := cachekey.NewEngine(16)
	e := newBuildElement(cache)

	runner := &fakeRunner{exitCode: 0}
	store := &fakeCommitStore{committed: map[cachekey.Key]string{}}

	q := &queue.BuildQueue{
		Runner: runner,
		Store:  store,
		Commands: func(e *element.Element) ([]string, error) {
			return []string{"make", "make install"}, nil
		},
		StageDeps: func(e *element.Element) ([]sandbox.Mount, string, error) {
			return nil, "/tmp/staged", nil
		},
	}

	result, code, err := q.Process(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, 2, runner.calls)

	ok := q.Done(e, result, code)
	assert.True(t, ok)
	assert.Contains(t, store.committed, e.CacheKey())
}

func TestBuildQueue_DoneFailsOnNonZeroExit(t *testing.T) {
	cache := cachekey.NewEngine(16)
	e := newBuildElement(cache)

	q := &queue.BuildQueue{}
	ok := q.Done(e, queue.BuildResult{StagedDir: "/tmp/x"}, 1)
	assert.False(t, ok)
}

func TestBuildQueue_ProcessStopsAtFirstFailingStep(t *testing.T) {
	cache := cachekey.NewEngine(16)
	e := newBuildElement(cache)

	runner := &fakeRunner{exitCode: 1}
	q := &queue.BuildQueue{
		Runner: runner,
		Commands: func(e *element.Element) ([]string, error) {
			return []string{"make", "make install"}, nil
		},
		StageDeps: func(e *element.Element) ([]sandbox.Mount, string, error) {
			return nil, "/tmp/staged", nil
		},
	}

	_, code, err := q.Process(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, 1, code)
	assert.Equal(t, 1, runner.calls)
}
