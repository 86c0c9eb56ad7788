package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildcore-project/buildcore/internal/artifactcache"
	"github.com/buildcore-project/buildcore/internal/backoff"
	"github.com/buildcore-project/buildcore/internal/cachekey"
	"github.com/buildcore-project/buildcore/internal/errs"
	"github.com/buildcore-project/buildcore/internal/queue"
	"github.com/buildcore-project/buildcore/internal/source"
)

type stubSourceKind struct {
	trackRef string
	fetchErr error
}

func (k *stubSourceKind) ID() string         { return "stub" }
func (k *stubSourceKind) FormatVersion() int { return 1 }
func (k *stubSourceKind) Track(ctx context.Context, url, previousRef string) (string, error) {
	return k.trackRef, nil
}
func (k *stubSourceKind) Fetch(ctx context.Context, url, ref, localDir string) error {
	return k.fetchErr
}

// flakySourceKind fails Fetch with a retryable error failuresBeforeSuccess
// times before succeeding, to exercise FetchQueue's retry wiring.
type flakySourceKind struct {
	failuresBeforeSuccess int
	attempts              int
}

func (k *flakySourceKind) ID() string         { return "flaky" }
func (k *flakySourceKind) FormatVersion() int { return 1 }
func (k *flakySourceKind) Track(ctx context.Context, url, previousRef string) (string, error) {
	return "ref", nil
}
func (k *flakySourceKind) Fetch(ctx context.Context, url, ref, localDir string) error {
	k.attempts++
	if k.attempts <= k.failuresBeforeSuccess {
		return errs.Source("", "flaky-fetch", true, assert.AnError)
	}
	return nil
}

func TestFetchQueue_ProcessRetriesRetryableErrorsUntilSuccess(t *testing.T) {
	kind := &flakySourceKind{failuresBeforeSuccess: 2}
	s := source.New(kind, "http://example.test/a.tar", "ref")
	e := newBuildElement(cachekey.NewEngine(16))
	e.Sources = []*source.Source{s}

	q := &queue.FetchQueue{Retry: backoff.NewConstantPolicy(time.Millisecond)}
	_, code, err := q.Process(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, 3, kind.attempts)
}

func TestFetchQueue_ProcessStopsRetryingNonRetryableError(t *testing.T) {
	kind := &stubSourceKind{trackRef: "x", fetchErr: errs.Source("", "fetch", false, assert.AnError)}
	s := source.New(kind, "http://example.test/a.tar", "x")
	e := newBuildElement(cachekey.NewEngine(16))
	e.Sources = []*source.Source{s}

	q := &queue.FetchQueue{Retry: backoff.NewConstantPolicy(time.Hour)}
	_, code, err := q.Process(context.Background(), e)
	require.Error(t, err)
	assert.Equal(t, 1, code)
}

func TestTrackQueue_SkipWhenAllSourcesResolved(t *testing.T) {
	kind := &stubSourceKind{trackRef: "abc123"}
	s := source.New(kind, "http://example.test/repo.git", "abc123")
	e := newBuildElement(cachekey.NewEngine(16))
	e.Sources = []*source.Source{s}

	q := &queue.TrackQueue{}
	assert.True(t, q.Skip(e))
}

func TestTrackQueue_ProcessResolvesInconsistentSource(t *testing.T) {
	kind := &stubSourceKind{trackRef: "deadbeef"}
	s := source.New(kind, "http://example.test/repo.git", "")
	e := newBuildElement(cachekey.NewEngine(16))
	e.Sources = []*source.Source{s}

	q := &queue.TrackQueue{}
	assert.False(t, q.Skip(e))

	_, code, err := q.Process(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
}

func TestFetchQueue_SkipWhenAlreadyCached(t *testing.T) {
	e := newBuildElement(cachekey.NewEngine(16))
	// zero sources => Consistency() is Cached
	q := &queue.FetchQueue{}
	assert.True(t, q.Skip(e))
}

func TestFetchQueue_DoneBumpsSourcesToCachedOnSuccess(t *testing.T) {
	kind := &stubSourceKind{trackRef: "x", fetchErr: nil}
	s := source.New(kind, "http://example.test/a.tar", "x")
	e := newBuildElement(cachekey.NewEngine(16))
	e.Sources = []*source.Source{s}

	q := &queue.FetchQueue{}
	ok := q.Done(e, nil, 0)
	assert.True(t, ok)
	assert.Equal(t, source.Cached, s.Consistency())
}

func TestFetchQueue_DoneFailsOnNonZeroReturn(t *testing.T) {
	e := newBuildElement(cachekey.NewEngine(16))
	q := &queue.FetchQueue{}
	assert.False(t, q.Done(e, nil, 1))
}

type fakePullRemote struct {
	has bool
}

func (f *fakePullRemote) Pull(ctx context.Context, key cachekey.Key, store artifactcache.Store) (bool, error) {
	return f.has, nil
}

func TestPullQueue_SkipWhenAlreadyCached(t *testing.T) {
	store := &fakeStore{keys: map[cachekey.Key]bool{}}
	e := newBuildElementWithStore(cachekey.NewEngine(16), store)
	store.keys[e.CacheKey()] = true

	q := &queue.PullQueue{Store: store, Remote: &fakePullRemote{}}
	assert.True(t, q.Skip(e))
}

func TestPullQueue_ReadyRequiresSourcesCached(t *testing.T) {
	store := &fakeStore{keys: map[cachekey.Key]bool{}}
	e := newBuildElementWithStore(cachekey.NewEngine(16), store)

	q := &queue.PullQueue{Store: store, Remote: &fakePullRemote{}}
	assert.True(t, q.Ready(e))
}

func TestPullQueue_ProcessCallsRemote(t *testing.T) {
	store := &fakeStore{keys: map[cachekey.Key]bool{}}
	e := newBuildElementWithStore(cachekey.NewEngine(16), store)

	remote := &fakePullRemote{has: true}
	q := &queue.PullQueue{Store: store, Remote: remote}

	_, code, err := q.Process(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
}
