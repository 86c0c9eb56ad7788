package queue_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/buildcore-project/buildcore/internal/artifactcache"
	"github.com/buildcore-project/buildcore/internal/cachekey"
	"github.com/buildcore-project/buildcore/internal/queue"
)

type fakeStore struct {
	keys map[cachekey.Key]bool
}

func (f *fakeStore) Contains(key cachekey.Key) bool            { return f.keys[key] }
func (f *fakeStore) Extract(key cachekey.Key) (string, error)   { return "/tmp/extracted", nil }
func (f *fakeStore) Commit(key cachekey.Key, dir string) error {
	f.keys[key] = true
	return nil
}
func (f *fakeStore) ListKeys() ([]cachekey.Key, error) {
	var out []cachekey.Key
	for k := range f.keys {
		out = append(out, k)
	}
	return out, nil
}

type fakePushRemote struct {
	pushed bool
}

func (f *fakePushRemote) Push(ctx context.Context, key cachekey.Key, store artifactcache.Store) (bool, error) {
	f.pushed = true
	return true, nil
}

func TestPushQueue_SkipWhenNotCached(t *testing.T) {
	cache := cachekey.NewEngine(16)
	store := &fakeStore{keys: map[cachekey.Key]bool{}}
	e := newBuildElementWithStore(cache, store)

	q := &queue.PushQueue{Store: store, Remote: &fakePushRemote{}}
	assert.True(t, q.Skip(e))
}

func TestPushQueue_ProcessPushesWhenCached(t *testing.T) {
	cache := cachekey.NewEngine(16)
	store := &fakeStore{keys: map[cachekey.Key]bool{}}
	e := newBuildElementWithStore(cache, store)
	store.keys[e.CacheKey()] = true

	remote := &fakePushRemote{}
	q := &queue.PushQueue{Store: store, Remote: remote}

	assert.False(t, q.Skip(e))
	_, code, err := q.Process(context.Background(), e)
	assert.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.True(t, remote.pushed)
}
