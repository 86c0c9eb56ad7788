package queue

import (
	"context"

	"github.com/buildcore-project/buildcore/internal/artifactcache"
	"github.com/buildcore-project/buildcore/internal/cachekey"
	"github.com/buildcore-project/buildcore/internal/element"
	"github.com/buildcore-project/buildcore/internal/errs"
)

// PushQueue uploads a freshly built artifact to the remote cache. Symmetric
// to PullQueue: process is forgiving of an absent local artifact (skip
// already covers the common case, but a race with cache eviction is still
// possible), and done never fails the element over a push miss, since a
// failed push never invalidates a build that already succeeded locally.
type PushQueue struct {
	Store  artifactcache.Store
	Remote interface {
		Push(ctx context.Context, key cachekey.Key, store artifactcache.Store) (bool, error)
	}
}

func (q *PushQueue) Name() string    { return "Push" }
func (q *PushQueue) QueueType() Type { return TypeBuild }

func (q *PushQueue) Skip(e *element.Element) bool {
	return !e.Cached(false)
}

func (q *PushQueue) Ready(e *element.Element) bool {
	return e.Cached(false)
}

func (q *PushQueue) Process(ctx context.Context, e *element.Element) (Result, int, error) {
	key := e.CacheKey()
	if key == cachekey.Absent {
		return nil, 1, errs.Cache("push["+e.Name+"]", errCacheKeyAbsent)
	}
	if _, err := q.Remote.Push(ctx, key, q.Store); err != nil {
		return nil, 1, errs.Cache("push["+e.Name+"]", err)
	}
	return nil, 0, nil
}

func (q *PushQueue) Done(e *element.Element, result Result, returncode int) bool {
	return true
}
