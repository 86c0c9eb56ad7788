package queue

import (
	"context"
	"errors"

	"github.com/buildcore-project/buildcore/internal/artifactcache"
	"github.com/buildcore-project/buildcore/internal/backoff"
	"github.com/buildcore-project/buildcore/internal/cachekey"
	"github.com/buildcore-project/buildcore/internal/element"
	"github.com/buildcore-project/buildcore/internal/errs"
	"github.com/buildcore-project/buildcore/internal/source"
)

var errCacheKeyAbsent = errors.New("element has no cache key: sources not fully resolved")

// TrackQueue resolves each source's symbolic ref (branch/tag) to a
// concrete ref, bumping consistency from INCONSISTENT to RESOLVED.
// Tracking never reads CacheKey/Cached (no artifact cache involvement at
// all), it only touches sources.
type TrackQueue struct {
	Translate func(url string) string
	// Retry overrides the backoff policy applied to a retryable track
	// error (see errs.IsRetryable). Nil uses defaultRetryPolicy(TypeTrack).
	Retry backoff.Policy
}

func (q *TrackQueue) Name() string    { return "Track" }
func (q *TrackQueue) QueueType() Type { return TypeTrack }

func (q *TrackQueue) Skip(e *element.Element) bool {
	for _, s := range e.Sources {
		if s.Consistency() == source.Inconsistent {
			return false
		}
	}
	return true
}

func (q *TrackQueue) Ready(e *element.Element) bool { return true }

func (q *TrackQueue) Process(ctx context.Context, e *element.Element) (Result, int, error) {
	policy := q.Retry
	if policy == nil {
		policy = defaultRetryPolicy(TypeTrack)
	}
	for _, s := range e.Sources {
		url := s.URL()
		if q.Translate != nil {
			url = q.Translate(url)
		}
		err := retryTransient(ctx, policy, func() error { return s.Track(ctx, url) })
		if err != nil {
			return nil, 1, errs.Source(e.Name, "track", errs.IsRetryable(err), err)
		}
	}
	return nil, 0, nil
}

func (q *TrackQueue) Done(e *element.Element, result Result, returncode int) bool {
	return returncode == 0
}

// FetchQueue downloads each source into its local staging directory,
// bumping consistency to CACHED on success. Skip covers elements whose
// consistency is already CACHED (zero-source elements for free), and Done
// bumps every source to CACHED rather than trusting the worker's own
// bookkeeping.
type FetchQueue struct {
	SkipCached bool
	Translate  func(url string) string
	// Retry overrides the backoff policy applied to a retryable fetch
	// error (see errs.IsRetryable). Nil uses defaultRetryPolicy(TypeFetch).
	Retry backoff.Policy
}

func (q *FetchQueue) Name() string    { return "Fetch" }
func (q *FetchQueue) QueueType() Type { return TypeFetch }

func (q *FetchQueue) Skip(e *element.Element) bool {
	if q.SkipCached && e.Cached(false) {
		return true
	}
	return e.Consistency() == source.Cached
}

func (q *FetchQueue) Ready(e *element.Element) bool { return true }

func (q *FetchQueue) Process(ctx context.Context, e *element.Element) (Result, int, error) {
	policy := q.Retry
	if policy == nil {
		policy = defaultRetryPolicy(TypeFetch)
	}
	for _, s := range e.Sources {
		url := s.URL()
		if q.Translate != nil {
			url = q.Translate(url)
		}
		err := retryTransient(ctx, policy, func() error { return s.Fetch(ctx, url, s.LocalDir()) })
		if err != nil {
			return nil, 1, errs.Source(e.Name, "fetch", errs.IsRetryable(err), err)
		}
	}
	return nil, 0, nil
}

func (q *FetchQueue) Done(e *element.Element, result Result, returncode int) bool {
	if returncode != 0 {
		return false
	}
	for _, s := range e.Sources {
		s.BumpConsistency(source.Cached)
	}
	return true
}

// PullQueue attempts to pull a built artifact from a remote cache.
// Process never fails just because the remote lacks the object — a miss
// is an ordinary outcome — and Done always re-queries Cached(true)
// regardless of whether the pull found anything, because the only
// observable truth is what the store now contains.
type PullQueue struct {
	Store  artifactcache.Store
	Remote interface {
		Pull(ctx context.Context, key cachekey.Key, store artifactcache.Store) (bool, error)
	}
}

func (q *PullQueue) Name() string    { return "Pull" }
func (q *PullQueue) QueueType() Type { return TypeFetch }

func (q *PullQueue) Skip(e *element.Element) bool {
	return e.Cached(false)
}

func (q *PullQueue) Ready(e *element.Element) bool {
	return e.Consistency() == source.Cached
}

func (q *PullQueue) Process(ctx context.Context, e *element.Element) (Result, int, error) {
	key := e.CacheKey()
	if key == cachekey.Absent {
		return nil, 1, errs.Cache("pull["+e.Name+"]", errCacheKeyAbsent)
	}
	_, err := q.Remote.Pull(ctx, key, q.Store)
	if err != nil {
		return nil, 1, errs.Cache("pull["+e.Name+"]", err)
	}
	return nil, 0, nil
}

func (q *PullQueue) Done(e *element.Element, result Result, returncode int) bool {
	if returncode != 0 {
		return false
	}
	e.Cached(true)
	return true
}
