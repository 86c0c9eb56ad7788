// Package element implements the build DAG node and its
// consistency/cached/buildable state machine. Elements are passive:
// queues and the scheduler drive their transitions; the element itself only
// recomputes derived state on demand, never caches a stale observation
// across queue events.
package element

import (
	"github.com/buildcore-project/buildcore/internal/artifactcache"
	"github.com/buildcore-project/buildcore/internal/cachekey"
	"github.com/buildcore-project/buildcore/internal/source"
)

// ProjectHandle is a non-owning reference back to project-level settings
// (variables, environment, env-nocache filter). The scheduler/context holds
// the strong reference to the project; elements only read through this
// handle, so the project/element back-edge never forms a retain cycle.
type ProjectHandle interface {
	Variables() map[string]string
	Environment() map[string]string
}

// Element is one node of the build DAG: a stable identity, its sources, its
// build/runtime dependency sets, kind-specific config, environment, and a
// handle to project settings.
type Element struct {
	Name              string // project-qualified identity, e.g. "myproj:libfoo"
	KindID            string
	KindFormatVersion int

	Sources []*source.Source

	BuildDeps   []*Element
	RuntimeDeps []*Element

	Config map[string]any
	Env    map[string]string

	Project ProjectHandle

	cache *cachekey.Engine
	store artifactcache.Store
}

// New constructs an element. cache and store are shared across all elements
// in a project so that the LRU memoization and the artifact cache stay
// process-wide.
func New(name, kindID string, kindFormatVersion int, cache *cachekey.Engine, store artifactcache.Store) *Element {
	return &Element{
		Name:              name,
		KindID:            kindID,
		KindFormatVersion: kindFormatVersion,
		Config:            map[string]any{},
		Env:               map[string]string{},
		cache:             cache,
		store:             store,
	}
}

// Consistency returns min(source consistencies). An element with no
// sources has nothing to fetch and is Cached from construction.
func (e *Element) Consistency() source.Consistency {
	if len(e.Sources) == 0 {
		return source.Cached
	}
	min := source.Cached
	for _, s := range e.Sources {
		if c := s.Consistency(); c < min {
			min = c
		}
	}
	return min
}

// CacheKey computes (or recomputes) the element's build cache key. It is
// Absent until every source is resolved and every build dependency itself
// has a cache key.
func (e *Element) CacheKey() cachekey.Key {
	in := e.keyInput()
	for _, k := range in.BuildDepKeys {
		if k == cachekey.Absent {
			return cachekey.Absent
		}
	}
	return e.cache.Compute(in)
}

// StrongKey computes the element's strong key, folding in runtime deps.
func (e *Element) StrongKey() cachekey.Key {
	return e.cache.StrongKey(e.keyInput())
}

func (e *Element) keyInput() cachekey.Input {
	in := cachekey.Input{
		ElementName:       e.Name,
		KindID:            e.KindID,
		KindFormatVersion: e.KindFormatVersion,
		Config:            e.Config,
	}
	for _, s := range e.Sources {
		in.Sources = append(in.Sources, cachekey.SourceInput{
			KindID:            s.Kind().ID(),
			KindFormatVersion: s.Kind().FormatVersion(),
			Ref:               s.Ref(),
		})
	}
	for _, d := range e.BuildDeps {
		in.BuildDepKeys = append(in.BuildDepKeys, d.CacheKey())
	}
	for _, d := range e.RuntimeDeps {
		in.RuntimeDepKeys = append(in.RuntimeDepKeys, d.StrongKey())
	}
	if e.Project != nil {
		in.Variables = e.Project.Variables()
	}
	return in
}

// Cached reports whether the artifact cache currently contains this
// element's build key. Pass recalculate=true to force a fresh store query
// (e.g. right after a PULL queue completes) rather than trusting any
// previous observation.
func (e *Element) Cached(recalculate bool) bool {
	key := e.CacheKey()
	if key == cachekey.Absent {
		return false
	}
	// Every call re-queries the store; Store.Contains has no internal
	// cache of its own to go stale, so recalculate has nothing extra to
	// invalidate.
	_ = recalculate
	return e.store.Contains(key)
}

// Buildable reports whether every build dependency is cached and this
// element's own sources are fully CACHED.
func (e *Element) Buildable() bool {
	if e.Consistency() != source.Cached {
		return false
	}
	for _, d := range e.BuildDeps {
		if !d.Cached(true) {
			return false
		}
	}
	return true
}
