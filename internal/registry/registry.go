// Package registry maps kind name strings to constructors for source and
// element kinds. Variants are enumerated at registration time, not at
// runtime: built-in kinds register themselves from an init() function in
// their defining package, and nothing here performs runtime plugin
// loading.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/buildcore-project/buildcore/internal/errs"
	"github.com/buildcore-project/buildcore/internal/source"
)

// ElementKind identifies one element kind by plugin ID and format version.
// Staging and build behavior are not part of this interface; concrete kinds
// expose them through optional interfaces (kinds.CommandLister,
// kinds.Unioner) that callers assert for.
type ElementKind interface {
	ID() string
	FormatVersion() int
}

// SourceKindFactory constructs a source.Kind from a project's kind-specific
// configuration (e.g. git auth). Most kinds ignore cfg.
type SourceKindFactory func(cfg map[string]any) (source.Kind, error)

// ElementKindFactory constructs an ElementKind from an element's
// kind-specific configuration.
type ElementKindFactory func(cfg map[string]any) (ElementKind, error)

var (
	mu           sync.RWMutex
	sourceKinds  = map[string]SourceKindFactory{}
	elementKinds = map[string]ElementKindFactory{}
)

// RegisterSourceKind adds a source kind constructor. Calling it twice for
// the same id is a duplicate plugin listing, a programming error rather
// than something to silently tolerate.
func RegisterSourceKind(id string, factory SourceKindFactory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := sourceKinds[id]; exists {
		panic(fmt.Sprintf("registry: duplicate source kind %q", id))
	}
	sourceKinds[id] = factory
}

// RegisterElementKind adds an element kind constructor.
func RegisterElementKind(id string, factory ElementKindFactory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := elementKinds[id]; exists {
		panic(fmt.Sprintf("registry: duplicate element kind %q", id))
	}
	elementKinds[id] = factory
}

// NewSource instantiates a source.Kind by id.
func NewSource(id string, cfg map[string]any) (source.Kind, error) {
	mu.RLock()
	factory, ok := sourceKinds[id]
	mu.RUnlock()
	if !ok {
		return nil, errs.Plugin("resolve-source-kind", fmt.Errorf("no source kind registered for %q", id))
	}
	k, err := factory(cfg)
	if err != nil {
		return nil, errs.Plugin("instantiate-source-kind", err)
	}
	return k, nil
}

// NewElementKind instantiates an ElementKind by id.
func NewElementKind(id string, cfg map[string]any) (ElementKind, error) {
	mu.RLock()
	factory, ok := elementKinds[id]
	mu.RUnlock()
	if !ok {
		return nil, errs.Plugin("resolve-element-kind", fmt.Errorf("no element kind registered for %q", id))
	}
	k, err := factory(cfg)
	if err != nil {
		return nil, errs.Plugin("instantiate-element-kind", err)
	}
	return k, nil
}

// SourceKindIDs returns the registered source kind ids, sorted, for
// diagnostics and `--help` style listings.
func SourceKindIDs() []string {
	mu.RLock()
	defer mu.RUnlock()
	ids := make([]string, 0, len(sourceKinds))
	for id := range sourceKinds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ElementKindIDs returns the registered element kind ids, sorted.
func ElementKindIDs() []string {
	mu.RLock()
	defer mu.RUnlock()
	ids := make([]string, 0, len(elementKinds))
	for id := range elementKinds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
