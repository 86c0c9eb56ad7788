package project

import (
	"fmt"

	"github.com/buildcore-project/buildcore/internal/artifactcache"
	"github.com/buildcore-project/buildcore/internal/cachekey"
	"github.com/buildcore-project/buildcore/internal/element"
	"github.com/buildcore-project/buildcore/internal/registry"
	"github.com/buildcore-project/buildcore/internal/source"
)

// graphLoader resolves element files into a shared element.Element DAG,
// memoizing by relative path so two elements depending on the same element
// file get the same *element.Element node rather than duplicate builds.
type graphLoader struct {
	cfg     *Config
	cache   *cachekey.Engine
	store   artifactcache.Store
	loaded  map[string]*element.Element
	loading map[string]bool
}

// LoadGraph resolves targetRelPaths (element files relative to
// cfg.ElementPath) and everything they transitively depend on into a DAG of
// *element.Element nodes sharing cache and store, returning one root
// Element per requested target in the same order.
func LoadGraph(cfg *Config, cache *cachekey.Engine, store artifactcache.Store, targetRelPaths []string) ([]*element.Element, error) {
	gl := &graphLoader{
		cfg:     cfg,
		cache:   cache,
		store:   store,
		loaded:  map[string]*element.Element{},
		loading: map[string]bool{},
	}

	roots := make([]*element.Element, 0, len(targetRelPaths))
	for _, relPath := range targetRelPaths {
		e, err := gl.load(relPath)
		if err != nil {
			return nil, err
		}
		roots = append(roots, e)
	}
	return roots, nil
}

// Flatten returns every element reachable from roots (via build or runtime
// deps), each appearing once, for handing to scheduler.New — which needs
// the full element set, not just the requested targets.
func Flatten(roots []*element.Element) []*element.Element {
	seen := map[string]bool{}
	var out []*element.Element

	var visit func(e *element.Element)
	visit = func(e *element.Element) {
		if seen[e.Name] {
			return
		}
		seen[e.Name] = true
		out = append(out, e)
		for _, d := range e.BuildDeps {
			visit(d)
		}
		for _, d := range e.RuntimeDeps {
			visit(d)
		}
	}
	for _, r := range roots {
		visit(r)
	}
	return out
}

func (gl *graphLoader) load(relPath string) (*element.Element, error) {
	if e, ok := gl.loaded[relPath]; ok {
		return e, nil
	}
	if gl.loading[relPath] {
		return nil, fmt.Errorf("dependency cycle detected at %q", relPath)
	}
	gl.loading[relPath] = true
	defer delete(gl.loading, relPath)

	ef, err := LoadElementFile(gl.cfg, relPath)
	if err != nil {
		return nil, err
	}

	kind, err := registry.NewElementKind(ef.Kind, ef.Config)
	if err != nil {
		return nil, fmt.Errorf("element %q: %w", ef.Name, err)
	}

	e := element.New(ef.Name, kind.ID(), kind.FormatVersion(), gl.cache, gl.store)
	e.Config = ef.Config
	e.Env = gl.cfg.Environment()
	e.Project = gl.cfg

	for _, sd := range ef.Sources {
		sourceKind, err := registry.NewSource(sd.Kind, sd.Config)
		if err != nil {
			return nil, fmt.Errorf("element %q: %w", ef.Name, err)
		}
		url := gl.cfg.ExpandEnv(gl.cfg.TranslateURL(sd.URL))
		e.Sources = append(e.Sources, source.New(sourceKind, url, sd.Ref))
	}

	// Mark this node loaded before recursing into dependencies so a shared
	// diamond dependency resolves to the same node rather than infinite
	// recursion tripping the cycle check above.
	gl.loaded[relPath] = e

	for _, dep := range ef.Depends {
		depElement, err := gl.load(dep.Name)
		if err != nil {
			return nil, fmt.Errorf("element %q depends on %q: %w", ef.Name, dep.Name, err)
		}
		switch dep.Type {
		case DepBuild:
			e.BuildDeps = append(e.BuildDeps, depElement)
		case DepRuntime:
			e.RuntimeDeps = append(e.RuntimeDeps, depElement)
		default:
			e.BuildDeps = append(e.BuildDeps, depElement)
			e.RuntimeDeps = append(e.RuntimeDeps, depElement)
		}
	}

	return e, nil
}
