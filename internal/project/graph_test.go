package project_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/buildcore-project/buildcore/internal/artifactcache"
	"github.com/buildcore-project/buildcore/internal/cachekey"
	_ "github.com/buildcore-project/buildcore/internal/registry/kinds"

	"github.com/buildcore-project/buildcore/internal/project"
)

type fakeGraphStore struct{}

func (fakeGraphStore) Contains(cachekey.Key) bool                { return false }
func (fakeGraphStore) Extract(cachekey.Key) (string, error)      { return "", nil }
func (fakeGraphStore) Commit(cachekey.Key, string) error         { return nil }
func (fakeGraphStore) ListKeys() ([]cachekey.Key, error)         { return nil, nil }

var _ artifactcache.Store = fakeGraphStore{}

func TestLoadGraph_ResolvesBuildDepsAndSources(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "project.conf"), []byte("name: myproj\nelement-path: elements\n"), 0o644))

	elementsDir := filepath.Join(dir, "elements")
	require.NoError(t, os.MkdirAll(elementsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(elementsDir, "base.bst"), []byte(`
kind: script
sources:
  - kind: local
    url: .
    ref: deadbeef
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(elementsDir, "app.bst"), []byte(`
kind: script
depends:
  - base.bst
config:
  commands:
    - make
`), 0o644))

	cfg, err := project.Load(dir)
	require.NoError(t, err)

	cache := cachekey.NewEngine(64)
	roots, err := project.LoadGraph(cfg, cache, fakeGraphStore{}, []string{"app.bst"})
	require.NoError(t, err)
	require.Len(t, roots, 1)

	app := roots[0]
	require.Equal(t, "myproj:app", app.Name)
	require.Len(t, app.BuildDeps, 1)
	require.Equal(t, "myproj:base", app.BuildDeps[0].Name)
	require.Len(t, app.BuildDeps[0].Sources, 1)
}

func TestLoadGraph_DiamondDependencySharesOneNode(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "project.conf"), []byte("name: myproj\nelement-path: elements\n"), 0o644))

	elementsDir := filepath.Join(dir, "elements")
	require.NoError(t, os.MkdirAll(elementsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(elementsDir, "base.bst"), []byte("kind: script\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(elementsDir, "mid1.bst"), []byte("kind: script\ndepends:\n  - base.bst\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(elementsDir, "mid2.bst"), []byte("kind: script\ndepends:\n  - base.bst\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(elementsDir, "top.bst"), []byte("kind: script\ndepends:\n  - mid1.bst\n  - mid2.bst\n"), 0o644))

	cfg, err := project.Load(dir)
	require.NoError(t, err)

	cache := cachekey.NewEngine(64)
	roots, err := project.LoadGraph(cfg, cache, fakeGraphStore{}, []string{"top.bst"})
	require.NoError(t, err)

	top := roots[0]
	mid1 := top.BuildDeps[0]
	mid2 := top.BuildDeps[1]
	require.Same(t, mid1.BuildDeps[0], mid2.BuildDeps[0])
}

func TestLoadGraph_DependencyCycleErrors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "project.conf"), []byte("name: myproj\nelement-path: elements\n"), 0o644))

	elementsDir := filepath.Join(dir, "elements")
	require.NoError(t, os.MkdirAll(elementsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(elementsDir, "a.bst"), []byte("kind: script\ndepends:\n  - b.bst\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(elementsDir, "b.bst"), []byte("kind: script\ndepends:\n  - a.bst\n"), 0o644))

	cfg, err := project.Load(dir)
	require.NoError(t, err)

	cache := cachekey.NewEngine(64)
	_, err = project.LoadGraph(cfg, cache, fakeGraphStore{}, []string{"a.bst"})
	require.Error(t, err)
}
