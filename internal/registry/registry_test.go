package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildcore-project/buildcore/internal/registry"
	"github.com/buildcore-project/buildcore/internal/source"
)

type stubElementKind struct{ id string }

func (s stubElementKind) ID() string         { return s.id }
func (s stubElementKind) FormatVersion() int { return 1 }

func TestRegistry_RegisterAndResolveSourceKind(t *testing.T) {
	registry.RegisterSourceKind("test-registry-kind", func(cfg map[string]any) (source.Kind, error) {
		return source.LocalKind{}, nil
	})

	k, err := registry.NewSource("test-registry-kind", nil)
	require.NoError(t, err)
	assert.Equal(t, "local", k.ID())
}

func TestRegistry_UnknownSourceKindErrors(t *testing.T) {
	_, err := registry.NewSource("does-not-exist", nil)
	assert.Error(t, err)
}

func TestRegistry_RegisterAndResolveElementKind(t *testing.T) {
	registry.RegisterElementKind("test-registry-element-kind", func(cfg map[string]any) (registry.ElementKind, error) {
		return stubElementKind{id: "test-registry-element-kind"}, nil
	})

	k, err := registry.NewElementKind("test-registry-element-kind", nil)
	require.NoError(t, err)
	assert.Equal(t, "test-registry-element-kind", k.ID())
}

func TestRegistry_DuplicateRegistrationPanics(t *testing.T) {
	registry.RegisterSourceKind("test-dup-kind", func(map[string]any) (source.Kind, error) {
		return source.LocalKind{}, nil
	})

	assert.Panics(t, func() {
		registry.RegisterSourceKind("test-dup-kind", func(map[string]any) (source.Kind, error) {
			return source.LocalKind{}, nil
		})
	})
}
