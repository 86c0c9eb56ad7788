package kinds_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildcore-project/buildcore/internal/registry"
	"github.com/buildcore-project/buildcore/internal/registry/kinds"
)

func TestKinds_BuiltinSourceKindsRegistered(t *testing.T) {
	ids := registry.SourceKindIDs()
	assert.Contains(t, ids, "git")
	assert.Contains(t, ids, "archive")
	assert.Contains(t, ids, "local")
}

func TestKinds_BuiltinElementKindsRegistered(t *testing.T) {
	ids := registry.ElementKindIDs()
	assert.Contains(t, ids, "script")
	assert.Contains(t, ids, "compose")
	assert.Contains(t, ids, "stack")
}

func TestKinds_ScriptKindParsesCommands(t *testing.T) {
	k, err := registry.NewElementKind("script", map[string]any{
		"commands": []any{"make", "make install"},
	})
	require.NoError(t, err)
	assert.Equal(t, "script", k.ID())

	lister, ok := k.(kinds.CommandLister)
	require.True(t, ok)
	assert.Equal(t, []string{"make", "make install"}, lister.ShellCommands())
}

func TestKinds_ScriptKindRejectsUnknownField(t *testing.T) {
	_, err := registry.NewElementKind("script", map[string]any{
		"commands":   []any{"make"},
		"bogus-flag": true,
	})
	assert.Error(t, err)
}

func TestKinds_StackKindParsesIntegrate(t *testing.T) {
	k, err := registry.NewElementKind("stack", map[string]any{
		"integrate": []any{"./run-integration-tests.sh"},
	})
	require.NoError(t, err)

	lister, ok := k.(kinds.CommandLister)
	require.True(t, ok)
	assert.Equal(t, []string{"./run-integration-tests.sh"}, lister.ShellCommands())
}
