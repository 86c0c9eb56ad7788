package dockerdriver

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/buildcore-project/buildcore/internal/sandbox"
)

func TestHostConfig_ReadOnlyRootSetsReadonlyRootfs(t *testing.T) {
	cfg := hostConfig(nil, sandbox.FlagRootReadOnly)
	assert.True(t, cfg.ReadonlyRootfs)
}

func TestHostConfig_DefaultRootStaysWritable(t *testing.T) {
	cfg := hostConfig(nil, sandbox.FlagNone)
	assert.False(t, cfg.ReadonlyRootfs)
	assert.False(t, cfg.Privileged)
}

func TestNetworkMode_DefaultsToNone(t *testing.T) {
	assert.Equal(t, "none", string(networkMode(sandbox.FlagNone)))
}

func TestNetworkMode_BridgeWhenEnabled(t *testing.T) {
	assert.Equal(t, "bridge", string(networkMode(sandbox.FlagNetworkEnabled)))
}

func TestDriver_DefaultsImageToScratch(t *testing.T) {
	// New() dials the Docker daemon via client.FromEnv, which does not
	// require a reachable daemon to construct the client value itself.
	d, err := New("")
	if err != nil {
		t.Skipf("docker client unavailable in this environment: %v", err)
	}
	assert.Equal(t, "scratch", d.Image)
}
