// Package sandbox runs build commands inside an isolated root filesystem:
// a mount map assembled from an element's staged dependency trees, a
// chroot into that tree, and guaranteed teardown of every acquired mount
// and device node on all exit paths. Two concrete drivers exist: the
// native Linux chroot driver in this package, and the container-based
// driver in internal/sandbox/dockerdriver for hosts that cannot chroot
// directly.
package sandbox

import "context"

// Flags controls the build environment's capabilities.
type Flags uint8

const (
	// FlagNone runs the command with no special privileges, network
	// disabled, and the root filesystem left writable.
	FlagNone Flags = 0
	// FlagRootReadOnly remounts the sandbox root read-only apart from
	// explicitly marked writable directories, independent of which uid the
	// command runs as.
	FlagRootReadOnly Flags = 1 << iota
	// FlagRoot grants the invoked command uid 0 inside the sandbox.
	FlagRoot
	// FlagInteractive attaches a pty and keeps /dev available, for
	// `buildcore shell`.
	FlagInteractive
	// FlagNetworkEnabled permits outbound network access, used only for
	// TRACK/FETCH-adjacent tooling that must reach the network from inside
	// the same mount namespace as the build.
	FlagNetworkEnabled
)

// Mount is one entry of the sandbox's mount map: a host source directory
// bound (or staged) at a path inside the sandbox root.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// Runner executes one command inside an assembled sandbox and reports its
// exit code. BuildQueue.Process (internal/queue) depends only on this
// interface, not on a concrete driver, so the build queue is agnostic to
// whether the host runs the native chroot driver or the container driver.
type Runner interface {
	Run(ctx context.Context, cmd []string, cwd string, env map[string]string, mounts []Mount, flags Flags) (exitCode int, err error)
}
