// Package dockerdriver implements sandbox.Runner by running the build
// command inside a throwaway container instead of chrooting directly on
// the host: create a container from a base image, bind the mount map,
// run the command to completion, read the exit code, remove the
// container.
package dockerdriver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"

	"github.com/buildcore-project/buildcore/internal/errs"
	"github.com/buildcore-project/buildcore/internal/sandbox"
)

// Driver runs sandbox commands as short-lived Docker containers. Useful on
// hosts where privileged chroot/mknod is unavailable (rootless CI runners,
// macOS dev hosts using Docker Desktop, etc).
type Driver struct {
	cli   *client.Client
	Image string // base rootfs image; element-provided mounts are bound on top
}

// New creates a Docker API client from the standard environment-derived
// connection options (DOCKER_HOST, DOCKER_CERT_PATH, etc). No connection is
// made here; the daemon is first contacted when Run is called.
func New(image string) (*Driver, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errs.Sandbox("docker-client-connect", err)
	}
	if image == "" {
		image = "scratch"
	}
	return &Driver{cli: cli, Image: image}, nil
}

var _ sandbox.Runner = (*Driver)(nil)

// Run translates the sandbox.Mount list into Docker bind mounts, creates a
// container from d.Image, runs cmd as its entrypoint, waits for it to exit,
// and removes the container regardless of outcome.
func (d *Driver) Run(ctx context.Context, cmd []string, cwd string, env map[string]string, mounts []sandbox.Mount, flags sandbox.Flags) (int, error) {
	binds := make([]mount.Mount, 0, len(mounts))
	for _, m := range mounts {
		binds = append(binds, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}

	envList := make([]string, 0, len(env))
	for k, v := range env {
		envList = append(envList, fmt.Sprintf("%s=%s", k, v))
	}

	containerCfg := &container.Config{
		Image:        d.Image,
		Cmd:          cmd,
		Env:          envList,
		WorkingDir:   cwd,
		Tty:          flags&sandbox.FlagInteractive != 0,
		AttachStdout: true,
		AttachStderr: true,
	}
	created, err := d.cli.ContainerCreate(ctx, containerCfg, hostConfig(binds, flags), nil, nil, "")
	if err != nil {
		return 1, errs.Sandbox("container-create", err)
	}
	defer func() {
		_ = d.cli.ContainerRemove(context.Background(), created.ID, container.RemoveOptions{Force: true})
	}()

	if err := d.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return 1, errs.Sandbox("container-start", err)
	}

	statusCh, errCh := d.cli.ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return 1, errs.Sandbox("container-wait", err)
		}
	case status := <-statusCh:
		code := int(status.StatusCode)
		if code != 0 {
			d.logOnFailure(created.ID, code)
		}
		return code, nil
	case <-ctx.Done():
		return 1, errs.Sandbox("container-wait", ctx.Err())
	}
	return 1, errs.Sandbox("container-wait", fmt.Errorf("wait channel closed unexpectedly"))
}

// logOnFailure surfaces a failed container's combined output on stderr.
// Run itself never attaches the container's stdio, so without this a
// non-zero exit gives the caller nothing but a bare exit code to act on.
// Uses a fresh context since ctx may already be canceled by the time the
// container has actually exited.
func (d *Driver) logOnFailure(containerID string, code int) {
	logs, err := d.captureLogs(context.Background(), containerID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "container %s exited %d (could not read logs: %v)\n", containerID, code, err)
		return
	}
	fmt.Fprintf(os.Stderr, "container %s exited %d:\n%s", containerID, code, logs)
}

// hostConfig translates the sandbox flag bits into Docker's host-side
// container settings: FlagRootReadOnly maps onto ReadonlyRootfs so the
// container's root filesystem rejects writes the same way the chroot
// driver's remounted root does, leaving only the explicit bind mounts
// writable.
func hostConfig(binds []mount.Mount, flags sandbox.Flags) *container.HostConfig {
	return &container.HostConfig{
		Mounts:         binds,
		Privileged:     flags&sandbox.FlagRoot != 0,
		NetworkMode:    networkMode(flags),
		ReadonlyRootfs: flags&sandbox.FlagRootReadOnly != 0,
		AutoRemove:     false, // removed explicitly in Run so the exit code can still be read first
	}
}

func networkMode(flags sandbox.Flags) container.NetworkMode {
	if flags&sandbox.FlagNetworkEnabled != 0 {
		return "bridge"
	}
	return "none"
}

// captureLogs drains a container's combined stdout/stderr stream into a
// buffer, for callers that want the build log rather than just the exit
// code (logOnFailure, for a container that exited non-zero).
func (d *Driver) captureLogs(ctx context.Context, containerID string) (string, error) {
	r, err := d.cli.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", errs.Sandbox("container-logs", err)
	}
	defer r.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", errs.Sandbox("container-logs-read", err)
	}
	return buf.String(), nil
}

// Close releases the underlying Docker API client connection.
func (d *Driver) Close() error {
	return d.cli.Close()
}
