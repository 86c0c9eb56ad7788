// Chroot driver: assembles a scratch rootfs, mirrors a minimal device
// set into it, binds the mount map, and runs the command chrooted inside,
// via golang.org/x/sys/unix for the raw mount/mknod syscalls.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"

	"github.com/buildcore-project/buildcore/internal/errs"
	"github.com/buildcore-project/buildcore/internal/logger"
	"github.com/buildcore-project/buildcore/internal/signal"
)

// gracePeriod is how long a chrooted command gets to exit on SIGTERM before
// chroot() escalates to SIGKILL, once ctx is canceled.
const gracePeriod = 5 * time.Second

// deviceNodes is the minimal /dev entry set a typical build expects to
// find even with networking and most of /dev unavailable.
var deviceNodes = []string{
	"/dev/null",
	"/dev/zero",
	"/dev/random",
	"/dev/urandom",
	"/dev/tty",
}

// ChrootDriver runs commands by chrooting into an assembled rootfs. It
// requires CAP_SYS_CHROOT and CAP_MKNOD (in practice, root) on the host.
type ChrootDriver struct {
	// RootBase is the parent directory new sysroots are created under.
	RootBase string
}

// NewChrootDriver returns a driver creating scratch rootfs directories under
// base (created if missing).
func NewChrootDriver(base string) *ChrootDriver {
	if base == "" {
		base = "/var/run/buildcore"
	}
	return &ChrootDriver{RootBase: base}
}

// Run assembles a sysroot from mounts, creates device nodes, chroots into
// it, and executes cmd. Teardown happens in reverse order of setup via a
// deferred cleanup stack, on every exit path.
func (d *ChrootDriver) Run(ctx context.Context, cmd []string, cwd string, env map[string]string, mounts []Mount, flags Flags) (int, error) {
	if cwd == "" {
		cwd = "/"
	}

	if err := os.MkdirAll(d.RootBase, 0o755); err != nil {
		return 1, errs.Sandbox("mkdir-root-base", err)
	}
	rootfs, err := os.MkdirTemp(d.RootBase, "sysroot-")
	if err != nil {
		return 1, errs.Sandbox("mktemp-rootfs", err)
	}

	var cleanup []func()
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()
	cleanup = append(cleanup, func() { _ = os.RemoveAll(rootfs) })
	logger.Debugf(ctx, "assembling sysroot at %s", rootfs)

	if flags&FlagInteractive == 0 {
		teardownDevices, err := createDevices(rootfs)
		if err != nil {
			return 1, errs.Sandbox("create-devices", err)
		}
		cleanup = append(cleanup, teardownDevices)
	}

	teardownMounts, err := mountDirs(rootfs, mounts, flags)
	if err != nil {
		return 1, errs.Sandbox("mount-dirs", err)
	}
	cleanup = append(cleanup, teardownMounts)

	logger.Debugf(ctx, "running %v in %s (cwd %s)", cmd, rootfs, cwd)
	return d.chroot(ctx, rootfs, cmd, cwd, env, flags)
}

// chroot execs cmd with its working root pinned at rootfs. Go cannot chroot
// from inside the parent process and then exec safely (chroot is
// per-process and sticky), so the chroot/chdir pair is requested via
// SysProcAttr.Chroot on the child, which the kernel applies before the
// child's own code begins executing.
func (d *ChrootDriver) chroot(ctx context.Context, rootfs string, command []string, cwd string, env map[string]string, flags Flags) (int, error) {
	if len(command) == 0 {
		return 1, errs.Sandbox("chroot", fmt.Errorf("empty command"))
	}

	c := exec.CommandContext(ctx, command[0], command[1:]...)
	c.Dir = cwd
	c.Env = envSlice(env)
	c.SysProcAttr = &syscall.SysProcAttr{Chroot: rootfs}
	c.WaitDelay = gracePeriod + time.Second
	c.Cancel = func() error {
		return signal.TerminateWithGrace(context.Background(), c.Process.Pid, gracePeriod)
	}

	if flags&FlagInteractive != 0 {
		ptmx, tty, err := pty.Open()
		if err != nil {
			return 1, errs.Sandbox("pty-open", err)
		}
		defer ptmx.Close()
		defer tty.Close()
		c.Stdin, c.Stdout, c.Stderr = tty, tty, tty
		c.SysProcAttr.Setsid = true
	} else {
		devNull, err := os.Open(os.DevNull)
		if err != nil {
			return 1, errs.Sandbox("open-devnull", err)
		}
		defer devNull.Close()
		c.Stdin = devNull
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
	}

	if err := c.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return 1, errs.Sandbox("chroot-exec", fmt.Errorf("could not chroot into %s or exec %v: %w", rootfs, command, err))
	}
	return 0, nil
}

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// createDevices mknods the fixed device set into rootfs/dev and returns a
// teardown func that removes them.
func createDevices(rootfs string) (func(), error) {
	var created []string
	for _, dev := range deviceNodes {
		target := filepath.Join(rootfs, strings.TrimPrefix(dev, "/"))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, err
		}
		if err := mknodLike(dev, target); err != nil {
			for _, c := range created {
				os.Remove(c)
			}
			return nil, err
		}
		created = append(created, target)
	}
	return func() {
		for _, c := range created {
			os.Remove(c)
		}
	}, nil
}

// mknodLike stats source (e.g. /dev/null) and creates an equivalent
// character device at target, mirroring the host's major/minor numbers
// and permission bits.
func mknodLike(source, target string) error {
	var st unix.Stat_t
	if err := unix.Stat(source, &st); err != nil {
		return fmt.Errorf("stat %s: %w", source, err)
	}
	if _, err := os.Stat(target); err == nil {
		os.Remove(target)
	}
	dev := unix.Mkdev(unix.Major(uint64(st.Rdev)), unix.Minor(uint64(st.Rdev)))
	mode := uint32(st.Mode&^unix.S_IFMT) | unix.S_IFCHR
	if err := unix.Mknod(target, mode, int(dev)); err != nil {
		return fmt.Errorf("mknod %s: %w", target, err)
	}
	return nil
}

// mountDirs bind-mounts each entry's source at its target under rootfs
// (creating the mount point directory first), then binds /tmp and /proc,
// and finally remounts the root read-only if requested. Returns a teardown
// that unmounts everything in reverse order.
func mountDirs(rootfs string, mounts []Mount, flags Flags) (func(), error) {
	var mounted []string

	bind := func(src, target string, ro bool) error {
		full := filepath.Join(rootfs, strings.TrimPrefix(target, "/"))
		if err := os.MkdirAll(full, 0o755); err != nil {
			return err
		}
		mountFlags := unix.MS_BIND
		if err := unix.Mount(src, full, "", uintptr(mountFlags), ""); err != nil {
			return fmt.Errorf("bind mount %s -> %s: %w", src, full, err)
		}
		mounted = append(mounted, full)
		if ro {
			if err := unix.Mount("", full, "", uintptr(unix.MS_BIND|unix.MS_REMOUNT|unix.MS_RDONLY), ""); err != nil {
				return fmt.Errorf("remount ro %s: %w", full, err)
			}
		}
		return nil
	}

	teardown := func() {
		for i := len(mounted) - 1; i >= 0; i-- {
			_ = unix.Unmount(mounted[i], 0)
		}
	}

	if flags&FlagRootReadOnly != 0 {
		// A plain directory cannot be remounted; bind the rootfs over
		// itself first so the final read-only remount below has a mount
		// point to act on. Sub-mounts established after this sit on top
		// with their own write policy.
		if err := unix.Mount(rootfs, rootfs, "", uintptr(unix.MS_BIND), ""); err != nil {
			return nil, fmt.Errorf("bind rootfs %s: %w", rootfs, err)
		}
		mounted = append(mounted, rootfs)
	}

	for _, m := range mounts {
		if err := bind(m.Source, m.Target, m.ReadOnly); err != nil {
			teardown()
			return nil, err
		}
	}

	// A single-file bind: the target must exist as a regular file before a
	// file can be bound over it, unlike the directory case above.
	bindFile := func(src, target string) error {
		full := filepath.Join(rootfs, strings.TrimPrefix(target, "/"))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(full, os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		f.Close()
		if err := unix.Mount(src, full, "", uintptr(unix.MS_BIND), ""); err != nil {
			return fmt.Errorf("bind mount %s -> %s: %w", src, full, err)
		}
		mounted = append(mounted, full)
		return nil
	}

	if flags&FlagInteractive != 0 {
		if err := bind("/dev", "/dev", false); err != nil {
			teardown()
			return nil, err
		}
	}
	// Network access is best-effort: the build can only resolve names if
	// the host's resolv.conf is visible inside the rootfs. Omitting it is
	// how network-disabled builds are starved of DNS.
	if flags&FlagNetworkEnabled != 0 {
		if err := bindFile("/etc/resolv.conf", "/etc/resolv.conf"); err != nil {
			teardown()
			return nil, err
		}
	}
	if err := bind("/tmp", "/tmp", false); err != nil {
		teardown()
		return nil, err
	}
	if err := bind("/proc", "/proc", false); err != nil {
		teardown()
		return nil, err
	}

	if flags&FlagRootReadOnly != 0 {
		if err := unix.Mount("", rootfs, "", uintptr(unix.MS_BIND|unix.MS_REMOUNT|unix.MS_RDONLY), ""); err != nil {
			teardown()
			return nil, fmt.Errorf("remount rootfs read-only: %w", err)
		}
	}

	return teardown, nil
}
