//go:build unix

// Package signal classifies POSIX signals for the scheduler's shutdown path
// and drives the SIGTERM-then-SIGKILL grace period used to tear down a
// sandboxed build command that won't exit on its own.
package signal

import (
	"context"
	"syscall"
	"time"
)

// signalAction is the POSIX default action a signal causes: T(erminate),
// A(bort, with core dump), I(gnore), S(top), or C(ontinue).
type signalAction byte

const (
	actionTerm signalAction = 'T'
	actionAbrt signalAction = 'A'
	actionIgn  signalAction = 'I'
	actionStop signalAction = 'S'
	actionCont signalAction = 'C'
)

type signalInfo struct {
	name   string
	action signalAction
}

var signalTable = map[syscall.Signal]signalInfo{
	syscall.SIGHUP:    {"SIGHUP", actionTerm},
	syscall.SIGINT:    {"SIGINT", actionTerm},
	syscall.SIGQUIT:   {"SIGQUIT", actionAbrt},
	syscall.SIGILL:    {"SIGILL", actionAbrt},
	syscall.SIGTRAP:   {"SIGTRAP", actionAbrt},
	syscall.SIGABRT:   {"SIGABRT", actionAbrt},
	syscall.SIGBUS:    {"SIGBUS", actionAbrt},
	syscall.SIGFPE:    {"SIGFPE", actionAbrt},
	syscall.SIGKILL:   {"SIGKILL", actionTerm},
	syscall.SIGUSR1:   {"SIGUSR1", actionTerm},
	syscall.SIGSEGV:   {"SIGSEGV", actionAbrt},
	syscall.SIGUSR2:   {"SIGUSR2", actionTerm},
	syscall.SIGPIPE:   {"SIGPIPE", actionTerm},
	syscall.SIGALRM:   {"SIGALRM", actionTerm},
	syscall.SIGTERM:   {"SIGTERM", actionTerm},
	syscall.SIGCHLD:   {"SIGCHLD", actionIgn},
	syscall.SIGCONT:   {"SIGCONT", actionCont},
	syscall.SIGSTOP:   {"SIGSTOP", actionStop},
	syscall.SIGTSTP:   {"SIGTSTP", actionStop},
	syscall.SIGTTIN:   {"SIGTTIN", actionStop},
	syscall.SIGTTOU:   {"SIGTTOU", actionStop},
	syscall.SIGURG:    {"SIGURG", actionIgn},
	syscall.SIGXCPU:   {"SIGXCPU", actionAbrt},
	syscall.SIGXFSZ:   {"SIGXFSZ", actionAbrt},
	syscall.SIGVTALRM: {"SIGVTALRM", actionTerm},
	syscall.SIGPROF:   {"SIGPROF", actionTerm},
	syscall.SIGWINCH:  {"SIGWINCH", actionIgn},
	syscall.SIGIO:     {"SIGIO", actionTerm},
	syscall.SIGSYS:    {"SIGSYS", actionAbrt},
}

// IsTerminationSignal reports whether sig's default action is to end the
// process (T or A), as opposed to being ignored, stopping, or resuming it.
func IsTerminationSignal(sig syscall.Signal) bool {
	info, ok := signalTable[sig]
	if !ok {
		return false
	}
	return info.action == actionTerm || info.action == actionAbrt
}

// GetSignalName returns sig's canonical name, or "" if unrecognized.
func GetSignalName(sig syscall.Signal) string {
	if info, ok := signalTable[sig]; ok {
		return info.name
	}
	return ""
}

// GetSignalNum resolves a signal name to its number, defaulting to SIGTERM
// for names it doesn't recognize — the scheduler always has a well-defined
// signal to send even when a queue's configured signal name is bad input.
func GetSignalNum(name string) int {
	for sig, info := range signalTable {
		if info.name == name {
			return int(sig)
		}
	}
	return int(syscall.SIGTERM)
}

// TerminateWithGrace sends SIGTERM to pid and escalates to SIGKILL if the
// process is still alive once grace elapses or ctx is canceled first,
// mirroring the chroot driver's teardown of a build command that ignores
// SIGTERM.
func TerminateWithGrace(ctx context.Context, pid int, grace time.Duration) error {
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		if err == syscall.ESRCH {
			return nil
		}
		return err
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}

	if err := syscall.Kill(pid, 0); err != nil {
		return nil
	}
	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
		return err
	}
	return nil
}
