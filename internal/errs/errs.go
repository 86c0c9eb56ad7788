// Package errs defines the error taxonomy shared across the engine.
//
// Each kind corresponds to one of the failure domains named in the error
// handling design: loading project/element configuration, resolving a
// plugin kind, fetching/tracking a source, running a build, touching the
// artifact cache, or assembling a sandbox. Callers type-switch or use
// errors.As to recover the concrete kind without string matching.
package errs

import (
	"errors"
	"fmt"
)

// Kind tags a structured error with the failure domain it originated from.
type Kind string

const (
	KindLoad    Kind = "load"
	KindPlugin  Kind = "plugin"
	KindSource  Kind = "source"
	KindBuild   Kind = "build"
	KindCache   Kind = "cache"
	KindSandbox Kind = "sandbox"
)

// Error is the common structured error carried between workers and the
// scheduler. Retryable is only meaningful for KindSource: a transient
// network failure should be retried by the queue's backoff policy, while an
// invalid ref should not.
type Error struct {
	Kind      Kind
	Op        string // the operation that failed, e.g. "fetch", "mknod", "parse project.conf"
	Element   string // project-qualified element identity, empty if not element-scoped
	File      string // originating file, for LoadError provenance
	Line      int    // originating line, for LoadError provenance
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	switch {
	case e.File != "":
		if e.Line > 0 {
			return fmt.Sprintf("%s:%d: %s: %s: %v", e.File, e.Line, e.Kind, e.Op, e.Err)
		}
		return fmt.Sprintf("%s: %s: %s: %v", e.File, e.Kind, e.Op, e.Err)
	case e.Element != "":
		return fmt.Sprintf("%s: %s[%s]: %v", e.Kind, e.Op, e.Element, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Load constructs a LoadError with file/line provenance.
func Load(file string, line int, op string, err error) *Error {
	return &Error{Kind: KindLoad, Op: op, File: file, Line: line, Err: err}
}

// Plugin constructs a PluginError for an unresolved or un-instantiable kind.
func Plugin(op string, err error) *Error {
	return &Error{Kind: KindPlugin, Op: op, Err: err}
}

// Source constructs a SourceError, flagging whether the queue may retry it.
func Source(element, op string, retryable bool, err error) *Error {
	return &Error{Kind: KindSource, Op: op, Element: element, Retryable: retryable, Err: err}
}

// Build constructs a BuildError for a non-zero sandbox exit or assembly failure.
func Build(element, op string, err error) *Error {
	return &Error{Kind: KindBuild, Op: op, Element: element, Err: err}
}

// Cache constructs a CacheError for artifact store I/O failures.
func Cache(op string, err error) *Error {
	return &Error{Kind: KindCache, Op: op, Err: err}
}

// Sandbox constructs a SandboxError for permission/mount/mknod failures.
func Sandbox(op string, err error) *Error {
	return &Error{Kind: KindSandbox, Op: op, Err: err}
}

// IsRetryable reports whether err is a SourceError marked retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindSource && e.Retryable
	}
	return false
}
