// Package logger provides the structured logger used across the scheduler,
// queues, and sandbox drivers: a slog.Logger wrapper that reports the
// caller's source location rather than this package's own frames, with
// text/JSON output and a debug level gate.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

// Logger is the logging surface every package depends on instead of *slog.Logger
// directly, so call sites attribute to themselves rather than to this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)

	With(args ...any) Logger
	WithGroup(name string) Logger
}

type logger struct {
	slog  *slog.Logger
	debug bool
}

type options struct {
	debug  bool
	format string
	writer io.Writer
	quiet  bool
}

// Option configures NewLogger.
type Option func(*options)

// WithDebug enables debug-level logging and source-location attribution.
func WithDebug() Option { return func(o *options) { o.debug = true } }

// WithFormat selects "text" (default) or "json" output.
func WithFormat(format string) Option { return func(o *options) { o.format = format } }

// WithWriter overrides the destination, which defaults to os.Stderr.
func WithWriter(w io.Writer) Option { return func(o *options) { o.writer = w } }

// WithQuiet suppresses the default timestamp prefix noise in tests, where
// only the message and source location matter.
func WithQuiet() Option { return func(o *options) { o.quiet = true } }

// NewLogger builds a Logger from the given options.
func NewLogger(opts ...Option) Logger {
	o := &options{format: "text", writer: os.Stderr}
	for _, opt := range opts {
		opt(o)
	}

	level := slog.LevelInfo
	if o.debug {
		level = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: o.debug,
	}
	handlerOpts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
		if o.quiet && a.Key == slog.TimeKey && len(groups) == 0 {
			return slog.Attr{}
		}
		if a.Key == slog.SourceKey {
			if src, ok := a.Value.Any().(*slog.Source); ok {
				a.Value = slog.StringValue(fmt.Sprintf("%s:%d", shortSource(src.File), src.Line))
			}
		}
		return a
	}

	var h slog.Handler
	switch o.format {
	case "json":
		h = slog.NewJSONHandler(o.writer, handlerOpts)
	default:
		h = slog.NewTextHandler(o.writer, handlerOpts)
	}

	return &logger{slog: slog.New(h), debug: o.debug}
}

// callerPC walks back past this package's own frames so AddSource reports
// the site that actually called Info/Debug/etc., not logger.go itself.
func callerPC() uintptr {
	var pcs [16]uintptr
	n := runtime.Callers(2, pcs[:])
	for _, pc := range pcs[:n] {
		f, _ := runtime.CallersFrames([]uintptr{pc}).Next()
		if !strings.HasSuffix(f.File, "/internal/logger/logger.go") &&
			!strings.HasSuffix(f.File, "/internal/logger/context.go") {
			return pc
		}
	}
	return 0
}

func (l *logger) log(level slog.Level, msg string, args ...any) {
	if !l.slog.Enabled(context.Background(), level) {
		return
	}
	r := slog.NewRecord(time.Now(), level, msg, callerPC())
	r.Add(args...)
	_ = l.slog.Handler().Handle(context.Background(), r)
}

func (l *logger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }
func (l *logger) Info(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args...) }
func (l *logger) Warn(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args...) }
func (l *logger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args...) }

func (l *logger) Debugf(format string, args ...any) { l.log(slog.LevelDebug, fmt.Sprintf(format, args...)) }
func (l *logger) Infof(format string, args ...any)  { l.log(slog.LevelInfo, fmt.Sprintf(format, args...)) }
func (l *logger) Warnf(format string, args ...any)  { l.log(slog.LevelWarn, fmt.Sprintf(format, args...)) }
func (l *logger) Errorf(format string, args ...any) { l.log(slog.LevelError, fmt.Sprintf(format, args...)) }

func (l *logger) With(args ...any) Logger {
	return &logger{slog: l.slog.With(args...), debug: l.debug}
}

func (l *logger) WithGroup(name string) Logger {
	return &logger{slog: l.slog.WithGroup(name), debug: l.debug}
}

// shortSource trims a full source path down to "pkg/file.go:line" for
// readability in text-format logs.
func shortSource(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) <= 2 {
		return path
	}
	return strings.Join(parts[len(parts)-2:], "/")
}
