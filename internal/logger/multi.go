package logger

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// NewElementLogger returns a Logger that fans out every record to both
// stderr and an element's own build-log file, so `buildcore build` shows
// live progress while still leaving a durable per-element log behind in
// the artifact's log directory.
func NewElementLogger(logPath string, debug bool) (Logger, io.Closer, error) {
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level, AddSource: debug}

	console := slog.NewTextHandler(os.Stderr, opts)
	file := slog.NewTextHandler(f, opts)

	handler := slogmulti.Fanout(console, file)
	return &logger{slog: slog.New(handler), debug: debug}, f, nil
}
