// Package log implements structured logging using slog, with a
// runtime-swappable handler so the process-wide logger can be
// reattached without restarting long-lived components.
package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/skalabs/stationdaq/internal/config"
)

var handlerRef atomic.Pointer[slog.Handler]

// Init builds the process logger from configuration and installs it as
// both the package-level default and slog's global default.
func Init(cfg config.LogConfig) error {
	handler, err := buildHandler(cfg)
	if err != nil {
		return err
	}
	AttachLogger(handler)
	return nil
}

func buildHandler(cfg config.LogConfig) (slog.Handler, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log: %w", err)
	}

	writers := []io.Writer{os.Stdout}
	if cfg.File.Enabled {
		if cfg.File.Path == "" {
			return nil, fmt.Errorf("log: file output requires a path")
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxAge:     cfg.File.MaxAgeDays,
			MaxBackups: cfg.File.MaxBackups,
			Compress:   cfg.File.Compress,
		})
	}
	out := io.MultiWriter(writers...)

	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		return slog.NewJSONHandler(out, opts), nil
	case "text":
		return slog.NewTextHandler(out, opts), nil
	default:
		return nil, fmt.Errorf("log: unsupported format %q", cfg.Format)
	}
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// AttachLogger swaps the process-wide logger's handler at runtime, per
// the process-wide state contract in §9 (`attach_logger`). Each call to
// Logger() reads the handler through the atomic pointer, so loggers
// obtained after the swap use the new handler; a *slog.Logger obtained
// before the swap keeps the handler it was built with.
func AttachLogger(h slog.Handler) {
	handlerRef.Store(&h)
	slog.SetDefault(slog.New(h))
}

// Logger returns the current process-wide logger. If Init/AttachLogger
// has not been called yet, it falls back to slog's default.
func Logger() *slog.Logger {
	if h := handlerRef.Load(); h != nil {
		return slog.New(*h)
	}
	return slog.Default()
}
