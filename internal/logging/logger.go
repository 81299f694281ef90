package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where log records go
type Config struct {
	Service  string
	Level    string
	Dir      string
	MaxMB    int
	MaxFiles int
}

// Logger is a JSON slog.Logger that also owns its rotated log file, if any.
type Logger struct {
	*slog.Logger
	closer io.Closer
}

// New returns a JSON logger tagged with the service name. When cfg.Dir is
// set, records are written to stdout and to a rotated <service>.jsonl.
func New(cfg Config) (*Logger, error) {
	return newLogger(cfg, os.Stdout)
}

func newLogger(cfg Config, stdout io.Writer) (*Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var (
		out    = stdout
		closer io.Closer
	)
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		lj := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Dir, cfg.Service+".jsonl"),
			MaxSize:    cfg.MaxMB,
			MaxBackups: cfg.MaxFiles,
		}
		out = io.MultiWriter(stdout, lj)
		closer = lj
	}

	h := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	return &Logger{
		Logger: slog.New(h).With("service", cfg.Service),
		closer: closer,
	}, nil
}

// Close flushes and closes the rotated log file.
func (l *Logger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// ParseLevel maps a level name to a slog.Level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Discard returns a logger that drops everything, for tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}
