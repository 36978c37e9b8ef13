// Package runlog creates the per-run logger. A run log is opened at run start
// under <output>/logs and closed at run end; every component receives the
// logger explicitly instead of relying on slog's process default.
package runlog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileTimeLayout is the timestamp format in process_log_<stamp>.txt.
const FileTimeLayout = "20060102_150405"

// RunLog owns the log file of a single run.
type RunLog struct {
	Logger *slog.Logger
	Path   string
	file   *os.File
}

// Open creates <outputDir>/logs/process_log_<YYYYMMDD_HHMMSS>.txt and returns
// a JSON logger writing to it and to console (may be nil).
func Open(outputDir string, now time.Time, console io.Writer, level slog.Leveler) (*RunLog, error) {
	logDir := filepath.Join(outputDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log folder: %w", err)
	}
	path := filepath.Join(logDir, fmt.Sprintf("process_log_%s.txt", now.Format(FileTimeLayout)))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open run log: %w", err)
	}

	var w io.Writer = f
	if console != nil {
		w = io.MultiWriter(f, console)
	}
	if level == nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	return &RunLog{Logger: logger, Path: path, file: f}, nil
}

// Close flushes and closes the log file.
func (l *RunLog) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		_ = l.file.Close()
		return err
	}
	return l.file.Close()
}

// ParseLevel maps "debug", "info", "warn" and "error" to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
