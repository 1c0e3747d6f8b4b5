package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	logger  = newLogger()
	file    *os.File
	mu      sync.Mutex
	enabled bool
)

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	return l
}

// Enable starts debug logging to path at the given level ("debug", "info",
// "warn", ...). The terminal is owned by the TUI, so logs only go to a file.
func Enable(path, level string) error {
	mu.Lock()
	defer mu.Unlock()

	if enabled {
		return nil
	}

	lvl := logrus.DebugLevel
	if level != "" {
		parsed, err := logrus.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("log level: %w", err)
		}
		lvl = parsed
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	file = f
	enabled = true
	logger.SetOutput(f)
	logger.SetLevel(lvl)
	logger.WithField("cat", "debug").Info("=== Debug logging started ===")

	return nil
}

// Disable stops debug logging
func Disable() {
	mu.Lock()
	defer mu.Unlock()

	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.DebugLevel)
	if file != nil {
		file.Close()
		file = nil
	}
	enabled = false
}

// SetOutput sends log lines to w instead of the log file (tests use this).
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger.SetOutput(w)
	enabled = w != io.Discard
}

// Log writes a debug message under a category
func Log(category, format string, args ...any) {
	logger.WithField("cat", category).Debugf(format, args...)
}

// Warn writes a warning under a category
func Warn(category, format string, args ...any) {
	logger.WithField("cat", category).Warnf(format, args...)
}

// Error logs err under a category with some context
func Error(category string, err error, format string, args ...any) {
	logger.WithField("cat", category).WithError(err).Errorf(format, args...)
}

// LogEvery logs only every N calls (use for high-frequency events)
var (
	counters   = make(map[string]int)
	countersMu sync.Mutex
)

func LogEvery(n int, category, format string, args ...any) {
	countersMu.Lock()
	key := category + format
	counters[key]++
	count := counters[key]
	countersMu.Unlock()

	if count%n == 0 {
		Log(category, format+" (every %d, count=%d)", append(args, n, count)...)
	}
}
