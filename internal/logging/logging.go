package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

const defaultFileName = "olympia.log"

type Config struct {
	Level string
	// Dir enables a rotated log file next to stdout when set.
	Dir        string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Init builds the process logger from c and installs it as the slog default.
func Init(c Config) (*slog.Logger, error) {
	return initWith(os.Stdout, c)
}

func initWith(stdout io.Writer, c Config) (*slog.Logger, error) {
	level := parseLevel(c.Level)

	dir := strings.TrimSpace(c.Dir)
	if dir == "" {
		l := newLogger(stdout, level, false)
		slog.SetDefault(l)
		return l, nil
	}

	if c.MaxSizeMB <= 0 || c.MaxBackups <= 0 || c.MaxAgeDays <= 0 {
		return nil, fmt.Errorf("logging: invalid file config: size=%d backups=%d age_days=%d",
			c.MaxSizeMB, c.MaxBackups, c.MaxAgeDays)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: create log dir: %w", err)
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(dir, defaultFileName),
		MaxSize:    c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAgeDays,
		Compress:   c.Compress,
	}

	l := newLogger(io.MultiWriter(stdout, file), level, true)
	slog.SetDefault(l)
	l.Info("logging: file output enabled", "path", file.Filename)

	return l, nil
}

func newLogger(w io.Writer, level slog.Level, noColor bool) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
		AddSource:  true,
		NoColor:    noColor,
	}))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
