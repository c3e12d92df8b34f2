// Package logger configures the process-wide zerolog instance: console or
// JSON output, optionally duplicated into a rotated log file.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const logFileName = "pitstock.log"

// Config holds logger configuration.
type Config struct {
	Level      string
	Format     string // "console" or "json"
	Path       string // directory for log files; empty disables file output
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Logger is the root application logger. Close flushes the file rotator
// when file output is enabled.
type Logger struct {
	zerolog.Logger
	rotator *lumberjack.Logger
}

// New builds the root logger from config.
func New(cfg Config) *Logger {
	console := consoleWriter(cfg.Format)

	output := console
	var rotator *lumberjack.Logger
	if cfg.Path != "" {
		if r, err := fileRotator(cfg); err == nil {
			rotator = r
			output = io.MultiWriter(console, rotator)
		}
	}

	log := zerolog.New(output).
		Level(parseLevel(cfg.Level)).
		With().
		Timestamp().
		Logger()

	return &Logger{Logger: log, rotator: rotator}
}

// Close closes the log file if one is open.
func (l *Logger) Close() error {
	if l.rotator == nil {
		return nil
	}
	return l.rotator.Close()
}

func consoleWriter(format string) io.Writer {
	if format == "json" {
		return os.Stdout
	}
	return zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
}

func fileRotator(cfg Config) (*lumberjack.Logger, error) {
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, err
	}
	return &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Path, logFileName),
		MaxSize:    defaultIfZero(cfg.MaxSizeMB, 10),
		MaxBackups: defaultIfZero(cfg.MaxBackups, 5),
		MaxAge:     defaultIfZero(cfg.MaxAgeDays, 30),
		Compress:   cfg.Compress,
		LocalTime:  true,
	}, nil
}

func defaultIfZero(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
