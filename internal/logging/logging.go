// Package logging configures the process-wide structured logger.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls log level and output destinations.
type Config struct {
	Level      string
	Console    bool
	File       string // empty disables the rotating file writer
	MaxSizeMB  int
	MaxBackups int
}

var root = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Init builds the root logger from cfg and installs it as the source
// for For. Call once from main before any component starts.
func Init(cfg Config) zerolog.Logger {
	var writers []io.Writer

	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.File,
				MaxSize:    cfg.MaxSizeMB,
				MaxBackups: cfg.MaxBackups,
				Compress:   true,
			})
		}
	}

	var out io.Writer
	switch len(writers) {
	case 0:
		out = os.Stdout
	case 1:
		out = writers[0]
	default:
		out = zerolog.MultiLevelWriter(writers...)
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	root = zerolog.New(out).With().Timestamp().Logger()
	return root
}

// For returns a child logger tagged with the component name.
func For(component string) zerolog.Logger {
	return root.With().Str("component", component).Logger()
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
