// Package logging configures the process-wide zerolog logger from a Config,
// including optional rolling-file output via lumberjack.
package logging

import (
	"io"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/natefinch/lumberjack"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds the logger configuration.
type Config struct {
	// Level is a zerolog level name ("debug", "info", "warn", "error", ...).
	// Defaults to "info".
	Level string `yaml:"level,omitempty"`

	// Format is "json" for structured output, anything else (including
	// empty) for a human-readable console writer.
	Format string `yaml:"format,omitempty"`

	// Color enables ANSI color in the console writer. Ignored when File is
	// set, since file output is never a terminal.
	Color bool `yaml:"color,omitempty"`

	// File, if set, routes log output to a rolling file instead of stderr.
	File       string `yaml:"file,omitempty"`
	MaxSize    int    `yaml:"max_size,omitempty"`
	MaxAge     int    `yaml:"max_age,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
}

func init() {
	// Suppress logs before Init runs.
	zerolog.SetGlobalLevel(zerolog.ErrorLevel)
}

// Init configures the global zerolog logger from cfg. A nil cfg logs at
// info level to stderr in console format.
func Init(cfg *Config) {
	w := newWriter(cfg)
	level := parseLevel(cfg)

	ctx := zerolog.New(w).With().Timestamp()
	if level <= zerolog.DebugLevel {
		ctx = ctx.Caller()
	}

	log.Logger = ctx.Logger().Level(level)
	zerolog.DefaultContextLogger = &log.Logger
	zerolog.SetGlobalLevel(level)

	stdlog.SetFlags(stdlog.Lshortfile | stdlog.LstdFlags)
}

func newWriter(cfg *Config) io.Writer {
	var w io.Writer = os.Stderr

	if cfg != nil && cfg.File != "" {
		w = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   true,
		}
	}

	if cfg == nil || cfg.Format != "json" {
		w = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
			NoColor:    cfg == nil || !cfg.Color || cfg.File != "",
		}
	}

	return w
}

func parseLevel(cfg *Config) zerolog.Level {
	name := "info"
	if cfg != nil && cfg.Level != "" {
		name = strings.ToLower(cfg.Level)
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil {
		log.Error().Err(err).Str("level", name).Msg("invalid log level, defaulting to error")
		return zerolog.ErrorLevel
	}
	return level
}
