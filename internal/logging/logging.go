package logging

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects level, format and destination of the process logger.
type Config struct {
	Level string
	// Format is "text" or "json"; empty picks text on a terminal.
	Format string
	// File, when set, receives the logs with rotation.
	File string
	// Quiet drops console output, e.g. while a full-screen UI owns the terminal.
	Quiet bool
}

// Init configures the global zerolog logger.
func Init(cfg Config) {
	var writers []io.Writer

	if !cfg.Quiet {
		writers = append(writers, consoleWriter(cfg.Format))
	}

	if cfg.File != "" {
		writers = append(writers, zerolog.ConsoleWriter{
			NoColor: true,
			Out: &lumberjack.Logger{
				Filename:   cfg.File,
				MaxSize:    10, // megabytes
				MaxBackups: 3,
				MaxAge:     28, // days
			},
		})
	}

	switch len(writers) {
	case 0:
		log.Logger = log.Output(io.Discard)
	case 1:
		log.Logger = log.Output(writers[0])
	default:
		log.Logger = log.Output(io.MultiWriter(writers...))
	}

	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))
}

// ParseLevel maps a level name to zerolog, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

func consoleWriter(format string) io.Writer {
	switch format {
	case "json":
		return os.Stderr
	case "text":
		return zerolog.ConsoleWriter{Out: os.Stderr}
	}
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		return zerolog.ConsoleWriter{Out: os.Stderr}
	}
	return os.Stderr
}
