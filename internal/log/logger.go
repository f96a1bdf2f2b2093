package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds a console logger on stdout for the named service with the given
// level string (debug, info, warn, error, off).
func New(service, level string) *zerolog.Logger {
	return NewWithWriter(os.Stdout, service, level)
}

// NewWithWriter is New writing to w. The chat client uses it to keep logs on
// stderr, away from the conversation it prints.
func NewWithWriter(w io.Writer, service, level string) *zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
	}

	lvl, known := parseLevel(level)
	logger := zerolog.New(output).Level(lvl).With().Timestamp().Str("service", service).Logger()
	if !known {
		logger.Warn().Str("log_level", level).Msg("unknown log level, using info")
	}
	return &logger
}

func parseLevel(level string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel, true
	case "info", "":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "off", "disabled":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}
