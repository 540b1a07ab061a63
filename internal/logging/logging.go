// Package logging builds the root zerolog logger from configuration.
package logging

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rshade/carbon-aware-sci/internal/config"
)

const (
	// FormatJSON writes one JSON object per line.
	FormatJSON = "json"

	// FormatConsole writes human readable, colorless lines.
	FormatConsole = "console"
)

// New returns a logger writing to w at the configured level. An unknown level
// falls back to info and is reported on the returned logger.
func New(cfg config.LoggingConfig, w io.Writer) zerolog.Logger {
	if strings.EqualFold(cfg.Format, FormatConsole) {
		w = zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	unknown := err != nil || level == zerolog.NoLevel
	if unknown {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(w).Level(level).With().Timestamp().Logger()
	if unknown && cfg.Level != "" {
		logger.Warn().Str("level", cfg.Level).Msg("unknown log level, using info")
	}
	return logger
}
