// Package logger configures zerolog for trafficwatch binaries.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/trafficwatch/backend/internal/config"
)

// New builds a logger from cfg. Console format writes human-readable lines
// to stderr; json writes one object per line to stdout.
func New(cfg config.Logging) zerolog.Logger {
	var out io.Writer = os.Stdout
	if !strings.EqualFold(cfg.Format, "json") {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	return newWithWriter(cfg, out)
}

func newWithWriter(cfg config.Logging, out io.Writer) zerolog.Logger {
	l := zerolog.New(out).Level(ParseLevel(cfg.Level)).With().Timestamp()
	if cfg.Service != "" {
		l = l.Str("service", cfg.Service)
	}
	return l.Logger()
}

// Setup installs the configured logger as the package-global log.Logger.
func Setup(cfg config.Logging) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = New(cfg)
}

func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
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
