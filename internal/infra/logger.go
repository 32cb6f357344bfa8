// README: zerolog logger construction; console output when APP_ENV=dev.
package infra

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger returns a logger tagged with component. Unknown levels fall back
// to info.
func NewLogger(component, level string) zerolog.Logger {
	return newLogger(os.Stdout, strings.ToLower(os.Getenv("APP_ENV")) == "dev", component, level)
}

func newLogger(out io.Writer, console bool, component, level string) zerolog.Logger {
	if console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Str("component", component).Logger()
}
