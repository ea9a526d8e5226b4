package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Loggers builds per-component loggers that share a level and output.
type Loggers struct {
	level zerolog.Level
	out   io.Writer
}

// NewLoggers parses level ("debug", "info", "warn", "error"; anything else is
// info). format "console" writes human-readable lines, anything else JSON.
func NewLoggers(level, format string) *Loggers {
	var out io.Writer = os.Stdout
	if strings.EqualFold(format, "console") {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.TimeOnly}
	}
	return &Loggers{level: ParseLogLevel(level), out: out}
}

// For returns a logger tagged with component.
func (l *Loggers) For(component string) zerolog.Logger {
	return zerolog.New(l.out).
		Level(l.level).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

// Level is the shared minimum level.
func (l *Loggers) Level() zerolog.Level { return l.level }

func ParseLogLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}
