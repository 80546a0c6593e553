// =============================================================================
// SIAFI/EFD Reconciler - Logging
// =============================================================================
//
// Builds the zerolog logger used by the CLI. Packages never create their own
// loggers; they receive one through a WithLogger option and default to a
// no-op logger.
//
// FORMATS:
//   - json:    one JSON object per line
//   - console: human-readable, colored unless NoColor is set
//   - auto:    console when the output is a terminal, json otherwise
//
// =============================================================================

package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Config holds logger options.
type Config struct {
	// Level is the minimum level: trace, debug, info, warn, error, disabled.
	// Unknown values fall back to info.
	Level string

	// Format is json, console or auto.
	Format string

	// Output receives the log lines. Default: os.Stderr.
	Output io.Writer

	// NoColor disables color in console format.
	NoColor bool
}

// DefaultConfig returns info-level auto-format logging to stderr.
func DefaultConfig() Config {
	return Config{
		Level:   "info",
		Format:  "auto",
		Output:  os.Stderr,
		NoColor: os.Getenv("NO_COLOR") != "",
	}
}

// New creates a logger from cfg.
func New(cfg Config) zerolog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	return zerolog.New(writer(cfg)).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Logger()
}

// ParseLevel maps a level name to a zerolog level.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "none", "off":
		return zerolog.Disabled
	default:
		if l, err := zerolog.ParseLevel(level); err == nil {
			return l
		}
		return zerolog.InfoLevel
	}
}

// writer wraps the output for the selected format.
func writer(cfg Config) io.Writer {
	format := strings.ToLower(cfg.Format)
	if format == "auto" || format == "" {
		format = "json"
		if isTerminal(cfg.Output) {
			format = "console"
		}
	}

	if format == "console" || format == "pretty" {
		return zerolog.ConsoleWriter{
			Out:        cfg.Output,
			TimeFormat: time.Kitchen,
			NoColor:    cfg.NoColor,
		}
	}
	return cfg.Output
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
