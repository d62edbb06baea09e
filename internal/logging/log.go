// Package logging wires the process-wide zerolog logger and exposes a few
// child-logger constructors so every component tags its lines with who
// emitted them.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide base logger. Init should be called once at
// process startup before any component logger is derived from it.
var Logger zerolog.Logger

// Level mirrors zerolog's string levels so callers don't need to import
// zerolog directly just to configure logging.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config controls how Init builds the base logger.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init configures the package-level Logger. Call once, at process start.
func Init(cfg Config) {
	lvl, err := zerolog.ParseLevel(string(cfg.Level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if !cfg.JSONOutput {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	Logger = zerolog.New(out).With().Timestamp().Logger()
}

// WithComponent returns a child logger tagged with a component name, e.g.
// "storenode", "queue", "gateway", "ring".
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithNode returns a child logger additionally tagged with a node/service
// identity, useful when several store nodes share a process in tests.
func WithNode(component, nodeID string) zerolog.Logger {
	return Logger.With().Str("component", component).Str("node", nodeID).Logger()
}
