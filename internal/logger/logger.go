package logger

import (
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Global logger instance
var Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// sink boxes the writer so it can live in an atomic.Pointer.
type sink struct {
	w io.Writer
}

// output is the writer shared by the global logger and every component logger. Component
// loggers read it on every write while Initialize may swap it.
var output atomic.Pointer[sink]

func init() {
	output.Store(&sink{w: os.Stdout})
}

// Options controls where and how log lines are written.
type Options struct {
	Level  string
	JSON   bool      // emit raw JSON instead of the console format (for log shippers)
	Output io.Writer // defaults to os.Stdout
}

// Initialize sets up the global logger with appropriate configuration
func Initialize(logLevel string) {
	InitializeWithOptions(Options{Level: logLevel})
}

// InitializeWithOptions sets up the global logger, allowing JSON output for deployments.
func InitializeWithOptions(opts Options) {
	zerolog.TimeFieldFormat = time.RFC3339

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if !opts.JSON {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "2006-01-02 15:04:05",
		}
	}

	output.Store(&sink{w: out})
	Logger = zerolog.New(out).
		With().
		Timestamp().
		Caller().
		Logger()

	zerolog.SetGlobalLevel(ParseLevel(opts.Level))

	// Replace standard log with zerolog
	log.Logger = Logger
}

// ParseLevel maps a LOG_LEVEL string to a zerolog level, defaulting to info.
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
	default:
		return zerolog.InfoLevel
	}
}

// GetForComponent returns a logger with a component field for better filtering.
// The returned logger writes through the global logger's writer at call time, so
// package-level component loggers created before Initialize still pick up its output.
func GetForComponent(component string) zerolog.Logger {
	return zerolog.New(globalWriter{}).With().Timestamp().Str("component", component).Logger()
}

// globalWriter forwards every write to the writer chosen by the last Initialize call.
type globalWriter struct{}

func (globalWriter) Write(p []byte) (int, error) {
	return output.Load().w.Write(p)
}
