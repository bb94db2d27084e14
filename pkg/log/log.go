package log

import (
	"io"
	"os"
	"time"

	"github.com/ferozmbasheer/clustercore/pkg/clustertypes"
	"github.com/rs/zerolog"
)

// Logger is the process-wide logger, set once by Init. Components never
// log through it directly; they hold the zerolog.Logger returned by
// WithComponent at construction instead.
var Logger zerolog.Logger

// Level is a configured log level, set from YAML/flags before any
// zerolog type is in scope.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// zerolog maps an unrecognized Level to InfoLevel rather than erroring,
// since Config is typically built from a user-supplied flag.
func (l Level) zerolog() zerolog.Level {
	switch l {
	case DebugLevel:
		return zerolog.DebugLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Config holds the process-wide logging configuration.
type Config struct {
	Level      Level
	JSONOutput bool
	// Output defaults to os.Stdout. Tests set it to a buffer.
	Output io.Writer
}

// Init builds the process-wide Logger from cfg. Call once at startup,
// before any component's WithComponent call.
func Init(cfg Config) {
	zerolog.SetGlobalLevel(cfg.Level.zerolog())

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
		return
	}
	Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        output,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()
}

// WithComponent returns a child of the process-wide Logger scoped to
// one control-plane component (e.g. "allocator", "failover"). The
// caller holds onto the returned logger for its whole lifetime rather
// than calling Logger directly.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithProcessorID returns a child of base carrying the given processor
// id, for a log line (or short-lived child logger) about one specific
// processor.
func WithProcessorID(base zerolog.Logger, id clustertypes.ProcessorId) zerolog.Logger {
	return base.With().Str("processor_id", string(id)).Logger()
}

// WithResourceID returns a child of base carrying the given resource
// id.
func WithResourceID(base zerolog.Logger, id clustertypes.ResourceId) zerolog.Logger {
	return base.With().Str("resource_id", string(id)).Logger()
}

// WithHost returns a child of base carrying the given host.
func WithHost(base zerolog.Logger, host clustertypes.Host) zerolog.Logger {
	return base.With().Str("host", string(host)).Logger()
}

// WithResource returns a child of base carrying both resource_id and
// host, the pairing most allocator/coordinator log lines about an
// allocated Resource need together.
func WithResource(base zerolog.Logger, res *clustertypes.Resource) zerolog.Logger {
	return base.With().
		Str("resource_id", string(res.ResourceId)).
		Str("host", string(res.Host)).
		Logger()
}
