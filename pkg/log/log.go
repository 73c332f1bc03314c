package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide root logger. Components never log through it
// directly; they derive tagged children via the constructors below so DNS
// traffic, directory mutations, and API requests can be filtered apart.
var Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Config holds logging configuration.
type Config struct {
	// Level is a zerolog level name: debug, info, warn, error.
	Level string

	// JSON selects machine-readable output; the default is a console
	// writer for interactive use.
	JSON bool

	Output io.Writer
}

// Init replaces the root logger according to the settings file. Unknown
// level names fall back to info rather than failing startup.
func Init(cfg Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if !cfg.JSON {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	Logger = zerolog.New(output).Level(level).With().Timestamp().Logger()
}

// WithComponent derives a child logger tagged with a component name.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// ForTransport tags resolver socket logs with the transport kind (udp or
// tcp) and the server address the socket is bound to, so retry storms and
// connection churn can be traced to one name server.
func ForTransport(kind, server string) zerolog.Logger {
	return Logger.With().
		Str("component", "resolver").
		Str("transport", kind).
		Str("server", server).
		Logger()
}

// ForZone tags DNS-SD publication logs with the zone an UPDATE targets.
func ForZone(zone string) zerolog.Logger {
	return Logger.With().
		Str("component", "dnssd").
		Str("zone", zone).
		Logger()
}
