package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Debug  bool
	Pretty bool
}

// Init configures the global zerolog logger.
func Init(cfg Config) {
	var w io.Writer = os.Stdout
	if cfg.Pretty {
		w = zerolog.NewConsoleWriter()
	}

	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}

	log.Logger = zerolog.New(w).Level(level).With().Timestamp().Caller().Logger()
}

// Component returns a child logger tagged with the component name.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
