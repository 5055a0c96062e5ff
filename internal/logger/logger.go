// Package logger configures the global zerolog logger used across the engine.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// Init sets up the global logger. Level comes from LOG_LEVEL, console output
// is colorized outside production.
func Init(environment string) {
	zerolog.TimeFieldFormat = timeFormat
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }

	level, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer = zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: timeFormat,
		NoColor:    environment == "production",
	}
	log.Logger = log.Output(output)

	log.Info().Str("level", level.String()).Str("env", environment).Msg("logger initialized")
}

// ForGame returns a logger enriched with the game id.
func ForGame(gameID string) zerolog.Logger {
	return log.With().Str("gameId", gameID).Logger()
}
