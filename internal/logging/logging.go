// Package logging is the process-wide printf-style logger used across eppkit.
//
// Messages follow the "pkg.Type.Method key=value" convention so log lines can
// be grepped by component.
package logging

import (
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
)

var current atomic.Pointer[zerolog.Logger]

func init() {
	l := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	current.Store(&l)
}

func setLogger(l zerolog.Logger) {
	current.Store(&l)
}

// Logger returns the configured zerolog logger for structured call sites.
func Logger() zerolog.Logger {
	return *current.Load()
}

func Tracef(format string, args ...any) { current.Load().Trace().Msgf(format, args...) }
func Debugf(format string, args ...any) { current.Load().Debug().Msgf(format, args...) }
func Infof(format string, args ...any)  { current.Load().Info().Msgf(format, args...) }
func Warnf(format string, args ...any)  { current.Load().Warn().Msgf(format, args...) }
func Errf(format string, args ...any)   { current.Load().Error().Msgf(format, args...) }

func Debug(msg string) { current.Load().Debug().Msg(msg) }
func Info(msg string)  { current.Load().Info().Msg(msg) }
