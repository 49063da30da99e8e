// Package rlog is a thin leveled logger on top of zerolog. Messages are formatted
// with fmt and written to stderr in a human-readable form.
package rlog

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

func (l Level) MarshalText() (text []byte, err error) {
	return []byte(l), nil
}

func (l *Level) UnmarshalText(text []byte) error {
	switch v := Level(strings.ToLower(string(text))); v {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		*l = v
		return nil
	default:
		return fmt.Errorf("valid values: %v", []Level{LevelDebug, LevelInfo, LevelWarn, LevelError})
	}
}

func (l Level) zerologLevel() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

var logger = newLogger(os.Stderr, false)

func init() {
	SetLevel(LevelInfo)
}

func newLogger(w io.Writer, noColor bool) zerolog.Logger {
	out := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.DateTime,
		NoColor:    noColor,
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

// SetLevel sets the minimal level of messages to log.
func SetLevel(level Level) {
	zerolog.SetGlobalLevel(level.zerologLevel())
}

func sprintln(v []any) string {
	return strings.TrimSuffix(fmt.Sprintln(v...), "\n")
}

func Debug(v ...any)                 { logger.Debug().Msg(sprintln(v)) }
func Debugf(format string, v ...any) { logger.Debug().Msgf(format, v...) }

func Info(v ...any)                 { logger.Info().Msg(sprintln(v)) }
func Infof(format string, v ...any) { logger.Info().Msgf(format, v...) }

func Warn(v ...any)                 { logger.Warn().Msg(sprintln(v)) }
func Warnf(format string, v ...any) { logger.Warn().Msgf(format, v...) }

func Error(v ...any)                 { logger.Error().Msg(sprintln(v)) }
func Errorf(format string, v ...any) { logger.Error().Msgf(format, v...) }
