package logger

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	// Sensible default so packages can log before Init is called (tests, tools).
	log = zerolog.New(consoleWriter()).With().Timestamp().Logger().Level(zerolog.InfoLevel)
}

// Init configures the process-wide logger. In production the output is plain
// JSON for log shippers; in development it is a colorized console writer.
func Init(environment string, debug bool) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	if strings.EqualFold(environment, "production") {
		log = zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
		return
	}
	log = zerolog.New(consoleWriter()).With().Timestamp().Logger().Level(level)
}

func consoleWriter() zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
}

func Debug(msg string, keysAndValues ...any) {
	withFields(log.Debug(), keysAndValues).Msg(msg)
}

func Info(msg string, keysAndValues ...any) {
	withFields(log.Info(), keysAndValues).Msg(msg)
}

func Warn(msg string, keysAndValues ...any) {
	withFields(log.Warn(), keysAndValues).Msg(msg)
}

func Error(msg string, err error, keysAndValues ...any) {
	withFields(log.Error().Err(err), keysAndValues).Msg(msg)
}

func Fatal(msg string, err error, keysAndValues ...any) {
	withFields(log.Fatal().Err(err), keysAndValues).Msg(msg)
}

// withFields attaches alternating key/value pairs. A trailing key without a
// value is logged under "EXTRA_VALUE".
func withFields(ev *zerolog.Event, keysAndValues []any) *zerolog.Event {
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", keysAndValues[i])
		}
		ev = ev.Interface(key, keysAndValues[i+1])
	}
	if len(keysAndValues)%2 != 0 {
		ev = ev.Interface("EXTRA_VALUE", keysAndValues[len(keysAndValues)-1])
	}
	return ev
}
