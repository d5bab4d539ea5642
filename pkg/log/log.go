package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

type ZeroLogger struct {
	logger zerolog.Logger
	name   string
}

var output atomic.Pointer[io.Writer]

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
		return filepath.Base(file) + ":" + strconv.Itoa(line)
	}

	var w io.Writer = os.Stdout
	output.Store(&w)
}

func SetGlobalLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

// ParseLevel accepts zerolog level names; an empty string means info.
func ParseLevel(level string) (zerolog.Level, error) {
	if level == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return lvl, nil
}

// Setup sets the global level and the output of loggers created afterwards.
// With pretty set, output is human readable instead of JSON.
func Setup(level string, pretty bool, w io.Writer) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	SetGlobalLevel(lvl)

	if w == nil {
		w = os.Stdout
	}
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.DateTime}
	}
	output.Store(&w)
	defaultLogger.Store(NewLogger("default", nil))
	return nil
}

// NewLogger returns a logger tagged with name, writing to output or to the
// writer configured by Setup when nil.
func NewLogger(name string, out io.Writer) *ZeroLogger {
	if out == nil {
		out = *output.Load()
	}

	logger := zerolog.New(out).
		With().
		Timestamp().
		Str("logger", name).
		Caller().
		Logger()

	return &ZeroLogger{
		logger: logger,
		name:   name,
	}
}

// With returns a child logger carrying an extra field.
func (l *ZeroLogger) With(key string, value any) *ZeroLogger {
	return &ZeroLogger{
		logger: l.logger.With().Interface(key, value).Logger(),
		name:   l.name,
	}
}

func (l *ZeroLogger) Name() string {
	return l.name
}

func (l *ZeroLogger) Debugf(format string, args ...any) {
	l.logger.Debug().CallerSkipFrame(1).Msgf(format, args...)
}

func (l *ZeroLogger) Infof(format string, args ...any) {
	l.logger.Info().CallerSkipFrame(1).Msgf(format, args...)
}

func (l *ZeroLogger) Warnf(format string, args ...any) {
	l.logger.Warn().CallerSkipFrame(1).Msgf(format, args...)
}

func (l *ZeroLogger) Errorf(format string, args ...any) {
	l.logger.Error().CallerSkipFrame(1).Msgf(format, args...)
}

var defaultLogger atomic.Pointer[ZeroLogger]

func init() {
	defaultLogger.Store(NewLogger("default", nil))
}

// logf reports the caller of the package level function.
func logf(event *zerolog.Event, format string, args ...any) {
	event.CallerSkipFrame(2).Msgf(format, args...)
}

func Debugf(format string, args ...any) {
	logf(defaultLogger.Load().logger.Debug(), format, args...)
}

func Infof(format string, args ...any) {
	logf(defaultLogger.Load().logger.Info(), format, args...)
}

func Warnf(format string, args ...any) {
	logf(defaultLogger.Load().logger.Warn(), format, args...)
}

func Errorf(format string, args ...any) {
	logf(defaultLogger.Load().logger.Error(), format, args...)
}

func Fatalf(format string, args ...any) {
	// zerolog exits once the event is written
	logf(defaultLogger.Load().logger.Fatal(), format, args...)
}
