package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"emperror.dev/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

var (
	logger  = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).Level(zerolog.WarnLevel).With().Timestamp().Logger()
	logFile *os.File
	mu      sync.RWMutex
)

// ValidLevels are the accepted values of --log-level
var ValidLevels = []string{"ERROR", "WARN", "INFO", "DEBUG"}

// ParseLevel converts ERROR|WARN|INFO|DEBUG (any case) to a zerolog level
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "ERROR":
		return zerolog.ErrorLevel, nil
	case "WARN", "WARNING":
		return zerolog.WarnLevel, nil
	case "INFO":
		return zerolog.InfoLevel, nil
	case "DEBUG":
		return zerolog.DebugLevel, nil
	}
	return zerolog.NoLevel, errors.Errorf("log level '%s' not valid, use one of %s", level, strings.Join(ValidLevels, ", "))
}

// SetupLogger replaces the package logger. An empty file logs to stderr.
// Standard output is never used; it carries the report.
func SetupLogger(level, file string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()

	var out io.Writer = os.Stderr
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return errors.Wrapf(err, "failed to open log file %s", file)
		}
		closeFileLocked()
		logFile = f
		out = f
	}

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	logger = newLogger(out, lvl, file == "")
	logger.Debug().Msgf("logger with level %s created", lvl)
	return nil
}

// SetOutput redirects the logger to w, mostly for tests
func SetOutput(w io.Writer, level zerolog.Level) {
	mu.Lock()
	defer mu.Unlock()
	logger = newLogger(w, level, false)
}

func newLogger(w io.Writer, lvl zerolog.Level, console bool) zerolog.Logger {
	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// Logger returns the current logger
func Logger() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	l := logger
	return &l
}

// CloseLogger closes the log file, if any, and falls back to stderr
func CloseLogger() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logger.Debug().Msg("closing log file")
		closeFileLocked()
		logger = newLogger(os.Stderr, logger.GetLevel(), true)
	}
}

func closeFileLocked() {
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

// DebugLog logs a debug message
func DebugLog(format string, args ...interface{}) {
	Logger().Debug().Msgf(format, args...)
}

// LogInfo logs an information message
func LogInfo(format string, args ...interface{}) {
	Logger().Info().Msgf(format, args...)
}

// LogWarning logs a warning message
func LogWarning(format string, args ...interface{}) {
	Logger().Warn().Msgf(format, args...)
}

// LogError logs an error message
func LogError(format string, args ...interface{}) {
	Logger().Error().Msgf(format, args...)
}

// LogImageProcessed logs the outcome of one file
func LogImageProcessed(path string, err error) {
	if err != nil {
		Logger().Warn().Err(err).Str("path", path).Msg("file failed")
		return
	}
	Logger().Debug().Str("path", path).Msg("file processed")
}
