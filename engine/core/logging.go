package core

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var once sync.Once

type logger struct {
	*log.Logger
}

var singleton *logger

// LogLevel mirrors the charmbracelet levels so callers do not need to import
// the logging library to configure it.
type LogLevel = log.Level

const (
	DebugLevel LogLevel = log.DebugLevel
	InfoLevel  LogLevel = log.InfoLevel
	WarnLevel  LogLevel = log.WarnLevel
	ErrorLevel LogLevel = log.ErrorLevel
)

func getLogger() *logger {
	once.Do(func() {
		l := log.NewWithOptions(os.Stderr, log.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
			Prefix:          "Engine 🏎️ ",
			CallerOffset:    1,
		})
		l.SetLevel(log.DebugLevel)
		singleton = &logger{l}
	})
	return singleton
}

// ParseLogLevel accepts debug, info, warn and error.
func ParseLogLevel(level string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	}
	return InfoLevel, fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, level)
}

func SetLogLevel(level LogLevel) {
	getLogger().SetLevel(level)
}

// SetLogOutput redirects the engine logger, tests use it with io.Discard.
func SetLogOutput(w io.Writer) {
	getLogger().SetOutput(w)
}

func LogDebug(msg string, args ...interface{}) {
	getLogger().Debugf(msg, args...)
}

func LogInfo(msg string, args ...interface{}) {
	getLogger().Infof(msg, args...)
}

func LogWarn(msg string, args ...interface{}) {
	getLogger().Warnf(msg, args...)
}

func LogError(msg string, args ...interface{}) {
	getLogger().Errorf(msg, args...)
}

func LogFatal(msg string, args ...interface{}) {
	getLogger().Fatalf(msg, args...)
}
