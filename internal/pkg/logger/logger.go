package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Level represents the severity of a log entry.
type Level = logrus.Level

const (
	DEBUG = logrus.DebugLevel
	INFO  = logrus.InfoLevel
	WARN  = logrus.WarnLevel
	ERROR = logrus.ErrorLevel
)

var defaultLogger = newLogger(os.Stderr)

func newLogger(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "time",
			logrus.FieldKeyMsg:  "msg",
		},
	})
	return l
}

// SetLevel sets the minimum log level for the default logger.
func SetLevel(l Level) { defaultLogger.SetLevel(l) }

// SetLevelName parses a level name ("debug", "info", "warn", "error") and applies it.
func SetLevelName(name string) error {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(name))
	if err != nil {
		return err
	}
	defaultLogger.SetLevel(lvl)
	return nil
}

// SetOutput redirects the default logger, mostly for tests.
func SetOutput(w io.Writer) { defaultLogger.SetOutput(w) }

// Logrus exposes the underlying logger for libraries that want an *logrus.Logger.
func Logrus() *logrus.Logger { return defaultLogger }

// Debug emits a DEBUG-level structured log entry.
func Debug(msg string, fields ...interface{}) { log(logrus.DebugLevel, msg, fields...) }

// Info emits an INFO-level structured log entry.
func Info(msg string, fields ...interface{}) { log(logrus.InfoLevel, msg, fields...) }

// Warn emits a WARN-level structured log entry.
func Warn(msg string, fields ...interface{}) { log(logrus.WarnLevel, msg, fields...) }

// Error emits an ERROR-level structured log entry.
func Error(msg string, fields ...interface{}) { log(logrus.ErrorLevel, msg, fields...) }

// Fatal emits an entry at ERROR level and exits the process.
func Fatal(msg string, fields ...interface{}) {
	defaultLogger.WithFields(toFields(fields)).Fatal(msg)
}

func log(level logrus.Level, msg string, fields ...interface{}) {
	if !defaultLogger.IsLevelEnabled(level) {
		return
	}
	defaultLogger.WithFields(toFields(fields)).Log(level, msg)
}

// toFields parses key-value pairs; a trailing key without a value is dropped.
func toFields(kv []interface{}) logrus.Fields {
	f := make(logrus.Fields, len(kv)/2)
	for i := 0; i < len(kv)-1; i += 2 {
		key := fmt.Sprintf("%v", kv[i])
		switch v := kv[i+1].(type) {
		case error:
			f[key] = v.Error()
		default:
			f[key] = v
		}
	}
	return f
}
