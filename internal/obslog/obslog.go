// Package obslog wraps logrus with the level/format conventions this
// service needs: a default text formatter for local runs, JSON for
// anything shipped off-box, and a -v debug bump applied once at
// startup.
package obslog

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Config controls how the root logger is constructed.
type Config struct {
	Level  string // "debug", "info", "warn", "error"; default "info"
	Format string // "text" or "json"; default "text"
	Output io.Writer
}

// Logger is the handle the rest of the service logs through.
type Logger struct {
	*logrus.Logger
}

// New builds a Logger from cfg, falling back to sane defaults for any
// zero-valued field.
func New(cfg Config) *Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if cfg.Output != nil {
		l.SetOutput(cfg.Output)
	} else {
		l.SetOutput(os.Stderr)
	}

	return &Logger{Logger: l}
}

// NewDefault returns an info-level, text-formatted logger. Callers
// typically chain WithField("component", name) on the result.
func NewDefault() *Logger {
	return New(Config{Level: "info", Format: "text"})
}

// WithField is a thin convenience wrapper so callers don't import
// logrus directly just to start a field chain.
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.Logger.WithField(key, value)
}

// WithFields behaves like WithField for multiple keys at once.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.Logger.WithFields(fields)
}

// SetVerbose raises the logger to debug level, mirroring the -v flag.
func (l *Logger) SetVerbose() {
	l.Logger.SetLevel(logrus.DebugLevel)
}
