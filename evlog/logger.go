// Package evlog is the logging facade of the reactor. Libraries log through the
// package-level functions; the default logger discards everything until a
// program installs one with SetLogger.
package evlog

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type Fields = logrus.Fields

type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
	WithFields(fields Fields) Logger
}

var logger = NewNoneLogger()

func SetLogger(l Logger) {
	if l == nil {
		l = NewNoneLogger()
	}
	logger = l
}

func Debugf(format string, args ...interface{}) {
	logger.Debugf(format, args...)
}

func Infof(format string, args ...interface{}) {
	logger.Infof(format, args...)
}

func Warnf(format string, args ...interface{}) {
	logger.Warnf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	logger.Errorf(format, args...)
}

func Fatalf(format string, args ...interface{}) {
	logger.Fatalf(format, args...)
}

func WithFields(fields Fields) Logger {
	return logger.WithFields(fields)
}

// Options selects level ("debug", "info", ...) and format ("text" or "json").
type Options struct {
	Level  string
	Format string
	Output io.Writer
}

func NewLogger(opts Options) (Logger, error) {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	if opts.Output != nil {
		l.SetOutput(opts.Output)
	}

	if opts.Level != "" {
		level, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, err
		}
		l.SetLevel(level)
	}

	switch strings.ToLower(opts.Format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return &stdLogger{logrus.NewEntry(l)}, nil
}

func NewDebugLogger() Logger {
	l, _ := NewLogger(Options{Level: "debug"})
	return l
}

type stdLogger struct {
	entry *logrus.Entry
}

func (l *stdLogger) Debugf(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

func (l *stdLogger) Infof(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

func (l *stdLogger) Warnf(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

func (l *stdLogger) Errorf(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

func (l *stdLogger) Fatalf(format string, args ...interface{}) {
	l.entry.Fatalf(format, args...)
}

func (l *stdLogger) WithFields(fields Fields) Logger {
	return &stdLogger{l.entry.WithFields(fields)}
}

func NewNoneLogger() Logger {
	return noneLogger{}
}

type noneLogger struct{}

func (noneLogger) Debugf(format string, args ...interface{}) {}

func (noneLogger) Infof(format string, args ...interface{}) {}

func (noneLogger) Warnf(format string, args ...interface{}) {}

func (noneLogger) Errorf(format string, args ...interface{}) {}

func (noneLogger) Fatalf(format string, args ...interface{}) {}

func (n noneLogger) WithFields(fields Fields) Logger { return n }
