package log

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Options controls how a Logger is constructed.
type Options struct {
	// Verbose enables debug level output.
	Verbose bool
	// JSON switches the formatter to JSON lines.
	JSON bool
	// Output defaults to stderr.
	Output io.Writer
}

// Logger is a leveled logger handed explicitly to every component.
type Logger struct {
	entry *logrus.Entry
}

var std = New(Options{})

// New creates a Logger backed by its own logrus instance.
func New(opts Options) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	if opts.Output != nil {
		l.SetOutput(opts.Output)
	}

	l.SetLevel(logrus.InfoLevel)
	if opts.Verbose {
		l.SetLevel(logrus.DebugLevel)
	}

	if opts.JSON {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05Z07:00",
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	return &Logger{entry: logrus.NewEntry(l)}
}

// Discard returns a Logger that drops everything. Used by tests.
func Discard() *Logger {
	return New(Options{Output: io.Discard})
}

// WithField returns a child logger carrying an additional field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// WithIface returns a child logger scoped to an interface name.
func (l *Logger) WithIface(name string) *Logger {
	return l.WithField("iface", name)
}

// IsVerbose returns true if debug output is enabled.
func (l *Logger) IsVerbose() bool {
	return l.entry.Logger.IsLevelEnabled(logrus.DebugLevel)
}

// Debugf logs a debug message if verbose is enabled.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

// Infof logs an info message.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

// Warnf logs a warning message.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

// Errorf logs an error message.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

// SetDefault replaces the logger used by the package-level functions.
// Only the CLI entry point is expected to call it.
func SetDefault(l *Logger) {
	std = l
}

// Default returns the logger used by the package-level functions.
func Default() *Logger {
	return std
}

// Debugf logs a debug message using the default logger.
func Debugf(format string, args ...interface{}) {
	std.Debugf(format, args...)
}

// Infof logs an info message using the default logger.
func Infof(format string, args ...interface{}) {
	std.Infof(format, args...)
}

// Warnf logs a warning message using the default logger.
func Warnf(format string, args ...interface{}) {
	std.Warnf(format, args...)
}

// Errorf logs an error message using the default logger.
func Errorf(format string, args ...interface{}) {
	std.Errorf(format, args...)
}

// Fatalf logs an error message and exits the program.
func Fatalf(format string, args ...interface{}) {
	std.Errorf(format, args...)
	os.Exit(1)
}
