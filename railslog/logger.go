// Package railslog defines the logging capability the coordination kernel
// depends on, and a default adapter over logrus using the familiar
// log.WithFields(...).Info/Warn/Error/Debug idiom.
package railslog

import (
	"github.com/sirupsen/logrus"
)

// Fields carries structured key/value context alongside a log line.
type Fields map[string]any

// Logger is the capability every other component depends on instead of a
// concrete logging library. Implementations must be safe for concurrent
// use.
type Logger interface {
	Debug(msg string, fields Fields)
	Info(msg string, fields Fields)
	Warn(msg string, fields Fields)
	Error(msg string, fields Fields)
}

// Logrus adapts a *logrus.Logger to the Logger interface.
type Logrus struct {
	entry *logrus.Logger
}

// NewLogrus wraps l, or logrus's standard logger if l is nil.
func NewLogrus(l *logrus.Logger) Logrus {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return Logrus{entry: l}
}

func (l Logrus) Debug(msg string, fields Fields) {
	l.entry.WithFields(logrus.Fields(fields)).Debug(msg)
}

func (l Logrus) Info(msg string, fields Fields) {
	l.entry.WithFields(logrus.Fields(fields)).Info(msg)
}

func (l Logrus) Warn(msg string, fields Fields) {
	l.entry.WithFields(logrus.Fields(fields)).Warn(msg)
}

func (l Logrus) Error(msg string, fields Fields) {
	l.entry.WithFields(logrus.Fields(fields)).Error(msg)
}

// Nop discards everything. Used as the zero-value default so a Scheduler
// built without WithLogger never nil-panics.
type Nop struct{}

func (Nop) Debug(string, Fields) {}
func (Nop) Info(string, Fields)  {}
func (Nop) Warn(string, Fields)  {}
func (Nop) Error(string, Fields) {}
