package logger

import (
	"io"

	"github.com/sirupsen/logrus"
)

// NewNullLogger returns a logger that discards everything. Used in tests and
// as the fallback when no logger is wired.
func NewNullLogger() Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	l.ExitFunc = func(int) {}
	return NewLogrusAdapter(logrus.NewEntry(l))
}
