// Package logruslog adapts a logrus.Entry to rastercache.Logger
package logruslog

import (
	"github.com/airbusgeo/rastercache"
	"github.com/sirupsen/logrus"
)

type Logger struct{ E *logrus.Entry }

var _ rastercache.Logger = Logger{}

// New wraps l, the standard logger being used when l is nil
func New(l *logrus.Logger) Logger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return Logger{E: logrus.NewEntry(l)}
}

func (l Logger) Debug(msg string, f rastercache.Fields) {
	l.E.WithFields(logrus.Fields(f)).Debug(msg)
}
func (l Logger) Info(msg string, f rastercache.Fields) { l.E.WithFields(logrus.Fields(f)).Info(msg) }
func (l Logger) Warn(msg string, f rastercache.Fields) { l.E.WithFields(logrus.Fields(f)).Warn(msg) }
func (l Logger) Error(msg string, f rastercache.Fields) {
	l.E.WithFields(logrus.Fields(f)).Error(msg)
}
