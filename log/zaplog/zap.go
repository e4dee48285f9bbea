// Package zaplog adapts a zap.Logger to rastercache.Logger
package zaplog

import (
	"github.com/airbusgeo/rastercache"
	"go.uber.org/zap"
)

type Logger struct{ L *zap.Logger }

var _ rastercache.Logger = Logger{}

// New wraps l. A nil l is replaced by zap.NewNop()
func New(l *zap.Logger) Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return Logger{L: l}
}

func (z Logger) Debug(msg string, f rastercache.Fields) { z.L.Debug(msg, fields(f)...) }
func (z Logger) Info(msg string, f rastercache.Fields)  { z.L.Info(msg, fields(f)...) }
func (z Logger) Warn(msg string, f rastercache.Fields)  { z.L.Warn(msg, fields(f)...) }
func (z Logger) Error(msg string, f rastercache.Fields) { z.L.Error(msg, fields(f)...) }

func fields(f rastercache.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, v))
	}
	return out
}
