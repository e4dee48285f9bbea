package zaplog

import (
	"errors"
	"testing"

	"github.com/airbusgeo/rastercache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(core))

	l.Debug("evicted block", rastercache.Fields{"block": "r[0](1,2)"})
	l.Warn("block write-back failed", rastercache.Fields{"err": errors.New("boom")})
	l.Error("flush failed", nil)

	entries := logs.AllUntimed()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "r[0](1,2)", entries[0].ContextMap()["block"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "boom", entries[1].ContextMap()["err"])
	assert.Equal(t, "flush failed", entries[2].Message)
	assert.Empty(t, entries[2].Context)
}

func TestNilLogger(t *testing.T) {
	l := New(nil)
	assert.NotPanics(t, func() { l.Info("hello", rastercache.Fields{"a": 1}) })
}
