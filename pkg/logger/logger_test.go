package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestNew(t *testing.T) {
	l, err := New("debug")
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestComponentAddsField(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := (&Logger{Logger: zap.New(core)}).Component("rooms")

	l.Info("hello")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "rooms", logs.All()[0].ContextMap()["component"])
}

func TestWithRequest(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := (&Logger{Logger: zap.New(core)}).WithRequest("c1", "u1", "t1")

	l.Info("chat")

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "c1", fields["correlation_id"])
	assert.Equal(t, "u1", fields["user_id"])
	assert.Equal(t, "t1", fields["thread_id"])
}

func TestGlobal(t *testing.T) {
	prev := Global()
	t.Cleanup(func() { SetGlobal(prev) })

	nop := NewNop()
	SetGlobal(nop)
	assert.Same(t, nop, Global())
}
