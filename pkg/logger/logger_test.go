package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestGet_BeforeInit(t *testing.T) {
	l := Get()
	require.NotNil(t, l)
	// no-op logger must not panic
	l.Info("ignored", zap.String("k", "v"))
	l.ErrorContext(context.Background(), "ignored")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"DEBUG":   zapcore.DebugLevel,
		"warn":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"info":    zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), "level %q", in)
	}
}

func TestNew_WritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")

	l, err := New(&Config{
		Level:       "info",
		ServiceName: "logger-test",
		OutputPath:  path,
		MaxSizeMB:   1,
	})
	require.NoError(t, err)

	l.Info("booking created", zap.String("booking_id", "b-1"))
	_ = l.Zap().Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "booking created")
	assert.Contains(t, string(data), "b-1")
	assert.Contains(t, string(data), "logger-test")
}

func TestInit_SetsGlobal(t *testing.T) {
	require.NoError(t, Init(&Config{Level: "debug", ServiceName: "svc", Development: true}))
	defer Sync()

	l := Get()
	assert.True(t, l.Zap().Core().Enabled(zapcore.DebugLevel))
	assert.NotNil(t, l.With(zap.String("component", "test")))
}
