package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewCore_JSONEncoding(t *testing.T) {
	var buf bytes.Buffer
	log := zap.New(newCore(Config{Encoding: "json"}, zapcore.AddSync(&buf), zapcore.InfoLevel))

	log.Debug("hidden")
	log.Info("cart loaded", zap.Int("lines", 2))
	require.NoError(t, log.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "cart loaded", entry["msg"])
	require.Equal(t, float64(2), entry["lines"])
	require.Equal(t, "info", entry["level"])
}

func TestNewCore_Console(t *testing.T) {
	var buf bytes.Buffer
	log := zap.New(newCore(Config{Encoding: "console"}, zapcore.AddSync(&buf), zapcore.DebugLevel))

	log.Debug("visible")
	require.NoError(t, log.Sync())

	require.Contains(t, buf.String(), "visible")
	require.NotContains(t, buf.String(), "{")
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	log := New(Config{Level: "loud"})

	require.True(t, log.Core().Enabled(zapcore.InfoLevel))
	require.False(t, log.Core().Enabled(zapcore.DebugLevel))
}
