package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   LogLevelDebug,
		"INFO":    LogLevelInfo,
		"":        LogLevelInfo,
		"warning": LogLevelWarn,
		"Error":   LogLevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestSlogAdapter_KeyValues(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, nil)))

	l.Info("statesync.step", "step", "merge_state", "status", "succeeded")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "statesync.step", entry["msg"])
	assert.Equal(t, "merge_state", entry["step"])
}

func TestZapAdapter_KeyValues(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewZapAdapter(zap.New(core))

	l.Debug("runner.run.start", "session_id", "s1")
	l.Warn("statesync.mirror.failed", "error", "boom")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "runner.run.start", entries[0].Message)
	assert.Equal(t, "s1", entries[0].ContextMap()["session_id"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
}

func TestNew_ZapWithRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edumesh.log")
	cfg := DefaultConfig()
	cfg.File = path
	cfg.Level = "debug"

	l, closeFn, err := New(cfg)
	require.NoError(t, err)

	l.Info("server.start", "addr", ":8080")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"server.start"`)
	assert.Contains(t, string(data), `"addr":":8080"`)
}

func TestNew_Backends(t *testing.T) {
	l, _, err := New(Config{Backend: "slog", Level: "warn"})
	require.NoError(t, err)
	assert.IsType(t, &SlogAdapter{}, l)

	l, _, err = New(Config{Backend: "none"})
	require.NoError(t, err)
	assert.Equal(t, NoOpLogger{}, l)

	_, _, err = New(Config{Backend: "logrus"})
	assert.Error(t, err)

	_, _, err = New(Config{Level: "loud"})
	assert.Error(t, err)
}
