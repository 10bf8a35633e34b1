package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sweeney/env-sensor/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"":        zapcore.InfoLevel,
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestJSONCarriesServiceAndVersion(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, "1.2.3", &buf)
	require.NoError(t, err)

	log.Info("sampled", zap.Int("temperature", 2150))
	require.NoError(t, log.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "sampled", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "env-sensor", entry["service"])
	assert.Equal(t, "1.2.3", entry["version"])
	assert.EqualValues(t, 2150, entry["temperature"])
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(config.LoggingConfig{Level: "warn"}, "dev", &buf)
	require.NoError(t, err)

	log.Info("dropped")
	log.Warn("kept")
	require.NoError(t, log.Sync())

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(config.LoggingConfig{Format: "text"}, "dev", &buf)
	require.NoError(t, err)

	log.Info("hello")
	require.NoError(t, log.Sync())

	assert.Contains(t, buf.String(), "hello")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}

func TestRejectsBadConfig(t *testing.T) {
	_, err := New(config.LoggingConfig{Output: "syslog"}, "dev")
	assert.Error(t, err)

	_, err = New(config.LoggingConfig{Format: "xml"}, "dev")
	assert.Error(t, err)

	_, err = New(config.LoggingConfig{Level: "loud"}, "dev")
	assert.Error(t, err)
}
