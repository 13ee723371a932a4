package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/stagegate/pkg/config"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLogLevel(tt.input))
		})
	}
}

func TestNew_SetsGlobalLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	l := New(&config.Config{Env: "development", LogLevel: "warn", LogFormat: "json"})
	require.NotNil(t, l)
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m))
	return m
}

func TestFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "json", "debug", "test")

	l.WithRun("run-1").WithEntity("SECTOR_ENERGY").WithFields(map[string]interface{}{
		"stage": 8,
		"bars":  300,
	}).Info("classified")

	m := decodeLine(t, &buf)
	assert.Equal(t, "classified", m["message"])
	assert.Equal(t, "run-1", m["run_id"])
	assert.Equal(t, "SECTOR_ENERGY", m["entity_id"])
	assert.Equal(t, float64(8), m["stage"])
	assert.Equal(t, "stagegate", m["service"])
	assert.Equal(t, "test", m["env"])
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "json", "info", "test")

	l.WithError(errors.New("boom")).Error("load failed")

	m := decodeLine(t, &buf)
	assert.Equal(t, "boom", m["error"])
	assert.Equal(t, "error", m["level"])
}

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "json", "warn", "test")

	l.Info("hidden")
	l.Debugf("hidden %d", 1)
	assert.Empty(t, buf.String())

	l.Warnf("shown %d", 2)
	assert.True(t, strings.Contains(buf.String(), "shown 2"))
}

func TestNop(t *testing.T) {
	l := Nop()
	l.WithField("k", "v").Info("discarded")
	assert.NotNil(t, l.Zerolog())
}
