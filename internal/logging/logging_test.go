package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tausound/server/internal/config"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"VERBOSE": slog.LevelDebug,
		"":        slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)

	Component(l, "dispatch").Info("dropped")
	assert.Zero(t, buf.Len(), "info is below warn")

	Component(l, "dispatch").Warn("slow", "slot", 3)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "dispatch", rec["component"])
	assert.Equal(t, float64(3), rec["slot"])
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(config.LoggingConfig{Level: "debug"}, &buf)
	require.NoError(t, err)
	l.Debug("hello")
	assert.True(t, strings.Contains(buf.String(), "msg=hello"))

	_, err = New(config.LoggingConfig{Format: "xml"}, &buf)
	assert.Error(t, err)
}
