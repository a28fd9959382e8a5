package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithComponentJSON(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", JSON: true, Output: &buf, Version: "v1.2.3"})
	t.Cleanup(func() { Configure(Config{Output: &bytes.Buffer{}}) })

	WithComponent("discovery").Info().Str("key", "tv").Msg("device_resolved")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "discovery", entry["component"])
	assert.Equal(t, "airtwitch", entry["service"])
	assert.Equal(t, "v1.2.3", entry["version"])
	assert.Equal(t, "device_resolved", entry["message"])
	assert.Equal(t, "info", entry["level"])
}

func TestConfigureLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "warn", JSON: true, Output: &buf})
	t.Cleanup(func() { Configure(Config{Output: &bytes.Buffer{}}) })

	Base().Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	Base().Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestConfigureUnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "chatty", JSON: true, Output: &buf})
	t.Cleanup(func() { Configure(Config{Output: &bytes.Buffer{}}) })

	Base().Debug().Msg("hidden")
	Base().Info().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestConsoleWriterIsDefault(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Output: &buf})
	t.Cleanup(func() { Configure(Config{Output: &bytes.Buffer{}}) })

	Base().Info().Msg("playback_started")
	assert.Contains(t, buf.String(), "playback_started")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}
