package config

import (
	"errors"
	"testing"
	"time"

	"github.com/kar10s/airtwitch/internal/domain"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()

	cfg, err := Load(New(fs), fs, "/etc/airtwitch")
	require.NoError(t, err)

	home, err := homedir.Expand("~/.airtwitch_history")
	require.NoError(t, err)

	assert.Equal(t, "", cfg.ClientID)
	assert.Equal(t, 3*time.Second, cfg.DiscoveryTimeout)
	assert.Equal(t, 10*time.Second, cfg.DiscoveryInterval)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.LogJSON)
	assert.Equal(t, home, cfg.HistoryPath)
	assert.Equal(t, 10, cfg.HistorySize)
	assert.Empty(t, cfg.MetricsAddr)
}

func TestLoadConfigFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/airtwitch/config.toml", []byte(`
[twitch]
client_id = "from-file"

[discovery]
timeout = "5s"

[history]
path = "/tmp/history"
size = 3
`), 0o644))

	cfg, err := Load(New(fs), fs, "/etc/airtwitch")
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.ClientID)
	assert.Equal(t, 5*time.Second, cfg.DiscoveryTimeout)
	assert.Equal(t, "/tmp/history", cfg.HistoryPath)
	assert.Equal(t, 3, cfg.HistorySize)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/airtwitch/config.toml", []byte("[log]\nlevel = \"warn\"\n"), 0o644))
	t.Setenv("AIRTWITCH_LOG_LEVEL", "debug")
	t.Setenv("AIRTWITCH_METRICS_ADDR", "127.0.0.1:9100")

	cfg, err := Load(New(fs), fs, "/etc/airtwitch")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "127.0.0.1:9100", cfg.MetricsAddr)
}

func TestDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, ".env", []byte("AIRTWITCH_TWITCH_CLIENT_ID=dotenv\nAIRTWITCH_LOG_LEVEL=error\n"), 0o644))
	t.Setenv("AIRTWITCH_LOG_LEVEL", "warn")

	set := map[string]string{}
	orig := setenv
	setenv = func(key, value string) error {
		set[key] = value
		t.Setenv(key, value)
		return nil
	}
	t.Cleanup(func() { setenv = orig })

	cfg, err := Load(New(fs), fs, "")
	require.NoError(t, err)
	assert.Equal(t, "dotenv", cfg.ClientID)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, map[string]string{"AIRTWITCH_TWITCH_CLIENT_ID": "dotenv"}, set)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	fs := afero.NewMemMapFs()
	t.Setenv("AIRTWITCH_HISTORY_SIZE", "0")

	_, err := Load(New(fs), fs, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
	assert.Contains(t, err.Error(), KeyHistorySize)
}

func TestEnvKeyReplacer(t *testing.T) {
	assert.Equal(t, "twitch_client_id", EnvKeyReplacer.Replace(KeyClientID))
}
