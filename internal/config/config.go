// Package config loads settings from defaults, an optional TOML file, a .env
// file and AIRTWITCH_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kar10s/airtwitch/internal/domain"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

const (
	EnvPrefix  = "AIRTWITCH"
	DefaultDir = "~/.config/airtwitch"
	fileName   = "config"
	fileType   = "toml"
	envFile    = ".env"
)

const (
	KeyClientID          = "twitch.client_id"
	KeyDiscoveryTimeout  = "discovery.timeout"
	KeyDiscoveryInterval = "discovery.interval"
	KeyLogLevel          = "log.level"
	KeyLogJSON           = "log.json"
	KeyHistoryPath       = "history.path"
	KeyHistorySize       = "history.size"
	KeyMetricsAddr       = "metrics.addr"
)

// EnvKeyReplacer maps configuration keys onto environment variable names.
var EnvKeyReplacer = strings.NewReplacer(".", "_")

// Defaults holds the factory value of every key.
var Defaults = map[string]any{
	KeyClientID:          "",
	KeyDiscoveryTimeout:  3 * time.Second,
	KeyDiscoveryInterval: 10 * time.Second,
	KeyLogLevel:          "info",
	KeyLogJSON:           false,
	KeyHistoryPath:       "~/.airtwitch_history",
	KeyHistorySize:       10,
	KeyMetricsAddr:       "",
}

type Config struct {
	ClientID          string
	DiscoveryTimeout  time.Duration
	DiscoveryInterval time.Duration
	LogLevel          string
	LogJSON           bool
	HistoryPath       string
	HistorySize       int
	MetricsAddr       string
}

var setenv = os.Setenv

// New returns a viper instance with defaults and environment bindings in
// place. Flags may be bound to it before Load.
func New(fs afero.Fs) *viper.Viper {
	v := viper.New()
	v.SetFs(fs)
	v.SetConfigName(fileName)
	v.SetConfigType(fileType)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(EnvKeyReplacer)
	v.AutomaticEnv()

	v.SetTypeByDefaultValue(true)
	for key, value := range Defaults {
		v.SetDefault(key, value)
		_ = v.BindEnv(key)
	}
	return v
}

// Load applies the .env file in the working directory and the config file
// in dir, then returns the effective settings. Both files are optional.
func Load(v *viper.Viper, fs afero.Fs, dir string) (Config, error) {
	if err := loadDotEnv(fs, envFile); err != nil {
		return Config{}, domain.NewError(domain.ErrConfiguration, "load "+envFile, err)
	}

	if dir != "" {
		expanded, err := homedir.Expand(dir)
		if err != nil {
			return Config{}, domain.NewError(domain.ErrConfiguration, "config dir", err)
		}
		v.AddConfigPath(expanded)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, domain.NewError(domain.ErrConfiguration, "read config", err)
			}
		}
	}

	historyPath, err := homedir.Expand(v.GetString(KeyHistoryPath))
	if err != nil {
		return Config{}, domain.NewError(domain.ErrConfiguration, "history path", err)
	}

	cfg := Config{
		ClientID:          strings.TrimSpace(v.GetString(KeyClientID)),
		DiscoveryTimeout:  v.GetDuration(KeyDiscoveryTimeout),
		DiscoveryInterval: v.GetDuration(KeyDiscoveryInterval),
		LogLevel:          v.GetString(KeyLogLevel),
		LogJSON:           v.GetBool(KeyLogJSON),
		HistoryPath:       filepath.Clean(historyPath),
		HistorySize:       v.GetInt(KeyHistorySize),
		MetricsAddr:       strings.TrimSpace(v.GetString(KeyMetricsAddr)),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch {
	case c.DiscoveryTimeout <= 0:
		return domain.NewError(domain.ErrConfiguration, KeyDiscoveryTimeout, fmt.Errorf("must be positive, got %s", c.DiscoveryTimeout))
	case c.DiscoveryInterval <= 0:
		return domain.NewError(domain.ErrConfiguration, KeyDiscoveryInterval, fmt.Errorf("must be positive, got %s", c.DiscoveryInterval))
	case c.HistorySize <= 0:
		return domain.NewError(domain.ErrConfiguration, KeyHistorySize, fmt.Errorf("must be positive, got %d", c.HistorySize))
	}
	return nil
}

// loadDotEnv exports the variables of path that are not already set, the
// same way godotenv.Load does, but through fs.
func loadDotEnv(fs afero.Fs, path string) error {
	f, err := fs.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	vars, err := godotenv.Parse(f)
	if err != nil {
		return err
	}
	for key, value := range vars {
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := setenv(key, value); err != nil {
			return err
		}
	}
	return nil
}
