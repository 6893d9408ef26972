// Package config assembles the CLI settings from defaults, an optional YAML
// file, a .env file, UNIHUB_ environment variables and command-line flags,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultBaseURL is the backend the CLI talks to unless configured otherwise.
// Set at build time with -ldflags "-X github.com/unihub/unihub/config.DefaultBaseURL=...".
var DefaultBaseURL = "https://api.unihub.example/api"

const EnvPrefix = "UNIHUB"

type StoreConfig struct {
	Backend string `mapstructure:"backend" validate:"oneof=sqlite bolt memory"`
	Path    string `mapstructure:"path"`
}

type BridgeConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	PollAttempts int           `mapstructure:"poll_attempts" validate:"min=1"`
	InitData     string        `mapstructure:"init_data"`
	URL          string        `mapstructure:"url" validate:"omitempty,url"`
	Headless     bool          `mapstructure:"headless"`
}

type Config struct {
	BaseURL string        `mapstructure:"base_url" validate:"required,url"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
	Workers int           `mapstructure:"workers" validate:"min=1,max=20"`
	Store   StoreConfig   `mapstructure:"store"`
	Bridge  BridgeConfig  `mapstructure:"bridge"`
}

// Sources names where Load looks. Empty file paths fall back to the files in
// Dir(); a nil flag set means no flags.
type Sources struct {
	ConfigFile string
	EnvFile    string
	Flags      *pflag.FlagSet
}

// flagKeys maps CLI flag names to configuration keys.
var flagKeys = map[string]string{
	"base-url":      "base_url",
	"timeout":       "timeout",
	"workers":       "workers",
	"store":         "store.backend",
	"store-path":    "store.path",
	"init-data":     "bridge.init_data",
	"bridge-url":    "bridge.url",
	"poll-attempts": "bridge.poll_attempts",
}

var validate = validator.New()

// Dir is the per-user directory holding the config file and the device store.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".unihub"
	}
	return filepath.Join(home, ".unihub")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("base_url", DefaultBaseURL)
	v.SetDefault("timeout", 15*time.Second)
	v.SetDefault("workers", 4)
	v.SetDefault("store.backend", "sqlite")
	v.SetDefault("store.path", filepath.Join(Dir(), "device.db"))
	v.SetDefault("bridge.poll_interval", 100*time.Millisecond)
	v.SetDefault("bridge.poll_attempts", 10)
	v.SetDefault("bridge.init_data", "")
	v.SetDefault("bridge.url", "")
	v.SetDefault("bridge.headless", true)
}

// Load resolves the configuration and validates it.
func Load(src Sources) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	envFile := src.EnvFile
	if envFile == "" {
		envFile = filepath.Join(Dir(), ".env")
	}
	// A missing .env file is fine; existing environment variables win over it.
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	configFile := src.ConfigFile
	explicit := configFile != ""
	if !explicit {
		configFile = filepath.Join(Dir(), "config.yaml")
	}
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	} else {
		log.Debug().Str("file", configFile).Msg("Loaded config file")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if src.Flags != nil {
		for name, key := range flagKeys {
			if f := src.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag --%s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
