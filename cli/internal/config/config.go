// Package config loads guardctl settings from ~/.guardctl/config.yaml and
// GUARDCTL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	SigninURL string        `mapstructure:"signin_url"`
	Output    string        `mapstructure:"output"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		SigninURL: "http://localhost:8090",
		Output:    "table",
		Timeout:   10 * time.Second,
	}
}

// DefaultPath returns $HOME/.guardctl/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".guardctl", "config.yaml"), nil
}

// Load reads cfgFile, or the default path when empty. A missing default
// file is not an error; a missing explicit file is.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GUARDCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	d := Default()
	v.SetDefault("signin_url", d.SigninURL)
	v.SetDefault("output", d.Output)
	v.SetDefault("timeout", d.Timeout)

	explicit := cfgFile != ""
	if !explicit {
		path, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		cfgFile = path
	}
	v.SetConfigFile(cfgFile)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", cfgFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.SigninURL = strings.TrimRight(cfg.SigninURL, "/")
	return &cfg, nil
}
