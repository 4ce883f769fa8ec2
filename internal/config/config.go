// Package config provides application configuration for toolmux using Viper.
package config

import (
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	"github.com/toolmux/toolmux/internal/paths"
)

// AppName is the application name used for config file naming.
const AppName = "toolmux"

// Config is the top-level application configuration. The server manifest is
// a separate document (see internal/manifest); this file holds defaults for
// the CLI itself.
type Config struct {
	Version  int    `mapstructure:"version" yaml:"version"`
	Provider string `mapstructure:"provider" yaml:"provider"`
	Manifest string `mapstructure:"manifest" yaml:"manifest"`

	// RequestTimeout bounds one request's retry budget on HTTP transports.
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// Init initializes Viper with defaults. Call once at startup before
// accessing config values.
func Init() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	// Search paths, in order of precedence.
	viper.AddConfigPath(".")
	viper.AddConfigPath(filepath.Join(paths.ConfigHome(), AppName))

	viper.SetEnvPrefix("TOOLMUX")
	viper.AutomaticEnv()

	viper.SetDefault("version", 1)
	viper.SetDefault("provider", "anthropic")
	viper.SetDefault("request_timeout", 30*time.Second)
}

// Load reads the configuration file. With a path, that exact file must
// exist; with an empty path the default locations are searched and missing
// files fall back to defaults.
func Load(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if path != "" {
				return nil, errors.Wrapf(err, "config file not found at %s", path)
			}
		} else {
			return nil, errors.Wrap(err, "reading config file")
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshaling config")
	}

	if cfg.Manifest == "" {
		cfg.Manifest = paths.DefaultManifestPath()
	}

	return &cfg, nil
}
