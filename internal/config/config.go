// Package config loads runtime configuration from an optional config
// file and EPUBFTS_-prefixed environment variables. Flags override both;
// precedence is flag, then environment, then file, then default.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the resolved runtime configuration.
type Config struct {
	// SettingsPath locates the application settings database, or is
	// empty to use the per-user default location.
	SettingsPath string `mapstructure:"settings_path"`
	// Workers is the extraction parallelism during sync.
	Workers int `mapstructure:"workers"`
	// Limit caps search results.
	Limit int `mapstructure:"limit"`
	// Debug enables debug-level logging.
	Debug bool `mapstructure:"debug"`
}

// Load reads configuration. cfgFile may be empty, in which case no file
// is consulted and only environment variables and defaults apply.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("settings_path", "")
	v.SetDefault("workers", 1)
	v.SetDefault("limit", 20)
	v.SetDefault("debug", false)

	v.SetEnvPrefix("EPUBFTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Limit < 1 {
		cfg.Limit = 20
	}
	return &cfg, nil
}
