// Package config loads clz configuration from file, environment, and flags.
//
// Precedence, highest first: explicit flag bindings, CLZ_* environment
// variables, the clz.yaml config file, built-in defaults.
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

// Config holds the full clz runtime configuration.
type Config struct {
	// DBPath is the local store file. Defaults to ~/.popclozet/clz.db.
	DBPath string `mapstructure:"db_path"`

	// Backend is the remote API connection.
	Backend BackendConfig `mapstructure:"backend"`

	// Anthropic configures hygiene SOP generation.
	Anthropic AnthropicConfig `mapstructure:"anthropic"`

	// CacheMaxAge bounds product mirror staleness before eviction.
	CacheMaxAge time.Duration `mapstructure:"cache_max_age"`

	// ImportsDir is the daemon's product intake drop directory.
	ImportsDir string `mapstructure:"imports_dir"`

	// DashboardPort is the WebSocket dashboard listen port.
	DashboardPort int `mapstructure:"dashboard_port"`

	// LogFile, when set, routes logs through a rotating file instead of
	// stderr. Used by the daemon.
	LogFile string `mapstructure:"log_file"`
}

// BackendConfig holds remote API settings.
type BackendConfig struct {
	URL     string        `mapstructure:"url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// AnthropicConfig holds SOP generation settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// Load reads configuration. cfgFile overrides the default search path when
// non-empty. A missing config file is not an error; missing required values
// surface when the command that needs them runs.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	// Every key needs a default registered, or AutomaticEnv never
	// consults it during Unmarshal.
	v.SetDefault("db_path", defaultDBPath())
	v.SetDefault("backend.url", "")
	v.SetDefault("backend.api_key", "")
	v.SetDefault("backend.timeout", 15*time.Second)
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5")
	v.SetDefault("cache_max_age", 7*24*time.Hour)
	v.SetDefault("imports_dir", defaultImportsDir())
	v.SetDefault("dashboard_port", 8080)
	v.SetDefault("log_file", "")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("clz")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".popclozet"))
		}
	}

	v.SetEnvPrefix("CLZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "clz.db"
	}
	return filepath.Join(home, ".popclozet", "clz.db")
}

func defaultImportsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "imports"
	}
	return filepath.Join(home, ".popclozet", "imports")
}
