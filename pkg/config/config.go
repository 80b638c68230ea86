// Package config loads the Session's host-supplied configuration: the
// three capability booleans from spec.md §6, plus logging and metrics
// knobs, from a YAML file with environment-variable overrides, the way
// the domain stack configures its servers.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// envPrefix is the prefix environment-variable overrides must carry, e.g.
// RDPCLIENT_LOGGING_LEVEL=DEBUG.
const envPrefix = "RDPCLIENT"

// Config is the Session's static configuration.
//
// Configuration sources, in order of precedence:
//  1. Environment variables (RDPCLIENT_*)
//  2. Configuration file (YAML)
//  3. Default values
type Config struct {
	// AllowClipboard gates CLIPRDR traffic: UpdateLocalClipboard becomes a
	// no-op and inbound FORMAT_DATA_RESPONSE is still acknowledged but
	// never surfaced to the host callback when false.
	AllowClipboard bool `mapstructure:"allow_clipboard" yaml:"allow_clipboard"`

	// AllowDirectorySharing gates RDPDR drive announcement: the Drive
	// capability set is omitted from CAPABILITY and
	// AnnounceSharedDirectory becomes a no-op when false.
	AllowDirectorySharing bool `mapstructure:"allow_directory_sharing" yaml:"allow_directory_sharing"`

	// ShowDesktopWallpaper is forwarded to the embedding host's outer RDP
	// connect sequence (performance flags); this module does not act on
	// it directly, as the graphics pipeline is out of scope per spec.md §1.
	ShowDesktopWallpaper bool `mapstructure:"show_desktop_wallpaper" yaml:"show_desktop_wallpaper"`

	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls internal/logger's output.
type LoggingConfig struct {
	// Level is the minimum log level to output: DEBUG, INFO, WARN, ERROR
	// (case-insensitive, normalized to uppercase).
	Level string `mapstructure:"level" yaml:"level"`

	// Format is the log output format: text or json.
	Format string `mapstructure:"format" yaml:"format"`

	// Output is stdout, stderr, or a file path.
	Output string `mapstructure:"output" yaml:"output"`
}

// MetricsConfig controls the Prometheus registerer passed to pkg/metrics.
// When Enabled is false, the Session is built with metrics.Null() and
// pays no instrumentation cost.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Namespace prefixes every metric name the harness registers, for
	// hosts that embed more than one Session's metrics in one registry.
	Namespace string `mapstructure:"namespace" yaml:"namespace,omitempty"`
}

// Load loads configuration from file, environment, and defaults.
// configPath empty uses the default XDG location; if no file is found
// there either, the all-defaults Config is returned rather than an error,
// since every field has a safe zero-risk default (every capability gate
// defaults to disabled).
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// MustLoad loads configuration, returning a descriptive error naming the
// expected file path when an explicit configPath does not exist.
func MustLoad(configPath string) (*Config, error) {
	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s", configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path in YAML, creating parent directories as
// needed. The file is written with owner-only permissions since the
// clipboard and directory-sharing gates can be treated as sensitive host
// policy.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(getConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// durationDecodeHook converts human-readable duration strings in the
// config file; this module has no byte-size fields, unlike the domain
// stack's cache/payload config, so only the duration hook is needed.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns $XDG_CONFIG_HOME/rdpclient, ~/.config/rdpclient,
// or "." if the home directory cannot be determined.
func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "rdpclient")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "rdpclient")
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the default
// location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
