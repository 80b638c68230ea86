package config

import "testing"

func TestApplyDefaultsLogging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("expected default log level INFO, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("expected default log format text, got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("expected default log output stdout, got %q", cfg.Logging.Output)
	}
}

func TestApplyDefaultsNormalizesLevelCase(t *testing.T) {
	cfg := &Config{Logging: LoggingConfig{Level: "debug"}}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("expected level normalized to DEBUG, got %q", cfg.Logging.Level)
	}
}

func TestApplyDefaultsLeavesCapabilityGatesDisabled(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.AllowClipboard || cfg.AllowDirectorySharing || cfg.ShowDesktopWallpaper {
		t.Errorf("expected all capability gates to default to disabled, got %+v", cfg)
	}
}

func TestGetDefaultConfigIsValid(t *testing.T) {
	if err := Validate(GetDefaultConfig()); err != nil {
		t.Errorf("expected default config to validate, got %v", err)
	}
}
