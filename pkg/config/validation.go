package config

import "fmt"

var validLogLevels = map[string]bool{"DEBUG": true, "INFO": true, "WARN": true, "ERROR": true}
var validLogFormats = map[string]bool{"text": true, "json": true}

// Validate checks cfg for values ApplyDefaults cannot repair on its own.
func Validate(cfg *Config) error {
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of DEBUG, INFO, WARN, ERROR, got %q", cfg.Logging.Level)
	}
	if !validLogFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be one of text, json, got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output == "" {
		return fmt.Errorf("logging.output must not be empty")
	}
	return nil
}
