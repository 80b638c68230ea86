package config

import "strings"

// ApplyDefaults fills unspecified fields with sensible defaults after a
// config file has been unmarshaled. The three capability booleans are
// deliberately left at their zero value (disabled): a host that didn't
// ask for clipboard or directory sharing shouldn't get it implicitly.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyMetricsDefaults(&cfg.Metrics)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false; the zero value already does that.
}

// GetDefaultConfig returns a Config with every default applied and every
// capability gate disabled, suitable as a safe starting point for a
// generated sample file.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
