package config

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/spf13/viper"
)

// ErrInvalidConfig reports a configuration value outside its allowed range.
var ErrInvalidConfig = errors.New("invalid configuration")

// WatchConfig holds settings for watch mode.
type WatchConfig struct {
	DebounceMS       int     `mapstructure:"debounce_ms"`
	MaxReloadsPerSec float64 `mapstructure:"max_reloads_per_sec"`
}

// Config holds all runtime configuration for a ratsnest session.
// Values are populated from .ratsnest.yaml, RATSNEST_* env vars, and CLI flags.
// Epsilon and Parallelism are fixed when an engine is constructed.
type Config struct {
	Epsilon       int64       `mapstructure:"epsilon"`
	Parallelism   int         `mapstructure:"parallelism"`
	LogLevel      string      `mapstructure:"log_level"`
	TelemetryPath string      `mapstructure:"telemetry_path"`
	Verbose       bool        `mapstructure:"verbose"`
	Watch         WatchConfig `mapstructure:"watch"`
}

// Load reads configuration from viper, applying built-in defaults for any
// values not set by config file, environment, or flags.
func Load() (Config, error) {
	viper.SetDefault("epsilon", 0)
	viper.SetDefault("parallelism", runtime.NumCPU())
	viper.SetDefault("log_level", "info")
	viper.SetDefault("telemetry_path", "")
	viper.SetDefault("verbose", false)
	viper.SetDefault("watch.debounce_ms", 100)
	viper.SetDefault("watch.max_reloads_per_sec", 4.0)

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that every value is within range.
func (c Config) Validate() error {
	var errs []error
	if c.Epsilon < 0 {
		errs = append(errs, fmt.Errorf("%w: epsilon %d must not be negative", ErrInvalidConfig, c.Epsilon))
	}
	if c.Parallelism < 1 {
		errs = append(errs, fmt.Errorf("%w: parallelism %d must be at least 1", ErrInvalidConfig, c.Parallelism))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("%w: log_level %q", ErrInvalidConfig, c.LogLevel))
	}
	if c.Watch.DebounceMS < 0 {
		errs = append(errs, fmt.Errorf("%w: watch.debounce_ms %d must not be negative", ErrInvalidConfig, c.Watch.DebounceMS))
	}
	if c.Watch.MaxReloadsPerSec <= 0 {
		errs = append(errs, fmt.Errorf("%w: watch.max_reloads_per_sec must be positive", ErrInvalidConfig))
	}
	return errors.Join(errs...)
}
