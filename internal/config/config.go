// Package config loads osmpoi settings from .osmpoi.yaml, OSMPOI_* environment
// variables and command-line flags.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// Config holds all runtime configuration for an osmpoi session.
// Values are populated from .osmpoi.yaml, OSMPOI_* env vars, and CLI flags.
type Config struct {
	DataDir         string        `mapstructure:"data_dir"`
	EnginePath      string        `mapstructure:"engine_path"`
	Debounce        time.Duration `mapstructure:"debounce"`
	QueryWorkers    int           `mapstructure:"query_workers"`
	QueryDistanceKm float64       `mapstructure:"query_distance_km"`
	QueryStrict     bool          `mapstructure:"query_strict"`
	LogFile         string        `mapstructure:"log_file"`
	LogLevel        string        `mapstructure:"log_level"`
	TelemetryFile   string        `mapstructure:"telemetry_file"`
	Ignore          []string      `mapstructure:"ignore"`
}

// Load reads configuration from viper, applying built-in defaults for any
// values not set by config file, environment, or flags.
func Load() (Config, error) {
	viper.SetDefault("data_dir", "datasets")
	viper.SetDefault("engine_path", "osmpoi-engine")
	viper.SetDefault("debounce", "100ms")
	viper.SetDefault("query_workers", 2)
	viper.SetDefault("query_distance_km", 1.0)
	viper.SetDefault("query_strict", false)
	viper.SetDefault("log_file", "")
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("telemetry_file", "")
	viper.SetDefault("ignore", []string{".*"})

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.QueryWorkers < 1 {
		return Config{}, fmt.Errorf("query_workers must be at least 1, got %d", cfg.QueryWorkers)
	}
	if cfg.QueryDistanceKm <= 0 {
		return Config{}, fmt.Errorf("query_distance_km must be positive, got %v", cfg.QueryDistanceKm)
	}
	if _, err := ParseLevel(cfg.LogLevel); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(name))); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", name, err)
	}
	return level, nil
}

// tomlView mirrors Config with durations rendered as strings.
type tomlView struct {
	DataDir         string   `toml:"data_dir"`
	EnginePath      string   `toml:"engine_path"`
	Debounce        string   `toml:"debounce"`
	QueryWorkers    int      `toml:"query_workers"`
	QueryDistanceKm float64  `toml:"query_distance_km"`
	QueryStrict     bool     `toml:"query_strict"`
	LogFile         string   `toml:"log_file"`
	LogLevel        string   `toml:"log_level"`
	TelemetryFile   string   `toml:"telemetry_file"`
	Ignore          []string `toml:"ignore"`
}

// MarshalTOML renders the effective configuration as TOML.
func (c Config) MarshalTOML() ([]byte, error) {
	return toml.Marshal(tomlView{
		DataDir:         c.DataDir,
		EnginePath:      c.EnginePath,
		Debounce:        c.Debounce.String(),
		QueryWorkers:    c.QueryWorkers,
		QueryDistanceKm: c.QueryDistanceKm,
		QueryStrict:     c.QueryStrict,
		LogFile:         c.LogFile,
		LogLevel:        c.LogLevel,
		TelemetryFile:   c.TelemetryFile,
		Ignore:          c.Ignore,
	})
}
