// Package config provides unified configuration loading for flightbreak.
// It supports loading from YAML or TOML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/flightbreak/internal/breaker"
	"github.com/nvandessel/flightbreak/internal/constants"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FLIGHTBREAK_"

// Config contains all flightbreak configuration settings.
type Config struct {
	// Simulation contains the default estimate parameters.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation" toml:"simulation"`

	// Calendar controls how week indexes map to dates.
	Calendar CalendarConfig `json:"calendar" yaml:"calendar" toml:"calendar"`

	// Chart controls text chart rendering.
	Chart ChartConfig `json:"chart" yaml:"chart" toml:"chart"`

	// Store controls where run history is kept.
	Store StoreConfig `json:"store" yaml:"store" toml:"store"`

	// Logging contains settings for operational and run logging.
	Logging LoggingConfig `json:"logging" yaml:"logging" toml:"logging"`
}

// SimulationConfig holds the defaults used when flags are not given.
type SimulationConfig struct {
	// Small is the per-week small trigger probability (p2).
	Small float64 `json:"p2" yaml:"p2" toml:"p2" env:"P2"`

	// Big is the per-week big trigger probability (p4).
	Big float64 `json:"p4" yaml:"p4" toml:"p4" env:"P4"`

	// Weeks is the simulation horizon.
	Weeks int `json:"weeks" yaml:"weeks" toml:"weeks" env:"WEEKS"`

	// Simulations is the number of Monte Carlo runs per estimate.
	Simulations int `json:"simulations" yaml:"simulations" toml:"simulations" env:"SIMULATIONS"`

	// Workers caps parallel chunks. 0 uses one per CPU.
	Workers int `json:"workers" yaml:"workers" toml:"workers" env:"WORKERS"`

	// Seed fixes the random stream when set.
	Seed *int64 `json:"seed,omitempty" yaml:"seed,omitempty" toml:"seed,omitempty" env:"SEED"`
}

// CalendarConfig configures date mapping.
type CalendarConfig struct {
	// FirstDate is the start of week zero, YYYY-MM-DD.
	FirstDate string `json:"first_date" yaml:"first_date" toml:"first_date" env:"FIRST_DATE"`
}

// ChartConfig configures text chart output.
type ChartConfig struct {
	// Width is the bar width in characters for a probability of 1.
	Width int `json:"width" yaml:"width" toml:"width" env:"CHART_WIDTH"`
}

// StoreConfig configures run history storage.
type StoreConfig struct {
	// Dir overrides the state directory. Supports ${VAR} syntax.
	// Empty means <root>/.flightbreak.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty" toml:"dir,omitempty" env:"STORE_DIR"`
}

// LoggingConfig configures flightbreak's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables the run log at .flightbreak/runs.jsonl.
	// "trace" additionally logs every sampled week.
	Level string `json:"level" yaml:"level" toml:"level" env:"LOG_LEVEL"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Simulation: SimulationConfig{
			Small:       constants.DefaultSmallProbability,
			Big:         constants.DefaultBigProbability,
			Weeks:       constants.DefaultWeeks,
			Simulations: constants.DefaultSimulations,
		},
		Calendar: CalendarConfig{
			FirstDate: constants.DefaultFirstDate,
		},
		Chart: ChartConfig{
			Width: 50,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// UserConfigPath returns ~/.flightbreak/config.yaml.
func UserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, constants.DirName, constants.ConfigFileName), nil
}

// Load loads configuration.
// Order: defaults -> path (or ~/.flightbreak/config.yaml when path is empty) -> environment variables.
// An explicit path must exist; the user config file is optional.
func Load(path string) (*Config, error) {
	config := Default()

	if path == "" {
		if userPath, err := UserConfigPath(); err == nil {
			if _, statErr := os.Stat(userPath); statErr == nil {
				path = userPath
			}
		}
	}

	if path != "" {
		fileConfig, err := LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		config = fileConfig
	}

	if err := ApplyEnv(config); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadFromFile loads configuration from a YAML or TOML file, chosen by extension.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), config); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Store.Dir = expandEnvVars(config.Store.Dir)

	return config, nil
}

// ApplyEnv overrides fields from FLIGHTBREAK_* environment variables.
// Unset variables leave the current value alone.
func ApplyEnv(config *Config) error {
	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	config.Store.Dir = expandEnvVars(config.Store.Dir)
	return nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	s := c.Simulation
	p := breaker.Probabilities{Small: s.Small, Big: s.Big}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("simulation: %w", err)
	}

	if s.Weeks < 1 {
		return fmt.Errorf("weeks must be at least 1, got %d", s.Weeks)
	}

	if s.Simulations < 1 {
		return fmt.Errorf("simulations must be at least 1, got %d", s.Simulations)
	}

	if s.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", s.Workers)
	}

	if c.Chart.Width < 1 {
		return fmt.Errorf("chart width must be positive, got %d", c.Chart.Width)
	}

	if c.Calendar.FirstDate != "" {
		if _, err := time.Parse(constants.DateLayout, c.Calendar.FirstDate); err != nil {
			return fmt.Errorf("invalid first_date %q (want YYYY-MM-DD)", c.Calendar.FirstDate)
		}
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
