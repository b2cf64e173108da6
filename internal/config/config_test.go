package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	config := Default()

	if config.Simulation.Small != 0.5 {
		t.Errorf("expected p2 0.5, got %v", config.Simulation.Small)
	}
	if config.Simulation.Big != 0.2 {
		t.Errorf("expected p4 0.2, got %v", config.Simulation.Big)
	}
	if config.Simulation.Weeks != 15 {
		t.Errorf("expected Weeks 15, got %d", config.Simulation.Weeks)
	}
	if config.Simulation.Simulations != 10000 {
		t.Errorf("expected Simulations 10000, got %d", config.Simulation.Simulations)
	}
	if config.Simulation.Seed != nil {
		t.Errorf("expected no seed, got %d", *config.Simulation.Seed)
	}
	if config.Calendar.FirstDate != "2022-04-01" {
		t.Errorf("expected FirstDate 2022-04-01, got %q", config.Calendar.FirstDate)
	}
	if config.Logging.Level != "info" {
		t.Errorf("expected Logging.Level 'info', got '%s'", config.Logging.Level)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
simulation:
  p2: 0.3
  p4: 0.1
  weeks: 26
  simulations: 5000
  workers: 2
  seed: 99

calendar:
  first_date: "2023-01-06"

logging:
  level: debug
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	config, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if config.Simulation.Small != 0.3 || config.Simulation.Big != 0.1 {
		t.Errorf("probabilities = (%v, %v), want (0.3, 0.1)", config.Simulation.Small, config.Simulation.Big)
	}
	if config.Simulation.Weeks != 26 {
		t.Errorf("expected Weeks 26, got %d", config.Simulation.Weeks)
	}
	if config.Simulation.Workers != 2 {
		t.Errorf("expected Workers 2, got %d", config.Simulation.Workers)
	}
	if config.Simulation.Seed == nil || *config.Simulation.Seed != 99 {
		t.Errorf("expected Seed 99, got %v", config.Simulation.Seed)
	}
	if config.Calendar.FirstDate != "2023-01-06" {
		t.Errorf("expected FirstDate 2023-01-06, got %q", config.Calendar.FirstDate)
	}
	if config.Logging.Level != "debug" {
		t.Errorf("expected level debug, got %q", config.Logging.Level)
	}
	// Unset sections keep their defaults.
	if config.Chart.Width != 50 {
		t.Errorf("expected default chart width 50, got %d", config.Chart.Width)
	}
}

func TestLoadFromFile_TOML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	configContent := `
[simulation]
p2 = 0.25
p4 = 0.25
weeks = 10

[chart]
width = 30
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	config, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if config.Simulation.Small != 0.25 || config.Simulation.Big != 0.25 {
		t.Errorf("probabilities = (%v, %v), want (0.25, 0.25)", config.Simulation.Small, config.Simulation.Big)
	}
	if config.Simulation.Weeks != 10 {
		t.Errorf("expected Weeks 10, got %d", config.Simulation.Weeks)
	}
	if config.Simulation.Simulations != 10000 {
		t.Errorf("expected default Simulations, got %d", config.Simulation.Simulations)
	}
	if config.Chart.Width != 30 {
		t.Errorf("expected chart width 30, got %d", config.Chart.Width)
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	tmpDir := t.TempDir()

	if _, err := LoadFromFile(filepath.Join(tmpDir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(tmpDir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("simulation: [unclosed"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	_, err := LoadFromFile(bad)
	if err == nil || !strings.Contains(err.Error(), "parsing config file") {
		t.Errorf("expected parse error, got %v", err)
	}
}

func TestLoadFromFile_EnvExpansion(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
store:
  dir: ${TEST_FLIGHTBREAK_HOME}/state
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	t.Setenv("TEST_FLIGHTBREAK_HOME", "/srv/fb")

	config, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if config.Store.Dir != "/srv/fb/state" {
		t.Errorf("expected Store.Dir '/srv/fb/state', got '%s'", config.Store.Dir)
	}
}

func TestLoad_Precedence(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	configPath := filepath.Join(tmpDir, "explicit.yaml")
	content := `
simulation:
  p2: 0.1
  weeks: 20
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	t.Setenv("FLIGHTBREAK_WEEKS", "30")
	t.Setenv("FLIGHTBREAK_SEED", "7")

	config, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if config.Simulation.Small != 0.1 {
		t.Errorf("file value p2 = %v, want 0.1", config.Simulation.Small)
	}
	if config.Simulation.Weeks != 30 {
		t.Errorf("env should override file: Weeks = %d, want 30", config.Simulation.Weeks)
	}
	if config.Simulation.Big != 0.2 {
		t.Errorf("default p4 = %v, want 0.2", config.Simulation.Big)
	}
	if config.Simulation.Seed == nil || *config.Simulation.Seed != 7 {
		t.Errorf("Seed = %v, want 7", config.Simulation.Seed)
	}
}

func TestLoad_UserConfig(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	dir := filepath.Join(tmpDir, ".flightbreak")
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("simulation:\n  simulations: 123\n"), 0600); err != nil {
		t.Fatalf("failed to write user config: %v", err)
	}

	config, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if config.Simulation.Simulations != 123 {
		t.Errorf("Simulations = %d, want 123", config.Simulation.Simulations)
	}
}

func TestLoad_NoFiles(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	config, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if config.Simulation.Weeks != 15 {
		t.Errorf("Weeks = %d, want default 15", config.Simulation.Weeks)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestApplyEnv(t *testing.T) {
	config := Default()
	t.Setenv("FLIGHTBREAK_P2", "0.4")
	t.Setenv("FLIGHTBREAK_P4", "0.35")
	t.Setenv("FLIGHTBREAK_SIMULATIONS", "2500")
	t.Setenv("FLIGHTBREAK_WORKERS", "3")
	t.Setenv("FLIGHTBREAK_FIRST_DATE", "2024-06-07")
	t.Setenv("FLIGHTBREAK_LOG_LEVEL", "trace")
	t.Setenv("FLIGHTBREAK_CHART_WIDTH", "80")

	if err := ApplyEnv(config); err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}

	if config.Simulation.Small != 0.4 || config.Simulation.Big != 0.35 {
		t.Errorf("probabilities = (%v, %v)", config.Simulation.Small, config.Simulation.Big)
	}
	if config.Simulation.Simulations != 2500 {
		t.Errorf("Simulations = %d, want 2500", config.Simulation.Simulations)
	}
	if config.Simulation.Workers != 3 {
		t.Errorf("Workers = %d, want 3", config.Simulation.Workers)
	}
	if config.Calendar.FirstDate != "2024-06-07" {
		t.Errorf("FirstDate = %q", config.Calendar.FirstDate)
	}
	if config.Logging.Level != "trace" {
		t.Errorf("Level = %q, want trace", config.Logging.Level)
	}
	if config.Chart.Width != 80 {
		t.Errorf("Width = %d, want 80", config.Chart.Width)
	}
	// Untouched fields keep defaults.
	if config.Simulation.Weeks != 15 {
		t.Errorf("Weeks = %d, want 15", config.Simulation.Weeks)
	}
}

func TestApplyEnv_InvalidValue(t *testing.T) {
	t.Setenv("FLIGHTBREAK_WEEKS", "fifteen")

	err := ApplyEnv(Default())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid default", func(c *Config) {}, ""},
		{"negative p2", func(c *Config) { c.Simulation.Small = -0.1 }, "p2: probability must be between 0 and 1"},
		{"p4 above one", func(c *Config) { c.Simulation.Big = 1.2 }, "p4: probability must be between 0 and 1"},
		{"sum above one", func(c *Config) { c.Simulation.Small, c.Simulation.Big = 0.8, 0.3 }, "implied no-trigger probability is negative"},
		{"sum of one with rounding", func(c *Config) { c.Simulation.Small, c.Simulation.Big = 0.2, 0.8 }, ""},
		{"zero weeks", func(c *Config) { c.Simulation.Weeks = 0 }, "weeks must be at least 1"},
		{"zero simulations", func(c *Config) { c.Simulation.Simulations = 0 }, "simulations must be at least 1"},
		{"negative workers", func(c *Config) { c.Simulation.Workers = -1 }, "workers must be non-negative"},
		{"zero chart width", func(c *Config) { c.Chart.Width = 0 }, "chart width"},
		{"bad date", func(c *Config) { c.Calendar.FirstDate = "April 1" }, "invalid first_date"},
		{"empty date", func(c *Config) { c.Calendar.FirstDate = "" }, ""},
		{"invalid log level", func(c *Config) { c.Logging.Level = "verbose" }, "invalid log level"},
		{"empty log level", func(c *Config) { c.Logging.Level = "" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			tt.modify(config)
			err := config.Validate()

			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Errorf("expected error containing %q, got nil", tt.wantErr)
			} else if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %q", tt.wantErr, err.Error())
			}
		})
	}
}
