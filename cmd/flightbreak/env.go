package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/flightbreak/internal/breaker"
	"github.com/nvandessel/flightbreak/internal/calendar"
	"github.com/nvandessel/flightbreak/internal/config"
	"github.com/nvandessel/flightbreak/internal/estimate"
	"github.com/nvandessel/flightbreak/internal/logging"
	"github.com/nvandessel/flightbreak/internal/store"
)

// cmdEnv is what every subcommand needs after reading the global flags.
type cmdEnv struct {
	cfg      *config.Config
	logger   *slog.Logger
	runLog   *logging.RunLogger
	stateDir string
	jsonOut  bool
}

// loadEnv loads and validates configuration, then builds the loggers.
// The caller must call close.
func loadEnv(cmd *cobra.Command) (*cmdEnv, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	root, _ := cmd.Flags().GetString("root")
	jsonOut, _ := cmd.Flags().GetBool("json")
	stateDir := store.StateDir(root, cfg.Store.Dir)

	return &cmdEnv{
		cfg:      cfg,
		logger:   logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr()),
		runLog:   logging.NewRunLogger(stateDir, cfg.Logging.Level),
		stateDir: stateDir,
		jsonOut:  jsonOut,
	}, nil
}

func (e *cmdEnv) close() {
	e.runLog.Close()
}

// simParams are the simulation inputs after flags override configuration.
type simParams struct {
	probabilities breaker.Probabilities
	weeks         int
	simulations   int
	workers       int
	seed          *int64
	first         time.Time
}

// addSimulationFlags registers the flags shared by simulate, estimate and chart.
// withRuns adds --simulations and --workers.
func addSimulationFlags(cmd *cobra.Command, withRuns bool) {
	cmd.Flags().Float64("p2", 0, "Per-week probability of a small trigger (default from config)")
	cmd.Flags().Float64("p4", 0, "Per-week probability of a big trigger (default from config)")
	cmd.Flags().Int("weeks", 0, "Horizon in weeks (default from config)")
	cmd.Flags().Int64("seed", 0, "Seed for reproducible output")
	cmd.Flags().String("first", "", "Start date of week zero, YYYY-MM-DD (default from config)")
	if withRuns {
		cmd.Flags().Int("simulations", 0, "Number of Monte Carlo runs (default from config)")
		cmd.Flags().Int("workers", 0, "Parallel workers, 0 for one per CPU (default from config)")
	}
}

// readSimulationFlags merges explicitly set flags over the configuration.
func readSimulationFlags(cmd *cobra.Command, cfg *config.Config) (simParams, error) {
	s := cfg.Simulation
	params := simParams{
		probabilities: breaker.Probabilities{Small: s.Small, Big: s.Big},
		weeks:         s.Weeks,
		simulations:   s.Simulations,
		workers:       s.Workers,
		seed:          s.Seed,
	}

	flags := cmd.Flags()
	if flags.Changed("p2") {
		params.probabilities.Small, _ = flags.GetFloat64("p2")
	}
	if flags.Changed("p4") {
		params.probabilities.Big, _ = flags.GetFloat64("p4")
	}
	if flags.Changed("weeks") {
		params.weeks, _ = flags.GetInt("weeks")
	}
	if flags.Changed("simulations") {
		params.simulations, _ = flags.GetInt("simulations")
	}
	if flags.Changed("workers") {
		params.workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("seed") {
		seed, _ := flags.GetInt64("seed")
		params.seed = &seed
	}

	firstDate := cfg.Calendar.FirstDate
	if flags.Changed("first") {
		firstDate, _ = flags.GetString("first")
	}
	first, err := calendar.ParseDate(firstDate)
	if err != nil {
		return simParams{}, err
	}
	params.first = first

	return params, nil
}

// estimator builds an Estimator for params, seeded when a seed is set.
func (e *cmdEnv) estimator(params simParams) *estimate.Estimator {
	est := &estimate.Estimator{
		Workers: params.workers,
		Logger:  e.logger,
		RunLog:  e.runLog,
	}
	if params.seed != nil {
		est.Seed = *params.seed
		est.Seeded = true
	}
	return est
}
