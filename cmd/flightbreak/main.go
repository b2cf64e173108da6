package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/nvandessel/flightbreak/internal/telemetry"
)

var version = "0.1.0-dev"

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "flightbreak",
		Short: "Flight circuit breaker - weekly cancellation risk by simulation",
		Long: `flightbreak estimates how likely each week of a flight schedule is to be
cancelled under a circuit breaker policy.

Each week an inbound flight may carry a small trigger (two week break) or a
big trigger (four week break). Breaks start at least three weeks later and
never overlap; back-to-back big triggers escalate to an immediate eight week
break. Monte Carlo simulation turns the per-week trigger probabilities into a
per-week cancellation probability.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("root", ".", "Project root directory")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.flightbreak/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: info, debug or trace (overrides config)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newSimulateCmd(),
		newEstimateCmd(),
		newHistoryCmd(),
		newChartCmd(),
		newMCPServerCmd(),
		newConfigCmd(),
	)

	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals...)
	defer stop()

	shutdown, err := telemetry.Setup(ctx, "flightbreak", version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: tracing disabled: %v\n", err)
	}

	err = newRootCmd().ExecuteContext(ctx)
	if serr := shutdown(context.Background()); serr != nil {
		fmt.Fprintf(os.Stderr, "warning: flushing traces: %v\n", serr)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
