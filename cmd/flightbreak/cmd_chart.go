package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/flightbreak/internal/calendar"
	"github.com/nvandessel/flightbreak/internal/constants"
	"github.com/nvandessel/flightbreak/internal/ratelimit"
	"github.com/nvandessel/flightbreak/internal/visualization"
)

func newChartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chart",
		Short: "Chart weekly cancellation probabilities in the browser",
		Long: `Serve an interactive bar chart of the estimate on a local port and open it
in the default browser. The page has a form to re-run the estimate with other
parameters. Press Ctrl-C to stop the server.

Examples:
  flightbreak chart                               # Serve and open the browser
  flightbreak chart --no-open                     # Serve only, print the URL
  flightbreak chart --p4 0.3 -o chart.html        # Write a static page instead`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer env.close()

			params, err := readSimulationFlags(cmd, env.cfg)
			if err != nil {
				return err
			}
			if params.weeks < constants.MinChartWeeks {
				return fmt.Errorf("chart needs at least %d weeks, got %d", constants.MinChartWeeks, params.weeks)
			}
			output, _ := cmd.Flags().GetString("output")
			noOpen, _ := cmd.Flags().GetBool("no-open")

			est := env.estimator(params)
			res, err := est.Estimate(cmd.Context(), params.probabilities, params.weeks, params.simulations)
			if err != nil {
				return err
			}
			points := calendar.Dated(params.first, res.Series)

			if output != "" {
				return writeStaticChart(cmd, output, points)
			}

			srv := visualization.NewServer(est, visualization.Request{
				Probabilities: params.probabilities,
				Weeks:         params.weeks,
				Simulations:   params.simulations,
				FirstDate:     params.first,
			}, points, ratelimit.NewToolLimiters(visualization.ChartTool))
			return runChartServer(cmd, srv, noOpen)
		},
	}

	addSimulationFlags(cmd, true)
	cmd.Flags().StringP("output", "o", "", "Write a static HTML page to this file instead of serving")
	cmd.Flags().Bool("no-open", false, "Don't open the browser")

	return cmd
}

// writeStaticChart renders the chart to a self-contained HTML file.
func writeStaticChart(cmd *cobra.Command, output string, points []calendar.Point) error {
	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create chart file: %w", err)
	}
	defer f.Close()

	if err := visualization.RenderHTML(f, "Weekly cancellation probability", points); err != nil {
		return err
	}

	absPath, _ := filepath.Abs(output)
	fmt.Fprintf(cmd.OutOrStdout(), "Chart written to %s\n", absPath)
	return nil
}

// runChartServer serves the chart and blocks until the command context is
// cancelled.
func runChartServer(cmd *cobra.Command, srv *visualization.Server, noOpen bool) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	// Wait for server to start
	deadline := time.Now().Add(3 * time.Second)
	for srv.Addr() == "" && time.Now().Before(deadline) {
		select {
		case err := <-errCh:
			return fmt.Errorf("chart server: %w", err)
		case <-time.After(10 * time.Millisecond):
		}
	}

	addr := srv.Addr()
	if addr == "" {
		return fmt.Errorf("server failed to start")
	}

	url := "http://" + addr + "/"
	fmt.Fprintf(cmd.OutOrStdout(), "Serving chart at %s (Ctrl-C to stop)\n", url)
	if !noOpen {
		if err := visualization.OpenBrowser(url); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Could not open browser: %v\nOpen %s manually.\n", err, url)
		}
	}

	return <-errCh
}
