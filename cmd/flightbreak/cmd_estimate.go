package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/flightbreak/internal/calendar"
	"github.com/nvandessel/flightbreak/internal/estimate"
	"github.com/nvandessel/flightbreak/internal/store"
	"github.com/nvandessel/flightbreak/internal/visualization"
)

// estimateOutput is the JSON shape of the estimate command.
type estimateOutput struct {
	RunID       string           `json:"run_id,omitempty"`
	Small       float64          `json:"p2"`
	Big         float64          `json:"p4"`
	Weeks       int              `json:"weeks"`
	Simulations int              `json:"simulations"`
	Workers     int              `json:"workers"`
	Seed        int64            `json:"seed"`
	ElapsedMs   int64            `json:"elapsed_ms"`
	Points      []calendar.Point `json:"points"`
}

func newEstimateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate the cancellation probability of each week",
		Long: `Run many independent trajectories and report, for each week, the fraction
of runs in which that week is cancelled.

Examples:
  flightbreak estimate                                   # Configured defaults
  flightbreak estimate --p2 0.3 --p4 0.1 --weeks 26      # Custom triggers over half a year
  flightbreak estimate --simulations 100000 --seed 7     # Larger, reproducible run
  flightbreak estimate --save --label "spring schedule"  # Keep the result in history`,
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
			save, _ := cmd.Flags().GetBool("save")
			label, _ := cmd.Flags().GetString("label")
			width, _ := cmd.Flags().GetInt("width")
			if !cmd.Flags().Changed("width") {
				width = env.cfg.Chart.Width
			}

			res, err := env.estimator(params).Estimate(cmd.Context(), params.probabilities, params.weeks, params.simulations)
			if err != nil {
				return err
			}

			out := estimateOutput{
				Small:       params.probabilities.Small,
				Big:         params.probabilities.Big,
				Weeks:       res.Weeks,
				Simulations: res.Simulations,
				Workers:     res.Workers,
				Seed:        res.Seed,
				ElapsedMs:   res.Elapsed.Milliseconds(),
				Points:      calendar.Dated(params.first, res.Series),
			}

			if save {
				out.RunID, err = saveEstimate(cmd, env, res, params, label)
				if err != nil {
					return err
				}
			}

			if env.jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(out)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "p2=%g p4=%g, %d weeks, %d simulations (seed %d, %d workers, %dms)\n\n",
				out.Small, out.Big, out.Weeks, out.Simulations, out.Seed, out.Workers, out.ElapsedMs)
			if err := visualization.RenderBars(w, out.Points, width); err != nil {
				return err
			}
			if out.RunID != "" {
				fmt.Fprintf(w, "\nSaved as %s\n", out.RunID)
			}
			return nil
		},
	}

	addSimulationFlags(cmd, true)
	cmd.Flags().Bool("save", false, "Save the estimate to run history")
	cmd.Flags().String("label", "", "Label stored with a saved estimate")
	cmd.Flags().Int("width", 0, "Bar width for a probability of 1 (default from config)")

	return cmd
}

func saveEstimate(cmd *cobra.Command, env *cmdEnv, res estimate.Result, params simParams, label string) (string, error) {
	runs, err := store.Open(env.stateDir)
	if err != nil {
		return "", err
	}
	defer runs.Close()

	saved, err := runs.SaveRun(cmd.Context(), store.Run{
		Label:       label,
		Small:       params.probabilities.Small,
		Big:         params.probabilities.Big,
		Weeks:       res.Weeks,
		Simulations: res.Simulations,
		Workers:     res.Workers,
		Seed:        res.Seed,
		FirstDate:   calendar.Format(params.first),
		ElapsedMs:   res.Elapsed.Milliseconds(),
		Counts:      res.Counts,
		Series:      res.Series,
	})
	if err != nil {
		return "", fmt.Errorf("failed to save run: %w", err)
	}
	env.logger.Debug("run saved", "id", saved.ID, "db", runs.Path())
	return saved.ID, nil
}
