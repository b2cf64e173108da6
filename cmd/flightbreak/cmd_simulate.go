package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nvandessel/flightbreak/internal/breaker"
	"github.com/nvandessel/flightbreak/internal/calendar"
	"github.com/nvandessel/flightbreak/internal/logging"
)

// simulateOutput is the JSON shape of the simulate command.
type simulateOutput struct {
	Seed       int64         `json:"seed"`
	FirstDate  string        `json:"first_date"`
	Runs       []breaker.Run `json:"runs"`
	Cancelled  []int         `json:"cancelled_weeks"`
	Parameters struct {
		Small float64 `json:"p2"`
		Big   float64 `json:"p4"`
		Weeks int     `json:"weeks"`
	} `json:"parameters"`
}

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Sample week-by-week breaker trajectories",
		Long: `Sample one or more trajectories. Each week shows the trigger drawn that
week (0, 2 or 4) or -1 when the week's flights are cancelled.

Examples:
  flightbreak simulate                          # One trajectory with configured defaults
  flightbreak simulate --p2 0 --p4 1 --seed 1   # Always a big trigger
  flightbreak simulate --count 5 --weeks 30     # Five 30-week trajectories
  flightbreak simulate --explain                # Show which draw opened each break`,
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
			count, _ := cmd.Flags().GetInt("count")
			explain, _ := cmd.Flags().GetBool("explain")
			if count < 1 {
				return fmt.Errorf("--count must be at least 1, got %d", count)
			}

			seed, err := resolveSeed(params.seed)
			if err != nil {
				return err
			}
			sampler := breaker.NewSampler(seed)

			out := simulateOutput{Seed: seed, FirstDate: calendar.Format(params.first)}
			out.Parameters.Small = params.probabilities.Small
			out.Parameters.Big = params.probabilities.Big
			out.Parameters.Weeks = params.weeks

			for i := 0; i < count; i++ {
				run, err := breaker.GenerateRun(params.probabilities, params.weeks, sampler)
				if err != nil {
					return err
				}
				for _, ev := range run.Events {
					env.logger.Log(cmd.Context(), logging.LevelTrace, "week sampled",
						"run", i, "week", ev.Week, "magnitude", ev.Magnitude,
						"escalated", ev.Escalated, "window_start", ev.WindowStart, "window_length", ev.WindowLength)
				}
				if !explain {
					run.Events = nil
				}
				out.Runs = append(out.Runs, run)
				out.Cancelled = append(out.Cancelled, run.Trajectory.CancelledWeeks())
			}

			env.runLog.Log(logging.RunRecord{
				Event:       "simulate",
				Small:       params.probabilities.Small,
				Big:         params.probabilities.Big,
				Weeks:       params.weeks,
				Simulations: count,
				Seed:        seed,
			})

			if env.jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(out)
			}
			return printSimulation(cmd.OutOrStdout(), out, params, explain)
		},
	}

	addSimulationFlags(cmd, false)
	cmd.Flags().Int("count", 1, "Number of trajectories to sample")
	cmd.Flags().Bool("explain", false, "Show the trigger and break window behind each week")

	return cmd
}

// resolveSeed returns the requested seed or draws a fresh one.
func resolveSeed(requested *int64) (int64, error) {
	if requested != nil {
		return *requested, nil
	}
	return breaker.NewSeed()
}

func printSimulation(w io.Writer, out simulateOutput, params simParams, explain bool) error {
	fmt.Fprintf(w, "seed %d, p2=%g p4=%g, %d weeks\n",
		out.Seed, params.probabilities.Small, params.probabilities.Big, params.weeks)

	for i, run := range out.Runs {
		if !explain {
			fmt.Fprintf(w, "%3d: %s  (%d cancelled)\n", i, formatTrajectory(run.Trajectory), out.Cancelled[i])
			continue
		}

		fmt.Fprintf(w, "\nTrajectory %d (%d cancelled weeks)\n", i, out.Cancelled[i])
		fmt.Fprintln(w, "week  date        value  event")
		events := make(map[int]breaker.Event, len(run.Events))
		for _, ev := range run.Events {
			events[ev.Week] = ev
		}
		for week, v := range run.Trajectory {
			date := calendar.Format(calendar.WeekStart(params.first, week))
			desc := "cancelled"
			if ev, ok := events[week]; ok {
				desc = describeEvent(ev)
			}
			fmt.Fprintf(w, "%4d  %s  %5d  %s\n", week, date, v, desc)
		}
	}
	return nil
}

func formatTrajectory(t breaker.Trajectory) string {
	parts := make([]string, len(t))
	for i, v := range t {
		parts[i] = fmt.Sprintf("%2d", v)
	}
	return strings.Join(parts, " ")
}

func describeEvent(ev breaker.Event) string {
	last := ev.WindowStart + ev.WindowLength - 1
	switch {
	case ev.Magnitude == breaker.None:
		return "no trigger"
	case ev.Escalated:
		return fmt.Sprintf("repeated big trigger, escalated break weeks %d-%d", ev.WindowStart, last)
	case ev.Magnitude == breaker.Big:
		return fmt.Sprintf("big trigger, break weeks %d-%d", ev.WindowStart, last)
	default:
		return fmt.Sprintf("small trigger, break weeks %d-%d", ev.WindowStart, last)
	}
}
