package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/flightbreak/internal/calendar"
	"github.com/nvandessel/flightbreak/internal/store"
	"github.com/nvandessel/flightbreak/internal/visualization"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Manage saved estimates",
		Long: `List, inspect, delete, export and import estimates saved with
"flightbreak estimate --save".

Examples:
  flightbreak history list
  flightbreak history show <id>
  flightbreak history delete <id>
  flightbreak history export -o runs.jsonl
  flightbreak history import runs.jsonl`,
	}

	cmd.AddCommand(
		newHistoryListCmd(),
		newHistoryShowCmd(),
		newHistoryDeleteCmd(),
		newHistoryExportCmd(),
		newHistoryImportCmd(),
	)

	return cmd
}

// withRunStore loads the environment, opens the run store and calls fn.
func withRunStore(cmd *cobra.Command, fn func(env *cmdEnv, runs *store.RunStore) error) error {
	env, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	defer env.close()

	runs, err := store.Open(env.stateDir)
	if err != nil {
		return err
	}
	defer runs.Close()

	return fn(env, runs)
}

func newHistoryListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved estimates, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return withRunStore(cmd, func(env *cmdEnv, runs *store.RunStore) error {
				list, err := runs.ListRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if env.jsonOut {
					return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
						"runs":  list,
						"count": len(list),
					})
				}
				if len(list) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No saved runs.")
					return nil
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tCREATED\tP2\tP4\tWEEKS\tRUNS\tLABEL")
				for _, r := range list {
					fmt.Fprintf(tw, "%s\t%s\t%g\t%g\t%d\t%d\t%s\n",
						r.ID, r.CreatedAt.Local().Format(time.DateTime), r.Small, r.Big, r.Weeks, r.Simulations, r.Label)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().Int("limit", 20, "Maximum number of runs to list (0 for all)")
	return cmd
}

func newHistoryShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a saved estimate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunStore(cmd, func(env *cmdEnv, runs *store.RunStore) error {
				run, err := runs.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if env.jsonOut {
					return json.NewEncoder(cmd.OutOrStdout()).Encode(run)
				}

				first, err := calendar.ParseDate(run.FirstDate)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "Run %s\n", run.ID)
				if run.Label != "" {
					fmt.Fprintf(w, "Label:       %s\n", run.Label)
				}
				fmt.Fprintf(w, "Created:     %s\n", run.CreatedAt.Local().Format(time.DateTime))
				fmt.Fprintf(w, "Triggers:    p2=%g p4=%g\n", run.Small, run.Big)
				fmt.Fprintf(w, "Simulations: %d (seed %d, %d workers)\n\n", run.Simulations, run.Seed, run.Workers)
				return visualization.RenderBars(w, calendar.Dated(first, run.Series), env.cfg.Chart.Width)
			})
		},
	}
}

func newHistoryDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved estimate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunStore(cmd, func(env *cmdEnv, runs *store.RunStore) error {
				if err := runs.DeleteRun(cmd.Context(), args[0]); err != nil {
					return err
				}
				if env.jsonOut {
					return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
						"deleted": args[0],
					})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func newHistoryExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export saved estimates as JSONL",
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			return withRunStore(cmd, func(env *cmdEnv, runs *store.RunStore) error {
				w := cmd.OutOrStdout()
				if output != "" {
					f, err := os.OpenFile(output, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
					if err != nil {
						return fmt.Errorf("create export file: %w", err)
					}
					defer f.Close()
					w = f
				}

				n, err := runs.ExportJSONL(cmd.Context(), w)
				if err != nil {
					return err
				}
				if output != "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d runs to %s\n", n, output)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringP("output", "o", "", "Output file (default stdout)")
	return cmd
}

func newHistoryImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import estimates from a JSONL export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open import file: %w", err)
			}
			defer f.Close()

			return withRunStore(cmd, func(env *cmdEnv, runs *store.RunStore) error {
				imported, skipped, err := runs.ImportJSONL(cmd.Context(), f)
				if err != nil {
					return err
				}
				if env.jsonOut {
					return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]int{
						"imported": imported,
						"skipped":  skipped,
					})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d runs (%d already present)\n", imported, skipped)
				return nil
			})
		},
	}
}
