package mcp

import (
	"time"

	"github.com/nvandessel/flightbreak/internal/breaker"
)

// GenerateTrajectoryInput defines the input for the generate_trajectory tool.
type GenerateTrajectoryInput struct {
	Small   *float64 `json:"p2,omitempty" jsonschema:"per-week probability of a small trigger (two week break); defaults to the configured value"`
	Big     *float64 `json:"p4,omitempty" jsonschema:"per-week probability of a big trigger (four week break); defaults to the configured value"`
	Weeks   int      `json:"weeks,omitempty" jsonschema:"horizon in weeks; defaults to the configured value"`
	Seed    *int64   `json:"seed,omitempty" jsonschema:"optional seed for a reproducible trajectory"`
	Explain bool     `json:"explain,omitempty" jsonschema:"include the per-week events that opened each break window"`
}

// GenerateTrajectoryOutput defines the output for the generate_trajectory tool.
type GenerateTrajectoryOutput struct {
	Trajectory     []int           `json:"trajectory" jsonschema:"one entry per week: 0, 2 or 4 for the sampled trigger, -1 for a cancelled week"`
	CancelledWeeks int             `json:"cancelled_weeks" jsonschema:"number of weeks with the -1 sentinel"`
	Events         []breaker.Event `json:"events,omitempty" jsonschema:"per-week events, when explain is set"`
	SeedUsed       int64           `json:"seed_used" jsonschema:"seed value used by the server"`
	SeedSource     string          `json:"seed_source" jsonschema:"seed source (CLIENT or SERVER)"`
}

// EstimateProbabilitiesInput defines the input for the estimate_probabilities tool.
type EstimateProbabilitiesInput struct {
	Small       *float64 `json:"p2,omitempty" jsonschema:"per-week probability of a small trigger; defaults to the configured value"`
	Big         *float64 `json:"p4,omitempty" jsonschema:"per-week probability of a big trigger; defaults to the configured value"`
	Weeks       int      `json:"weeks,omitempty" jsonschema:"horizon in weeks; defaults to the configured value"`
	Simulations int      `json:"simulations,omitempty" jsonschema:"number of Monte Carlo runs; defaults to the configured value"`
	Seed        *int64   `json:"seed,omitempty" jsonschema:"optional seed for a reproducible estimate"`
	FirstDate   string   `json:"first_date,omitempty" jsonschema:"start date of week zero (YYYY-MM-DD)"`
	Save        bool     `json:"save,omitempty" jsonschema:"persist the estimate to run history"`
	Label       string   `json:"label,omitempty" jsonschema:"optional label stored with a saved run"`
}

// WeekProbability is one point of an estimated series.
type WeekProbability struct {
	Week        int     `json:"week" jsonschema:"zero-based week index"`
	Date        string  `json:"date" jsonschema:"start date of the week"`
	Probability float64 `json:"probability" jsonschema:"fraction of runs cancelled in this week"`
}

// EstimateProbabilitiesOutput defines the output for the estimate_probabilities tool.
type EstimateProbabilitiesOutput struct {
	RunID       string            `json:"run_id,omitempty" jsonschema:"history ID, when save is set"`
	Weeks       []WeekProbability `json:"weeks" jsonschema:"cancellation probability per week"`
	Simulations int               `json:"simulations" jsonschema:"number of runs used"`
	SeedUsed    int64             `json:"seed_used" jsonschema:"seed value used by the server"`
	SeedSource  string            `json:"seed_source" jsonschema:"seed source (CLIENT or SERVER)"`
	ElapsedMs   int64             `json:"elapsed_ms" jsonschema:"wall time of the estimate"`
}

// ListRunsInput defines the input for the list_runs tool.
type ListRunsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of runs to return, newest first (default 20)"`
}

// RunSummary is a list view of a saved run.
type RunSummary struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Label       string    `json:"label,omitempty"`
	Small       float64   `json:"p2"`
	Big         float64   `json:"p4"`
	Weeks       int       `json:"weeks"`
	Simulations int       `json:"simulations"`
	Seed        int64     `json:"seed"`
	FirstDate   string    `json:"first_date"`
}

// ListRunsOutput defines the output for the list_runs tool.
type ListRunsOutput struct {
	Runs  []RunSummary `json:"runs" jsonschema:"saved runs, newest first"`
	Count int          `json:"count" jsonschema:"number of runs returned"`
}
