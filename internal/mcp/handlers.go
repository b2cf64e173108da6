package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/flightbreak/internal/breaker"
	"github.com/nvandessel/flightbreak/internal/calendar"
	"github.com/nvandessel/flightbreak/internal/constants"
	"github.com/nvandessel/flightbreak/internal/estimate"
	"github.com/nvandessel/flightbreak/internal/store"
)

const (
	seedSourceClient = "CLIENT"
	seedSourceServer = "SERVER"

	defaultListLimit = 20
	runURIPrefix     = "flightbreak://runs/"
)

// registerTools registers all flightbreak MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        toolGenerateTrajectory,
		Description: "Sample one week-by-week trajectory of the flight circuit breaker: 0, 2 or 4 for the trigger drawn that week, -1 for a week whose flights are cancelled",
	}, s.handleGenerateTrajectory)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        toolEstimateProbabilities,
		Description: "Estimate the probability that each week is cancelled by the circuit breaker, using Monte Carlo simulation; optionally save the result to run history",
	}, s.handleEstimateProbabilities)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        toolListRuns,
		Description: "List saved estimates from run history, newest first",
	}, s.handleListRuns)
}

// registerResources registers the run detail resource template.
func (s *Server) registerResources() {
	s.server.AddResourceTemplate(&sdk.ResourceTemplate{
		URITemplate: runURIPrefix + "{id}",
		Name:        "flightbreak-run",
		Description: "Full weekly results of a saved estimate.",
		MIMEType:    "text/markdown",
	}, s.handleRunResource)
}

// handleGenerateTrajectory implements the generate_trajectory tool.
func (s *Server) handleGenerateTrajectory(ctx context.Context, req *sdk.CallToolRequest, args GenerateTrajectoryInput) (_ *sdk.CallToolResult, _ GenerateTrajectoryOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(toolGenerateTrajectory, start, retErr, sanitizeToolParams(map[string]any{
			"p2": args.Small, "p4": args.Big, "weeks": args.Weeks, "seed": args.Seed, "explain": args.Explain,
		}))
	}()

	p := s.probabilities(args.Small, args.Big)
	weeks := s.weeks(args.Weeks)
	if weeks > constants.MaxToolWeeks {
		return nil, GenerateTrajectoryOutput{}, fmt.Errorf("weeks %d exceeds the limit of %d", weeks, constants.MaxToolWeeks)
	}
	if err := s.toolLimiters.Check(toolGenerateTrajectory, weeks); err != nil {
		return nil, GenerateTrajectoryOutput{}, err
	}

	seed, source, err := s.seed(args.Seed)
	if err != nil {
		return nil, GenerateTrajectoryOutput{}, err
	}

	run, err := breaker.GenerateRun(p, weeks, breaker.NewSampler(seed))
	if err != nil {
		return nil, GenerateTrajectoryOutput{}, err
	}

	out := GenerateTrajectoryOutput{
		Trajectory:     run.Trajectory,
		CancelledWeeks: run.Trajectory.CancelledWeeks(),
		SeedUsed:       seed,
		SeedSource:     source,
	}
	if args.Explain {
		out.Events = run.Events
	}
	return nil, out, nil
}

// handleEstimateProbabilities implements the estimate_probabilities tool.
func (s *Server) handleEstimateProbabilities(ctx context.Context, req *sdk.CallToolRequest, args EstimateProbabilitiesInput) (_ *sdk.CallToolResult, _ EstimateProbabilitiesOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(toolEstimateProbabilities, start, retErr, sanitizeToolParams(map[string]any{
			"p2": args.Small, "p4": args.Big, "weeks": args.Weeks, "simulations": args.Simulations,
			"seed": args.Seed, "first_date": args.FirstDate, "save": args.Save, "label": args.Label,
		}))
	}()

	p := s.probabilities(args.Small, args.Big)
	weeks := s.weeks(args.Weeks)
	simulations := args.Simulations
	if simulations == 0 {
		simulations = s.settings.Simulation.Simulations
	}
	if weeks > constants.MaxToolWeeks {
		return nil, EstimateProbabilitiesOutput{}, fmt.Errorf("weeks %d exceeds the limit of %d", weeks, constants.MaxToolWeeks)
	}
	if simulations > constants.MaxToolSimulations {
		return nil, EstimateProbabilitiesOutput{}, fmt.Errorf("simulations %d exceeds the limit of %d", simulations, constants.MaxToolSimulations)
	}

	firstDate := args.FirstDate
	if firstDate == "" {
		firstDate = s.settings.Calendar.FirstDate
	}
	first, err := calendar.ParseDate(firstDate)
	if err != nil {
		return nil, EstimateProbabilitiesOutput{}, err
	}

	if err := s.toolLimiters.Check(toolEstimateProbabilities, max(weeks, 0)*max(simulations, 0)); err != nil {
		return nil, EstimateProbabilitiesOutput{}, err
	}

	seed, source, err := s.seed(args.Seed)
	if err != nil {
		return nil, EstimateProbabilitiesOutput{}, err
	}

	estimator := &estimate.Estimator{
		Workers: s.settings.Simulation.Workers,
		Seed:    seed,
		Seeded:  true,
		Logger:  s.logger,
		RunLog:  s.runLog,
	}
	res, err := estimator.Estimate(ctx, p, weeks, simulations)
	if err != nil {
		return nil, EstimateProbabilitiesOutput{}, err
	}

	out := EstimateProbabilitiesOutput{
		Weeks:       make([]WeekProbability, 0, len(res.Series)),
		Simulations: res.Simulations,
		SeedUsed:    res.Seed,
		SeedSource:  source,
		ElapsedMs:   res.Elapsed.Milliseconds(),
	}
	for _, pt := range calendar.Dated(first, res.Series) {
		out.Weeks = append(out.Weeks, WeekProbability{
			Week:        pt.Week,
			Date:        calendar.Format(pt.Date),
			Probability: pt.Probability,
		})
	}

	if args.Save {
		saved, err := s.store.SaveRun(ctx, store.Run{
			Label:       args.Label,
			Small:       p.Small,
			Big:         p.Big,
			Weeks:       res.Weeks,
			Simulations: res.Simulations,
			Workers:     res.Workers,
			Seed:        res.Seed,
			FirstDate:   calendar.Format(first),
			ElapsedMs:   res.Elapsed.Milliseconds(),
			Counts:      res.Counts,
			Series:      res.Series,
		})
		if err != nil {
			return nil, EstimateProbabilitiesOutput{}, fmt.Errorf("failed to save run: %w", err)
		}
		out.RunID = saved.ID
	}

	return nil, out, nil
}

// handleListRuns implements the list_runs tool.
func (s *Server) handleListRuns(ctx context.Context, req *sdk.CallToolRequest, args ListRunsInput) (_ *sdk.CallToolResult, _ ListRunsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(toolListRuns, start, retErr, sanitizeToolParams(map[string]any{"limit": args.Limit}))
	}()

	if err := s.toolLimiters.Check(toolListRuns, 0); err != nil {
		return nil, ListRunsOutput{}, err
	}

	limit := args.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	runs, err := s.store.ListRuns(ctx, limit)
	if err != nil {
		return nil, ListRunsOutput{}, fmt.Errorf("failed to list runs: %w", err)
	}

	summaries := make([]RunSummary, 0, len(runs))
	for _, r := range runs {
		summaries = append(summaries, RunSummary{
			ID:          r.ID,
			CreatedAt:   r.CreatedAt,
			Label:       r.Label,
			Small:       r.Small,
			Big:         r.Big,
			Weeks:       r.Weeks,
			Simulations: r.Simulations,
			Seed:        r.Seed,
			FirstDate:   r.FirstDate,
		})
	}

	return nil, ListRunsOutput{Runs: summaries, Count: len(summaries)}, nil
}

// handleRunResource returns a saved run as a markdown table.
func (s *Server) handleRunResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	uri := req.Params.URI
	if !strings.HasPrefix(uri, runURIPrefix) {
		return nil, fmt.Errorf("invalid URI format: %s", uri)
	}
	id := strings.TrimPrefix(uri, runURIPrefix)
	if id == "" {
		return nil, fmt.Errorf("run ID is required")
	}

	run, err := s.store.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      uri,
				MIMEType: "text/markdown",
				Text:     formatRunMarkdown(run),
			},
		},
	}, nil
}

func formatRunMarkdown(run *store.Run) string {
	var sb strings.Builder
	title := run.ID
	if run.Label != "" {
		title = run.Label
	}
	fmt.Fprintf(&sb, "# Run: %s\n\n", title)
	fmt.Fprintf(&sb, "**ID:** %s\n", run.ID)
	fmt.Fprintf(&sb, "**Created:** %s\n", run.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&sb, "**Triggers:** p2=%.3f p4=%.3f\n", run.Small, run.Big)
	fmt.Fprintf(&sb, "**Simulations:** %d (seed %d)\n\n", run.Simulations, run.Seed)

	sb.WriteString("| Week | Date | Cancelled | Probability |\n")
	sb.WriteString("|---:|---|---:|---:|\n")
	first, err := calendar.ParseDate(run.FirstDate)
	for w, p := range run.Series {
		date := ""
		if err == nil {
			date = calendar.Format(calendar.WeekStart(first, w))
		}
		fmt.Fprintf(&sb, "| %d | %s | %d | %.4f |\n", w, date, run.Counts[w], p)
	}
	return sb.String()
}

// probabilities fills omitted trigger probabilities from the settings.
func (s *Server) probabilities(small, big *float64) breaker.Probabilities {
	p := breaker.Probabilities{
		Small: s.settings.Simulation.Small,
		Big:   s.settings.Simulation.Big,
	}
	if small != nil {
		p.Small = *small
	}
	if big != nil {
		p.Big = *big
	}
	return p
}

func (s *Server) weeks(w int) int {
	if w == 0 {
		return s.settings.Simulation.Weeks
	}
	return w
}

// seed returns the client's seed, the configured seed, or a fresh one.
func (s *Server) seed(requested *int64) (int64, string, error) {
	if requested != nil {
		return *requested, seedSourceClient, nil
	}
	if s.settings.Simulation.Seed != nil {
		return *s.settings.Simulation.Seed, seedSourceServer, nil
	}
	seed, err := breaker.NewSeed()
	if err != nil {
		return 0, "", err
	}
	return seed, seedSourceServer, nil
}
