// Package estimate turns many independent breaker trajectories into a
// per-week cancellation probability series.
package estimate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/flightbreak/internal/breaker"
	"github.com/nvandessel/flightbreak/internal/logging"
)

// ErrInvalidSimulations is returned when fewer than one run is requested.
var ErrInvalidSimulations = errors.New("number of simulations must be at least 1")

// cancelCheckInterval is how many runs a worker completes between context checks.
const cancelCheckInterval = 256

var tracer = otel.Tracer("github.com/nvandessel/flightbreak/internal/estimate")

// Series holds one cancellation probability per week.
type Series []float64

// Result is the outcome of one estimate.
type Result struct {
	Probabilities breaker.Probabilities `json:"probabilities"`
	Weeks         int                   `json:"weeks"`
	Simulations   int                   `json:"simulations"`
	Workers       int                   `json:"workers"`

	// Seed is the base seed of the chunk samplers. It is zero, and means
	// nothing, when the Estimator's NewSampler supplied the samplers.
	Seed   int64  `json:"seed"`
	Series Series `json:"series"`

	// Counts[w] is the number of runs cancelled at week w.
	Counts  []int         `json:"counts"`
	Elapsed time.Duration `json:"elapsed"`
}

// Estimator runs trajectories in parallel chunks. The zero value is ready to
// use: one worker per CPU and a fresh random seed per estimate.
type Estimator struct {
	// Workers caps the number of concurrent chunks. Zero means runtime.NumCPU().
	Workers int

	// Seed is used when Seeded is true. Chunk c draws from NewSampler(Seed+c),
	// so results are reproducible for a fixed (Seed, Workers) pair.
	Seed   int64
	Seeded bool

	// NewSampler, when non-nil, replaces the seeded sampler for each chunk.
	// Seed and Seeded are then ignored.
	NewSampler func(chunk int) breaker.Sampler

	Logger *slog.Logger
	RunLog *logging.RunLogger
}

// Probabilities estimates with a default Estimator.
func Probabilities(ctx context.Context, p breaker.Probabilities, weeks, simulations int) (Series, error) {
	var e Estimator
	res, err := e.Estimate(ctx, p, weeks, simulations)
	if err != nil {
		return nil, err
	}
	return res.Series, nil
}

// Estimate runs simulations trajectories and returns the fraction cancelled
// at each week. Invalid probabilities fail before any run starts and the
// breaker.ConfigurationError is returned unchanged.
func (e *Estimator) Estimate(ctx context.Context, p breaker.Probabilities, weeks, simulations int) (_ Result, retErr error) {
	ctx, span := tracer.Start(ctx, "estimate.Estimate", trace.WithAttributes(
		attribute.Float64("breaker.p2", p.Small),
		attribute.Float64("breaker.p4", p.Big),
		attribute.Int("breaker.weeks", weeks),
		attribute.Int("estimate.simulations", simulations),
	))
	defer func() {
		if retErr != nil {
			span.RecordError(retErr)
			span.SetStatus(codes.Error, retErr.Error())
		}
		span.End()
	}()

	if err := breaker.Validate(p, weeks); err != nil {
		e.logFailure(p, weeks, simulations, err)
		return Result{}, err
	}
	if simulations < 1 {
		err := fmt.Errorf("%w, got %d", ErrInvalidSimulations, simulations)
		e.logFailure(p, weeks, simulations, err)
		return Result{}, err
	}

	// A caller-supplied NewSampler owns the streams, so no seed is reported.
	var seed int64
	switch {
	case e.NewSampler != nil:
	case e.Seeded:
		seed = e.Seed
	default:
		var err error
		if seed, err = breaker.NewSeed(); err != nil {
			return Result{}, err
		}
	}

	sizes := chunkSizes(simulations, e.workers())
	span.SetAttributes(attribute.Int("estimate.workers", len(sizes)), attribute.Int64("estimate.seed", seed))

	start := time.Now()
	logger := e.logger()
	perChunk := make([][]int, len(sizes))

	g, gctx := errgroup.WithContext(ctx)
	for c, n := range sizes {
		sampler := e.sampler(c, seed)
		g.Go(func() error {
			counts, err := runChunk(gctx, p, weeks, n, sampler)
			if err != nil {
				return err
			}
			perChunk[c] = counts
			logger.Debug("chunk complete", "chunk", c, "runs", n)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.logFailure(p, weeks, simulations, err)
		return Result{}, err
	}

	counts := make([]int, weeks)
	for _, chunk := range perChunk {
		for w, n := range chunk {
			counts[w] += n
		}
	}

	series := make(Series, weeks)
	for w, n := range counts {
		series[w] = float64(n) / float64(simulations)
	}

	res := Result{
		Probabilities: p,
		Weeks:         weeks,
		Simulations:   simulations,
		Workers:       len(sizes),
		Seed:          seed,
		Series:        series,
		Counts:        counts,
		Elapsed:       time.Since(start),
	}

	logger.Info("estimate complete",
		"p2", p.Small, "p4", p.Big, "weeks", weeks,
		"simulations", simulations, "workers", res.Workers, "elapsed", res.Elapsed)
	e.RunLog.Log(logging.RunRecord{
		Event:       "estimate",
		Small:       p.Small,
		Big:         p.Big,
		Weeks:       weeks,
		Simulations: simulations,
		Workers:     res.Workers,
		Seed:        seed,
		ElapsedMs:   res.Elapsed.Milliseconds(),
		Series:      series,
	})

	return res, nil
}

// runChunk generates n trajectories from one sampler and counts the
// cancelled weeks position by position.
func runChunk(ctx context.Context, p breaker.Probabilities, weeks, n int, s breaker.Sampler) ([]int, error) {
	counts := make([]int, weeks)
	for i := 0; i < n; i++ {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		traj, err := breaker.Generate(p, weeks, s)
		if err != nil {
			return nil, err
		}
		for w, v := range traj {
			if v == breaker.Cancelled {
				counts[w]++
			}
		}
	}
	return counts, nil
}

// chunkSizes splits total runs over at most workers chunks, giving the
// remainder to the first chunks.
func chunkSizes(total, workers int) []int {
	workers = max(1, min(workers, total))
	sizes := make([]int, workers)
	base, rem := total/workers, total%workers
	for i := range sizes {
		sizes[i] = base
		if i < rem {
			sizes[i]++
		}
	}
	return sizes
}

func (e *Estimator) workers() int {
	if e.Workers > 0 {
		return e.Workers
	}
	return runtime.NumCPU()
}

func (e *Estimator) sampler(chunk int, seed int64) breaker.Sampler {
	if e.NewSampler != nil {
		return e.NewSampler(chunk)
	}
	return breaker.NewSampler(seed + int64(chunk))
}

func (e *Estimator) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return logging.Discard()
}

func (e *Estimator) logFailure(p breaker.Probabilities, weeks, simulations int, err error) {
	e.logger().Warn("estimate failed", "p2", p.Small, "p4", p.Big, "weeks", weeks, "error", err)
	e.RunLog.Log(logging.RunRecord{
		Event:       "estimate_failed",
		Small:       p.Small,
		Big:         p.Big,
		Weeks:       weeks,
		Simulations: simulations,
		Error:       err.Error(),
	})
}
