package store

import (
	"errors"
	"fmt"
	"math"

	"github.com/nvandessel/flightbreak/internal/breaker"
	"github.com/nvandessel/flightbreak/internal/calendar"
)

// ErrInvalidRun is matched by every error Validate returns.
var ErrInvalidRun = errors.New("invalid run")

// Validate checks that run could have been produced by an estimate: valid
// trigger probabilities, one count and one probability per week, at least one
// simulation, and a parseable first date.
func (run *Run) Validate() error {
	p := breaker.Probabilities{Small: run.Small, Big: run.Big}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRun, err)
	}
	if run.Simulations < 1 {
		return fmt.Errorf("%w: simulations must be at least 1, got %d", ErrInvalidRun, run.Simulations)
	}
	if run.Weeks < 1 {
		return fmt.Errorf("%w: weeks must be at least 1, got %d", ErrInvalidRun, run.Weeks)
	}
	if len(run.Series) != run.Weeks || len(run.Counts) != run.Weeks {
		return fmt.Errorf("%w: %d weeks but %d counts and %d probabilities",
			ErrInvalidRun, run.Weeks, len(run.Counts), len(run.Series))
	}
	for w, v := range run.Series {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("%w: week %d probability %v is outside [0, 1]", ErrInvalidRun, w, v)
		}
	}
	for w, n := range run.Counts {
		if n < 0 || n > run.Simulations {
			return fmt.Errorf("%w: week %d has %d cancelled runs out of %d", ErrInvalidRun, w, n, run.Simulations)
		}
	}
	if _, err := calendar.ParseDate(run.FirstDate); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRun, err)
	}
	return nil
}
