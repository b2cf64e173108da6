package breaker

import (
	"math"

	"github.com/nvandessel/flightbreak/internal/constants"
)

// Magnitudes a week can sample, in weighted-choice order.
const (
	None  = 0
	Small = constants.SmallBreakWeeks
	Big   = constants.BigBreakWeeks
)

// Cancelled marks a week inside an active break window.
const Cancelled = -1

// Probabilities holds the per-week trigger probabilities.
type Probabilities struct {
	// Small is the probability of a small trigger (p2).
	Small float64 `json:"p2" yaml:"p2"`

	// Big is the probability of a big trigger (p4).
	Big float64 `json:"p4" yaml:"p4"`
}

// sumTolerance absorbs rounding in p2 + p4 for pairs that sum to one.
const sumTolerance = 1e-12

// None returns the implied probability that a week has no trigger, never
// below zero for valid probabilities.
func (p Probabilities) None() float64 {
	return max(0, 1-p.Small-p.Big)
}

// Validate checks that both probabilities are in [0, 1] and leave a
// non-negative no-trigger probability.
func (p Probabilities) Validate() error {
	if err := checkUnit("p2", p.Small); err != nil {
		return err
	}
	if err := checkUnit("p4", p.Big); err != nil {
		return err
	}
	if p0 := 1 - p.Small - p.Big; p0 < -sumTolerance {
		return &ConfigurationError{
			Field:  "p0",
			Value:  p0,
			Reason: "implied no-trigger probability is negative",
		}
	}
	return nil
}

// Validate checks probabilities and horizon together. Both the generator and
// the aggregator call it before sampling anything.
func Validate(p Probabilities, weeks int) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if weeks < 1 {
		return &ConfigurationError{
			Field:  "weeks",
			Value:  float64(weeks),
			Reason: "horizon must be at least one week",
		}
	}
	return nil
}

func checkUnit(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &ConfigurationError{Field: field, Value: v, Reason: "probability must be a finite number"}
	}
	if v < 0 || v > 1 {
		return &ConfigurationError{Field: field, Value: v, Reason: "probability must be between 0 and 1"}
	}
	return nil
}

// pick maps a uniform draw to a magnitude by cumulative weights
// {p0, p2, p4}, choosing the first bucket whose upper bound exceeds the draw.
func (p Probabilities) pick(s Sampler) int {
	p0 := p.None()
	u := s.Float64() * (p0 + p.Small + p.Big)
	switch {
	case u < p0:
		return None
	case u < p0+p.Small:
		return Small
	default:
		return Big
	}
}
