package breaker

import (
	"math/rand/v2"
)

// Sampler is the source of uniform draws in [0, 1) used to pick trigger
// magnitudes. *rand.Rand from math/rand/v2 satisfies it.
//
// A Sampler is not required to be safe for concurrent use; callers running
// generators in parallel give each goroutine its own.
type Sampler interface {
	Float64() float64
}

// NewSampler returns a PCG-backed sampler. Equal seeds yield equal streams.
func NewSampler(seed int64) *rand.Rand {
	s := uint64(seed)
	return rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15))
}
