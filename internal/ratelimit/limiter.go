// Package ratelimit provides token bucket limits for MCP tool calls and the
// simulation work they request.
package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nvandessel/flightbreak/internal/constants"
)

// ErrRateLimited is wrapped by every error returned from Check.
var ErrRateLimited = errors.New("rate limit exceeded")

// Limiter implements a per-key token bucket.
// It is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64          // tokens per second
	burst   float64          // bucket capacity, also the initial fill
	nowFunc func() time.Time // injectable clock for testing
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// NewLimiter creates a limiter that refills rate tokens per second up to burst.
func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   float64(burst),
		nowFunc: time.Now,
	}
}

// Allow reports whether one token is available for key, consuming it if so.
func (l *Limiter) Allow(key string) bool {
	return l.AllowN(key, 1)
}

// AllowN reports whether cost tokens are available for key, consuming them
// if so. A cost larger than the burst is never allowed.
func (l *Limiter) AllowN(key string, cost float64) bool {
	if cost > l.burst {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.refill(key)
	if b.tokens < cost {
		return false
	}
	b.tokens -= cost
	return true
}

// Tokens returns the tokens currently available for key.
func (l *Limiter) Tokens(key string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.refill(key).tokens
}

// refill must be called with l.mu held.
func (l *Limiter) refill(key string) *bucket {
	now := l.nowFunc()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.burst, lastCheck: now}
		l.buckets[key] = b
		return b
	}

	elapsed := now.Sub(b.lastCheck).Seconds()
	if elapsed > 0 {
		b.tokens = min(b.tokens+l.rate*elapsed, l.burst)
		b.lastCheck = now
	}
	return b
}

// ToolLimiters holds a call limiter per tool and a shared budget of
// simulated weeks.
type ToolLimiters struct {
	calls map[string]*Limiter
	work  *Limiter
}

// workKey is the single bucket used for the shared simulation budget.
const workKey = "simulated-weeks"

// NewToolLimiters creates limiters for the given tool names using the
// default rates.
func NewToolLimiters(tools ...string) *ToolLimiters {
	calls := make(map[string]*Limiter, len(tools))
	for _, name := range tools {
		calls[name] = NewLimiter(constants.ToolRatePerSecond, constants.ToolBurst)
	}
	return &ToolLimiters{
		calls: calls,
		work:  NewLimiter(constants.ToolWorkPerSecond, constants.ToolWorkBurst),
	}
}

// Check admits a call to tool that will simulate work weeks in total.
// Tools without a configured limiter are only charged for work.
// A nil *ToolLimiters admits everything.
func (t *ToolLimiters) Check(tool string, work int) error {
	if t == nil {
		return nil
	}
	if limiter, ok := t.calls[tool]; ok && !limiter.Allow(tool) {
		return fmt.Errorf("%w for %s, please try again shortly", ErrRateLimited, tool)
	}
	if work > 0 && !t.work.AllowN(workKey, float64(work)) {
		return fmt.Errorf("%w: simulation budget exhausted by %s (%d simulated weeks requested)", ErrRateLimited, tool, work)
	}
	return nil
}
