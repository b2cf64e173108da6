package breaker

import (
	"github.com/nvandessel/flightbreak/internal/constants"
)

// Trajectory is one simulated horizon. Entries are None, Small, Big, or
// Cancelled.
type Trajectory []int

// CancelledWeeks returns the number of Cancelled entries.
func (t Trajectory) CancelledWeeks() int {
	n := 0
	for _, v := range t {
		if v == Cancelled {
			n++
		}
	}
	return n
}

// Event records what one sampled week committed.
type Event struct {
	Week      int  `json:"week"`
	Magnitude int  `json:"magnitude"`
	Escalated bool `json:"escalated"`

	// WindowStart is the first week of the committed window. For a None
	// magnitude it is the window floor at the time of sampling.
	WindowStart  int `json:"window_start"`
	WindowLength int `json:"window_length"`
}

// Run is a trajectory together with the events that produced it.
type Run struct {
	Trajectory Trajectory `json:"trajectory"`
	Events     []Event    `json:"events"`
}

// Generate produces one trajectory of the given length.
func Generate(p Probabilities, weeks int, s Sampler) (Trajectory, error) {
	if err := Validate(p, weeks); err != nil {
		return nil, err
	}
	g := newGenerator(p, weeks, false)
	g.run(s)
	return g.trajectory(), nil
}

// GenerateRun is Generate plus the per-week event log.
func GenerateRun(p Probabilities, weeks int, s Sampler) (Run, error) {
	if err := Validate(p, weeks); err != nil {
		return Run{}, err
	}
	g := newGenerator(p, weeks, true)
	g.run(s)
	return Run{Trajectory: g.trajectory(), Events: g.events}, nil
}

// generator holds the working buffer and its two cursors. cursor is the week
// being decided; windowFloor is the earliest week a new normal window may
// start.
type generator struct {
	p           Probabilities
	weeks       int
	buf         []int
	cursor      int
	windowFloor int

	record bool
	events []Event
}

func newGenerator(p Probabilities, weeks int, record bool) *generator {
	return &generator{
		p:           p,
		weeks:       weeks,
		buf:         make([]int, weeks+constants.MaxBreakWindow),
		windowFloor: constants.OnsetDelay,
		record:      record,
	}
}

func (g *generator) run(s Sampler) {
	for ; g.cursor < g.weeks; g.cursor++ {
		if g.buf[g.cursor] == Cancelled {
			continue
		}
		g.step(g.p.pick(s))
	}
}

// step applies one sampled magnitude at the cursor.
func (g *generator) step(magnitude int) {
	i := g.cursor
	g.windowFloor = max(g.windowFloor, i+constants.OnsetDelay)
	g.buf[i] = magnitude

	ev := Event{Week: i, Magnitude: magnitude}
	if g.escalates(magnitude) {
		ev.Escalated = true
		ev.WindowStart = i + 1
		ev.WindowLength = constants.EscalationWindow
		g.overlay(i+1, constants.EscalationWindow)
	} else {
		ev.WindowStart = g.windowFloor
		ev.WindowLength = magnitude
		g.overlay(g.windowFloor, magnitude)
		g.windowFloor += magnitude
	}

	if g.record {
		g.events = append(g.events, ev)
	}
}

// escalates reports whether a big trigger at the cursor forces an immediate
// break: the previous week was also big and the week before that was not
// small.
func (g *generator) escalates(magnitude int) bool {
	i := g.cursor
	return magnitude == Big && g.at(i-1) == Big && g.at(i-2) != Small
}

// at reads the buffer, treating weeks before the horizon as untriggered.
func (g *generator) at(week int) int {
	if week < 0 {
		return None
	}
	return g.buf[week]
}

// overlay marks length weeks from start as Cancelled, clipped to the buffer.
func (g *generator) overlay(start, length int) {
	end := min(start+length, len(g.buf))
	for w := start; w < end; w++ {
		g.buf[w] = Cancelled
	}
}

func (g *generator) trajectory() Trajectory {
	out := make(Trajectory, g.weeks)
	copy(out, g.buf[:g.weeks])
	return out
}
