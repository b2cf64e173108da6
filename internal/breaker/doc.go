// Package breaker generates simulated weekly trajectories under the flight
// circuit breaker policy.
//
// Each week either samples a trigger magnitude (0, 2 or 4 weeks of break) or
// is already cancelled by a window opened earlier. A normal break starts no
// sooner than OnsetDelay weeks after its trigger and never before the
// previous normal break ends. Two big triggers in consecutive weeks, where
// the week before them was not a small trigger, impose an immediate break of
// EscalationWindow weeks starting the following week.
//
// Usage:
//
//	s := breaker.NewSampler(42)
//	traj, err := breaker.Generate(breaker.Probabilities{Small: 0.5, Big: 0.2}, 15, s)
//	if errors.Is(err, breaker.ErrConfiguration) {
//	    // p2 + p4 > 1
//	}
package breaker
