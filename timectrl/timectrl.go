// Package timectrl provides the clocks that stamp link creation times.
package timectrl

import (
	"sync"
	"time"
)

// Clock is a source of the current time.
type Clock interface {
	Now() time.Time
}

// System reads the wall clock in UTC.
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

// Stepper is a deterministic clock: every Now call advances it by a fixed
// step, so successive readings are strictly increasing. Safe for concurrent
// use.
type Stepper struct {
	mu      sync.Mutex
	current time.Time
	step    time.Duration
}

// NewStepper returns a clock whose first reading is start+step.
func NewStepper(start time.Time, step time.Duration) *Stepper {
	return &Stepper{current: start, step: step}
}

// Now advances the clock by one step and returns the new time.
func (s *Stepper) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = s.current.Add(s.step)
	return s.current
}

// Set moves the clock to t; the next reading is t+step.
func (s *Stepper) Set(t time.Time) {
	s.mu.Lock()
	s.current = t
	s.mu.Unlock()
}

// Peek returns the last reading without advancing.
func (s *Stepper) Peek() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
