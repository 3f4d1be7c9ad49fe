package accel

import (
	"github.com/sarchlab/nnaccel/accel/sched"
	"github.com/sarchlab/nnaccel/sim/timing"
)

// Session is the bookkeeping of one run, from the accepted start pulse to
// the done pulse.
type Session struct {
	ID      string
	Mode    sched.Mode
	Running bool
	Done    bool
	Aborted bool

	StartCycle timing.VTimeInCycle
	EndCycle   timing.VTimeInCycle

	// ExpectedResultWords is how many result words a complete run writes.
	ExpectedResultWords int

	ResultWords  uint64
	HiddenWords  uint64
	ColumnLoads  uint64
	ComputeTicks uint64
}

// Cycles returns the length of the session so far, or its total length once
// it has ended.
func (s *Session) Cycles(now timing.VTimeInCycle) timing.VTimeInCycle {
	if s.Running {
		return now - s.StartCycle
	}

	return s.EndCycle - s.StartCycle
}

// Progress returns the fraction of result words written.
func (s *Session) Progress() float64 {
	if s.ExpectedResultWords == 0 {
		return 0
	}

	return float64(s.ResultWords) / float64(s.ExpectedResultWords)
}
