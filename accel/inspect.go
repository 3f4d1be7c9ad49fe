package accel

import (
	"github.com/sarchlab/nnaccel/accel/addressing"
	"github.com/sarchlab/nnaccel/accel/sched"
)

// Inspection is a copy of the state of an accelerator at one point in time.
// It holds only scalars, slices, and plain structs.
type Inspection struct {
	Name     string
	State    string
	Mode     string
	Busy     bool
	Cycle    uint64
	Counters sched.LoopCounters
	Feedback bool

	WeightBank  string
	WeightSwaps uint64
	ActBank     string
	ActSwaps    uint64

	WeightStaging []uint32
	ConvActs      [][]uint32
	Accumulator   []uint32
	Captures      uint64

	// Session is the running or the last session, nil before the first one.
	Session  *Session
	Sessions int
}

// Inspect takes a snapshot of the accelerator.
func (a *Accelerator) Inspect() Inspection {
	insp := Inspection{
		Name:     a.Name(),
		State:    a.ctrl.State().String(),
		Busy:     a.Busy(),
		Cycle:    a.ctrl.Cycle(),
		Counters: a.ctrl.Counters(),
		Feedback: a.featureMux.Feedback(),

		WeightBank:  a.weightBuf.Active().String(),
		WeightSwaps: a.weightBuf.NumSwaps(),
		ActBank:     a.actBuf.Active().String(),
		ActSwaps:    a.actBuf.NumSwaps(),

		WeightStaging: append([]uint32(nil), a.weightStaging[:]...),
		ConvActs:      make([][]uint32, addressing.ConvPEs),
		Captures:      a.acc.NumCaptures(),
		Sessions:      len(a.sessions),
	}

	if mode, ok := a.ctrl.Mode(); ok {
		insp.Mode = mode.String()
	}

	for pe := range a.convActs {
		insp.ConvActs[pe] = append([]uint32(nil), a.convActs[pe][:]...)
	}

	words := a.acc.Words()
	insp.Accumulator = words[:]

	if a.session != nil {
		s := *a.session
		insp.Session = &s
	}

	return insp
}
