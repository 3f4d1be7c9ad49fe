package compute

import "github.com/sarchlab/nnaccel/accel/sched"

// PostProcessor transforms accumulator words on their way to memory.
type PostProcessor interface {
	Process(op sched.Op, stage sched.Stage, v uint32) uint32
}

// Passthrough leaves words unchanged.
type Passthrough struct{}

// Process returns v.
func (Passthrough) Process(_ sched.Op, _ sched.Stage, v uint32) uint32 {
	return v
}

// Requantize shifts words right and saturates them to Max. Words of the
// final stage are left unchanged unless AllStages is set.
type Requantize struct {
	Shift     uint
	Max       uint32
	AllStages bool
}

// Process requantizes v.
func (q Requantize) Process(op sched.Op, stage sched.Stage, v uint32) uint32 {
	final := op == sched.OpConv || stage == sched.StageL2
	if final && !q.AllStages {
		return v
	}

	return min(v>>q.Shift, q.Max)
}
