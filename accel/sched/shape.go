package sched

// WorkloadShape captures everything that differs between the two workloads.
// The controller owns the state register and the counters; a shape only
// tells it how long each state lasts, what each tick drives, and where to go
// when a state completes.
type WorkloadShape interface {
	// Mode returns the mode the shape implements.
	Mode() Mode

	// Entry returns the first state of a run.
	Entry() State

	// Owns tells if s is one of the shape's busy states.
	Owns(s State) bool

	// Length returns the fixed number of ticks state s lasts.
	Length(s State) int

	// Drive fills the signals asserted on tick `tick` of state s.
	Drive(s State, c *LoopCounters, tick int, sig *Signals)

	// Advance returns the state following s and updates the loop counters
	// when s is an advance state.
	Advance(s State, c *LoopCounters) State

	// ComputeParams returns the compute-array parameters of compute state s.
	ComputeParams(s State) ComputeCtrl
}

// NewShape returns the shape implementing mode m with bounds d.
func NewShape(m Mode, d Dims) WorkloadShape {
	if m == ModeDenseMatmul {
		return &matmulShape{dims: d}
	}

	return &convShape{dims: d}
}

func driveCompute(shape WorkloadShape, s State, tick int, sig *Signals) {
	ctrl := shape.ComputeParams(s)
	ctrl.Valid = true
	ctrl.SubCycle = tick
	sig.Compute = ctrl

	// The reduction completes on the last sub-cycle.
	sig.Capture = tick == ctrl.SubCycles-1
}

// driveWeightStreams asserts the serving stream and, when there is a next
// set, the prefetch stream for word w of a steady-state load.
func driveWeightStreams(
	phase LoadPhase,
	nextAddr int,
	hasNext bool,
	sig *Signals,
) {
	w := phase.Word()

	if phase.IsAddress() {
		sig.WeightActiveRead = MemReq{Enable: true, Addr: w}
		if hasNext {
			sig.WeightFetch = MemReq{Enable: true, Addr: nextAddr}
		}

		return
	}

	sig.WeightStage = Strobe{Enable: true, Addr: w}
	if hasNext {
		sig.WeightShadowWrite = Strobe{Enable: true, Addr: w}
	}
}

// drivePreload fetches word w of a set from the weight store into the shadow
// bank.
func drivePreload(phase LoadPhase, addr int, sig *Signals) {
	if phase.IsAddress() {
		sig.WeightFetch = MemReq{Enable: true, Addr: addr}
		return
	}

	sig.WeightShadowWrite = Strobe{Enable: true, Addr: phase.Word()}
}
