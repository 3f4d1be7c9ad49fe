package sched

// MemReq is an address-phase request on a memory port.
type MemReq struct {
	Enable bool
	Addr   int
}

// Strobe asks a collaborator to capture the data currently on its input bus
// into slot Addr.
type Strobe struct {
	Enable bool
	Addr   int
}

// ActSlot identifies one slot of the convolution activation staging
// registers.
type ActSlot struct {
	Enable bool
	PE     int
	Window int
}

// ComputeCtrl drives the compute array.
type ComputeCtrl struct {
	Valid    bool
	Op       Op
	Stage    Stage
	SubCycle int

	// SubCycles is the number of valid ticks of this invocation.
	SubCycles int
}

// Signals is everything the controller drives during one tick. Data never
// passes through the controller: each strobe names where the data present
// on the matching return bus must go.
type Signals struct {
	State    State
	Counters LoopCounters

	// Accepted pulses on the tick a start pulse opens a session.
	Accepted bool
	// Done pulses once, on the first tick of the terminal state.
	Done bool

	// WeightFetch reads the backing weight store (preload and prefetch).
	WeightFetch MemReq
	// WeightShadowWrite stores the weight-store data into the shadow bank.
	WeightShadowWrite Strobe
	// WeightActiveRead reads the active weight bank (serving stream).
	WeightActiveRead MemReq
	// WeightStage loads the active-bank data into a weight staging slot.
	WeightStage Strobe
	// WeightSwap flips the weight double buffer.
	WeightSwap bool

	// FeatureFetch reads the feature store or the feedback tap.
	FeatureFetch MemReq
	// ActStage loads feature data into a convolution staging slot.
	ActStage ActSlot
	// ActShadowWrite stores feature data into the activation shadow bank.
	ActShadowWrite Strobe
	// ActSwap flips the activation double buffer.
	ActSwap bool

	Compute ComputeCtrl
	// Capture latches the compute result into the output accumulator.
	Capture bool

	// ReadIdx selects the accumulator word drained this tick.
	ReadIdx int
	// ResultWrite writes the drained word to the result store.
	ResultWrite MemReq
	// HiddenWrite writes the drained word into the activation shadow bank.
	HiddenWrite Strobe
}

// Writeback tells if the tick drains an accumulator word anywhere.
func (s *Signals) Writeback() bool {
	return s.ResultWrite.Enable || s.HiddenWrite.Enable
}
