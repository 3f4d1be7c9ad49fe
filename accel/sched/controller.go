// Package sched implements the scheduling controller of the dual-mode
// accelerator. The controller is a single state machine advanced once per
// tick by Step. It never touches data; every tick it emits the Signals that
// tell the datapath which memories to address, which strobes to fire and
// when to compute.
package sched

import "log"

// Inputs are the session-control lines sampled every tick.
type Inputs struct {
	Mode  Mode
	Start bool
	Reset bool
}

// Controller owns the state register, the loop counters and the shared load
// phase counter.
type Controller struct {
	dims   Dims
	shapes [numModes]WorkloadShape
	shape  WorkloadShape

	state    State
	phase    LoadPhase
	counters LoopCounters
	doneSent bool
	cycle    uint64
}

// NewController creates an idle controller that sweeps the given dims.
func NewController(dims Dims) *Controller {
	if err := dims.Validate(); err != nil {
		log.Panic(err)
	}

	c := &Controller{dims: dims}
	c.shapes[ModeConvolution] = NewShape(ModeConvolution, dims)
	c.shapes[ModeDenseMatmul] = NewShape(ModeDenseMatmul, dims)

	return c
}

// Dims returns the loop bounds of the controller.
func (c *Controller) Dims() Dims {
	return c.dims
}

// State returns the current state register.
func (c *Controller) State() State {
	return c.state
}

// Counters returns a copy of the loop counters.
func (c *Controller) Counters() LoopCounters {
	return c.counters
}

// Phase returns the shared load phase counter.
func (c *Controller) Phase() LoadPhase {
	return c.phase
}

// Cycle returns how many times Step has been called.
func (c *Controller) Cycle() uint64 {
	return c.cycle
}

// Busy tells if a session is running.
func (c *Controller) Busy() bool {
	return c.state.Busy()
}

// Mode returns the mode of the current or last session. The second return
// value is false if no session has been accepted since reset.
func (c *Controller) Mode() (Mode, bool) {
	if c.shape == nil {
		return 0, false
	}

	return c.shape.Mode(), true
}

// Reset returns the controller to Idle and clears every counter.
func (c *Controller) Reset() {
	c.state = StateIdle
	c.shape = nil
	c.phase = 0
	c.counters = LoopCounters{}
	c.doneSent = false
}

// Step advances the controller by one tick and returns what it drives during
// that tick.
func (c *Controller) Step(in Inputs) Signals {
	c.cycle++

	if in.Reset {
		c.Reset()
		return Signals{State: StateIdle}
	}

	switch {
	case c.state == StateIdle || c.state == StateDone:
		return c.stepIdle(in)
	case c.shape == nil || !c.shape.Owns(c.state):
		// A corrupted state register falls back to Idle.
		c.state = StateIdle
		return Signals{State: StateIdle, Counters: c.counters}
	default:
		return c.stepBusy()
	}
}

func (c *Controller) stepIdle(in Inputs) Signals {
	sig := Signals{State: c.state, Counters: c.counters}

	if c.state == StateDone && !c.doneSent {
		// Start is sampled again from the tick after the done pulse.
		sig.Done = true
		c.doneSent = true

		return sig
	}

	if !in.Start || !in.Mode.Valid() {
		return sig
	}

	c.shape = c.shapes[in.Mode]
	c.counters = LoopCounters{}
	c.doneSent = false
	c.enter(c.shape.Entry())

	sig.Accepted = true

	return sig
}

func (c *Controller) stepBusy() Signals {
	sig := Signals{State: c.state, Counters: c.counters}

	tick := c.tickInState()
	c.shape.Drive(c.state, &c.counters, tick, &sig)

	if tick+1 < c.shape.Length(c.state) {
		c.countTick()
		return sig
	}

	c.enter(c.shape.Advance(c.state, &c.counters))

	return sig
}

// tickInState returns how many ticks the current state has already spent.
func (c *Controller) tickInState() int {
	switch c.state.Category() {
	case CategoryPreload, CategoryLoad:
		return int(c.phase)
	case CategoryCompute:
		return c.counters.SubCycle
	case CategoryWriteback:
		return c.counters.WBIdx
	default:
		return 0
	}
}

func (c *Controller) countTick() {
	switch c.state.Category() {
	case CategoryPreload, CategoryLoad:
		c.phase++
	case CategoryCompute:
		c.counters.SubCycle++
	case CategoryWriteback:
		c.counters.WBIdx++
		counterMustBeInRange("write-back index", c.counters.WBIdx,
			c.shape.Length(c.state))
	}
}

func (c *Controller) enter(s State) {
	c.state = s
	c.phase = 0
	c.counters.SubCycle = 0
	c.counters.WBIdx = 0
}
