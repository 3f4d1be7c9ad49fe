package sched

import "fmt"

// State is the scheduler's state register. Both workloads share one register;
// the workload shape decides which states are visited.
type State uint8

// All scheduler states.
const (
	StateIdle State = iota

	StateConvPreload
	StateConvSwap
	StateConvLoad
	StateConvCompute
	StateConvWriteback
	StateConvAdvance

	StateMatmulPreloadL1
	StateMatmulSwapL1
	StateMatmulLoadL1
	StateMatmulComputeL1
	StateMatmulWritebackL1
	StateMatmulAdvanceL1
	StateMatmulPreloadL2
	StateMatmulSwapL2
	StateMatmulLoadL2
	StateMatmulComputeL2
	StateMatmulWritebackL2
	StateMatmulAdvanceL2

	StateDone

	numStates
)

var stateNames = [numStates]string{
	StateIdle:              "Idle",
	StateConvPreload:       "ConvPreload",
	StateConvSwap:          "ConvSwap",
	StateConvLoad:          "ConvLoad",
	StateConvCompute:       "ConvCompute",
	StateConvWriteback:     "ConvWriteback",
	StateConvAdvance:       "ConvAdvance",
	StateMatmulPreloadL1:   "MatmulPreloadL1",
	StateMatmulSwapL1:      "MatmulSwapL1",
	StateMatmulLoadL1:      "MatmulLoadL1",
	StateMatmulComputeL1:   "MatmulComputeL1",
	StateMatmulWritebackL1: "MatmulWritebackL1",
	StateMatmulAdvanceL1:   "MatmulAdvanceL1",
	StateMatmulPreloadL2:   "MatmulPreloadL2",
	StateMatmulSwapL2:      "MatmulSwapL2",
	StateMatmulLoadL2:      "MatmulLoadL2",
	StateMatmulComputeL2:   "MatmulComputeL2",
	StateMatmulWritebackL2: "MatmulWritebackL2",
	StateMatmulAdvanceL2:   "MatmulAdvanceL2",
	StateDone:              "Done",
}

func (s State) String() string {
	if s < numStates {
		return stateNames[s]
	}

	return fmt.Sprintf("State(%d)", uint8(s))
}

// Valid tells if s is a defined state code.
func (s State) Valid() bool {
	return s < numStates
}

// Category groups states by the kind of work they perform.
type Category int

// State categories.
const (
	CategoryControl Category = iota
	CategoryPreload
	CategoryLoad
	CategorySwap
	CategoryCompute
	CategoryWriteback
	CategoryAdvance
)

func (c Category) String() string {
	switch c {
	case CategoryPreload:
		return "preload"
	case CategoryLoad:
		return "load"
	case CategorySwap:
		return "swap"
	case CategoryCompute:
		return "compute"
	case CategoryWriteback:
		return "writeback"
	case CategoryAdvance:
		return "advance"
	default:
		return "control"
	}
}

// Category returns the kind of work s performs.
func (s State) Category() Category {
	switch s {
	case StateConvPreload, StateMatmulPreloadL1, StateMatmulPreloadL2:
		return CategoryPreload
	case StateConvLoad, StateMatmulLoadL1, StateMatmulLoadL2:
		return CategoryLoad
	case StateConvSwap, StateMatmulSwapL1, StateMatmulSwapL2:
		return CategorySwap
	case StateConvCompute, StateMatmulComputeL1, StateMatmulComputeL2:
		return CategoryCompute
	case StateConvWriteback, StateMatmulWritebackL1, StateMatmulWritebackL2:
		return CategoryWriteback
	case StateConvAdvance, StateMatmulAdvanceL1, StateMatmulAdvanceL2:
		return CategoryAdvance
	default:
		return CategoryControl
	}
}

// Busy tells if s belongs to a running session.
func (s State) Busy() bool {
	return s != StateIdle && s != StateDone && s.Valid()
}
