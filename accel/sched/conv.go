package sched

import (
	"log"

	"github.com/sarchlab/nnaccel/accel/addressing"
	"github.com/sarchlab/nnaccel/accel/pingpong"
)

const convComputeTicks = 2

// convShape walks kernel > row group > chunk. Each kernel's weights are
// fetched once into the shadow bank and promoted by a swap; each (row group,
// chunk) tile streams 84 feature words straight into the staging registers.
type convShape struct {
	dims Dims
}

func (s *convShape) Mode() Mode {
	return ModeConvolution
}

func (s *convShape) Entry() State {
	return StateConvPreload
}

func (s *convShape) Owns(st State) bool {
	return st >= StateConvPreload && st <= StateConvAdvance
}

func (s *convShape) Length(st State) int {
	switch st {
	case StateConvPreload:
		return TicksFor(addressing.ConvWeightWords)
	case StateConvLoad:
		return TicksFor(addressing.ConvFeatureWords)
	case StateConvCompute:
		return convComputeTicks
	case StateConvWriteback:
		return addressing.OutputWords
	case StateConvSwap, StateConvAdvance:
		return 1
	default:
		log.Panicf("state %s is not a convolution state", st)
		return 0
	}
}

func (s *convShape) ComputeParams(State) ComputeCtrl {
	return ComputeCtrl{
		Op:        OpConv,
		Stage:     StageL1,
		SubCycles: convComputeTicks,
	}
}

func (s *convShape) Drive(st State, c *LoopCounters, tick int, sig *Signals) {
	switch st {
	case StateConvPreload:
		phase := LoadPhase(tick)
		drivePreload(phase,
			addressing.ConvWeight(c.Kernel, phase.Word()), sig)
	case StateConvSwap:
		sig.WeightSwap = true
	case StateConvLoad:
		s.driveLoad(c, LoadPhase(tick), sig)
	case StateConvCompute:
		driveCompute(s, st, tick, sig)
	case StateConvWriteback:
		sig.ReadIdx = tick
		sig.ResultWrite = MemReq{
			Enable: true,
			Addr: addressing.ConvResult(
				c.Kernel, c.RowGroup, c.Chunk, tick),
		}
	}
}

// firstTile tells if the tile being loaded is the first one of the kernel,
// the only tile that refreshes the weight staging registers.
func (s *convShape) firstTile(c *LoopCounters) bool {
	return c.RowGroup == 0 && c.Chunk == 0
}

func (s *convShape) driveLoad(c *LoopCounters, phase LoadPhase, sig *Signals) {
	w := phase.Word()

	if phase.IsAddress() {
		sig.FeatureFetch = MemReq{
			Enable: true,
			Addr:   addressing.ConvFeature(c.RowGroup, c.Chunk, w),
		}
	} else {
		pe, window := addressing.ConvSlot(w)
		sig.ActStage = ActSlot{Enable: true, PE: pe, Window: window}
	}

	if !s.firstTile(c) || w >= addressing.ConvWeightWords {
		return
	}

	next, hasNext := pingpong.NextSet(c.Kernel, s.dims.ConvKernels)
	driveWeightStreams(phase, addressing.ConvWeight(next, w), hasNext, sig)
}

func (s *convShape) Advance(st State, c *LoopCounters) State {
	switch st {
	case StateConvPreload:
		return StateConvSwap
	case StateConvSwap:
		return StateConvLoad
	case StateConvLoad:
		return StateConvCompute
	case StateConvCompute:
		return StateConvWriteback
	case StateConvWriteback:
		return StateConvAdvance
	case StateConvAdvance:
		return s.advanceLoops(c)
	default:
		return StateIdle
	}
}

func (s *convShape) advanceLoops(c *LoopCounters) State {
	d := s.dims

	if c.Chunk+1 < d.ConvChunks {
		c.Chunk++
		return StateConvLoad
	}

	c.Chunk = 0

	if c.RowGroup+1 < d.ConvRowGroups {
		c.RowGroup++
		return StateConvLoad
	}

	if c.Kernel+1 < d.ConvKernels {
		c.RowGroup = 0
		c.Kernel++
		counterMustBeInRange("kernel", c.Kernel, d.ConvKernels)

		return StateConvSwap
	}

	// Final advance: the row group holds its last value instead of
	// wrapping.
	return StateDone
}
