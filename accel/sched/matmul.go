package sched

import (
	"log"

	"github.com/sarchlab/nnaccel/accel/addressing"
	"github.com/sarchlab/nnaccel/accel/pingpong"
)

const (
	matmulL1ComputeTicks = 3
	matmulL2ComputeTicks = 9
)

// matmulShape walks row group > (layer-1 columns, then layer-2 columns).
// Every row group starts with a preload that brings in the feature tile and
// the first layer-1 column; the layer boundary needs a second preload
// because the layer-2 columns have a different size and region.
type matmulShape struct {
	dims Dims
}

func (s *matmulShape) Mode() Mode {
	return ModeDenseMatmul
}

func (s *matmulShape) Entry() State {
	return StateMatmulPreloadL1
}

func (s *matmulShape) Owns(st State) bool {
	return st >= StateMatmulPreloadL1 && st <= StateMatmulAdvanceL2
}

func (s *matmulShape) Length(st State) int {
	switch st {
	case StateMatmulPreloadL1:
		return TicksFor(addressing.MatmulFeatureWords)
	case StateMatmulLoadL1:
		return TicksFor(addressing.MatmulL1WeightWords)
	case StateMatmulPreloadL2, StateMatmulLoadL2:
		return TicksFor(addressing.MatmulL2WeightWords)
	case StateMatmulComputeL1:
		return matmulL1ComputeTicks
	case StateMatmulComputeL2:
		return matmulL2ComputeTicks
	case StateMatmulWritebackL1, StateMatmulWritebackL2:
		return addressing.OutputWords
	case StateMatmulSwapL1, StateMatmulSwapL2,
		StateMatmulAdvanceL1, StateMatmulAdvanceL2:
		return 1
	default:
		log.Panicf("state %s is not a matmul state", st)
		return 0
	}
}

func (s *matmulShape) ComputeParams(st State) ComputeCtrl {
	if st == StateMatmulComputeL2 {
		return ComputeCtrl{
			Op:        OpMatmul,
			Stage:     StageL2,
			SubCycles: matmulL2ComputeTicks,
		}
	}

	return ComputeCtrl{
		Op:        OpMatmul,
		Stage:     StageL1,
		SubCycles: matmulL1ComputeTicks,
	}
}

func (s *matmulShape) Drive(st State, c *LoopCounters, tick int, sig *Signals) {
	switch st {
	case StateMatmulPreloadL1:
		s.drivePreloadL1(c, LoadPhase(tick), sig)
	case StateMatmulSwapL1:
		sig.WeightSwap = true
		sig.ActSwap = c.L1Col == 0
	case StateMatmulLoadL1:
		phase := LoadPhase(tick)
		next, hasNext := pingpong.NextSet(c.L1Col, s.dims.MatmulL1Cols)
		driveWeightStreams(phase,
			addressing.MatmulL1Weight(next, phase.Word()), hasNext, sig)
	case StateMatmulComputeL1, StateMatmulComputeL2:
		driveCompute(s, st, tick, sig)
	case StateMatmulWritebackL1:
		sig.ReadIdx = tick
		sig.HiddenWrite = Strobe{
			Enable: true,
			Addr:   addressing.HiddenAddress(c.L1Col, tick),
		}
	case StateMatmulPreloadL2:
		phase := LoadPhase(tick)
		drivePreload(phase,
			addressing.MatmulL2Weight(c.L2Col, phase.Word()), sig)
	case StateMatmulSwapL2:
		sig.WeightSwap = true
		sig.ActSwap = c.L2Col == 0
	case StateMatmulLoadL2:
		phase := LoadPhase(tick)
		next, hasNext := pingpong.NextSet(c.L2Col, s.dims.MatmulL2Cols)
		driveWeightStreams(phase,
			addressing.MatmulL2Weight(next, phase.Word()), hasNext, sig)
	case StateMatmulWritebackL2:
		sig.ReadIdx = tick
		sig.ResultWrite = MemReq{
			Enable: true,
			Addr:   addressing.MatmulResult(c.L2Col, c.RowGroup, tick),
		}
	}
}

// drivePreloadL1 streams the row-group feature tile into the activation
// shadow bank and, over the first 24 words, the first layer-1 column into
// the weight shadow bank.
func (s *matmulShape) drivePreloadL1(
	c *LoopCounters,
	phase LoadPhase,
	sig *Signals,
) {
	w := phase.Word()

	if phase.IsAddress() {
		sig.FeatureFetch = MemReq{
			Enable: true,
			Addr:   addressing.MatmulFeature(c.RowGroup, w),
		}
	} else {
		sig.ActShadowWrite = Strobe{Enable: true, Addr: w}
	}

	if w < addressing.MatmulL1WeightWords {
		drivePreload(phase, addressing.MatmulL1Weight(c.L1Col, w), sig)
	}
}

func (s *matmulShape) Advance(st State, c *LoopCounters) State {
	switch st {
	case StateMatmulPreloadL1:
		return StateMatmulSwapL1
	case StateMatmulSwapL1:
		return StateMatmulLoadL1
	case StateMatmulLoadL1:
		return StateMatmulComputeL1
	case StateMatmulComputeL1:
		return StateMatmulWritebackL1
	case StateMatmulWritebackL1:
		return StateMatmulAdvanceL1
	case StateMatmulAdvanceL1:
		return s.advanceL1(c)
	case StateMatmulPreloadL2:
		return StateMatmulSwapL2
	case StateMatmulSwapL2:
		return StateMatmulLoadL2
	case StateMatmulLoadL2:
		return StateMatmulComputeL2
	case StateMatmulComputeL2:
		return StateMatmulWritebackL2
	case StateMatmulWritebackL2:
		return StateMatmulAdvanceL2
	case StateMatmulAdvanceL2:
		return s.advanceL2(c)
	default:
		return StateIdle
	}
}

func (s *matmulShape) advanceL1(c *LoopCounters) State {
	if c.L1Col+1 < s.dims.MatmulL1Cols {
		c.L1Col++
		return StateMatmulSwapL1
	}

	c.L1Col = 0

	return StateMatmulPreloadL2
}

func (s *matmulShape) advanceL2(c *LoopCounters) State {
	if c.L2Col+1 < s.dims.MatmulL2Cols {
		c.L2Col++
		return StateMatmulSwapL2
	}

	c.L2Col = 0

	if c.RowGroup+1 < s.dims.MatmulRowGroups {
		c.RowGroup++
		counterMustBeInRange("row group", c.RowGroup, s.dims.MatmulRowGroups)

		return StateMatmulPreloadL1
	}

	// Final advance: the row group holds its last value instead of
	// wrapping.
	return StateDone
}
