package sched

import (
	"errors"
	"fmt"
	"log"

	"github.com/sarchlab/nnaccel/accel/addressing"
)

// LoopCounters is the nested iteration state of a run. Only the controller's
// advance transitions change the loop indices; SubCycle and WBIdx restart at
// zero whenever their state is entered.
type LoopCounters struct {
	Kernel   int
	RowGroup int
	Chunk    int
	L1Col    int
	L2Col    int
	SubCycle int
	WBIdx    int
}

// LoadPhase is the counter shared by every load state. Each word takes two
// ticks: the address tick (phase 0) and the data tick (phase 1).
type LoadPhase int

// Word returns the index of the word being transferred.
func (p LoadPhase) Word() int {
	return int(p) >> 1
}

// Phase returns 0 on the address tick and 1 on the data tick.
func (p LoadPhase) Phase() int {
	return int(p) & 1
}

// IsAddress tells if the current tick drives address and enable.
func (p LoadPhase) IsAddress() bool {
	return p.Phase() == 0
}

// IsData tells if the current tick captures returned data.
func (p LoadPhase) IsData() bool {
	return p.Phase() == 1
}

// TicksFor returns how many ticks a load of n words takes.
func TicksFor(words int) int {
	return 2 * words
}

// Dims bounds the outer loops of each workload. The address layout is fixed;
// Dims only decides how much of it a run sweeps, so a smaller Dims runs a
// prefix of the full iteration order.
type Dims struct {
	ConvKernels   int
	ConvRowGroups int
	ConvChunks    int

	MatmulRowGroups int
	MatmulL1Cols    int
	MatmulL2Cols    int
}

// DefaultDims returns the full-size workload.
func DefaultDims() Dims {
	return Dims{
		ConvKernels:     addressing.ConvKernels,
		ConvRowGroups:   addressing.ConvRowGroups,
		ConvChunks:      addressing.ConvChunks,
		MatmulRowGroups: addressing.MatmulRowGroups,
		MatmulL1Cols:    addressing.MatmulL1Cols,
		MatmulL2Cols:    addressing.MatmulL2Cols,
	}
}

// ErrInvalidDims is returned when a dimension is outside the address layout.
var ErrInvalidDims = errors.New("invalid dimensions")

// Validate checks that every bound is positive and within the layout.
func (d Dims) Validate() error {
	checks := []struct {
		name  string
		value int
		limit int
	}{
		{"conv kernels", d.ConvKernels, addressing.ConvKernels},
		{"conv row groups", d.ConvRowGroups, addressing.ConvRowGroups},
		{"conv chunks", d.ConvChunks, addressing.ConvChunks},
		{"matmul row groups", d.MatmulRowGroups, addressing.MatmulRowGroups},
		{"matmul layer-1 columns", d.MatmulL1Cols, addressing.MatmulL1Cols},
		{"matmul layer-2 columns", d.MatmulL2Cols, addressing.MatmulL2Cols},
	}

	var errs []error
	for _, c := range checks {
		if c.value < 1 || c.value > c.limit {
			errs = append(errs, fmt.Errorf("%s=%d not in [1,%d]: %w",
				c.name, c.value, c.limit, ErrInvalidDims))
		}
	}

	return errors.Join(errs...)
}

// ConvIterations returns the number of inner convolution iterations.
func (d Dims) ConvIterations() int {
	return d.ConvKernels * d.ConvRowGroups * d.ConvChunks
}

// ResultWords returns how many words a run of mode m writes to the result
// store.
func (d Dims) ResultWords(m Mode) int {
	if m == ModeConvolution {
		return d.ConvIterations() * addressing.OutputWords
	}

	return d.MatmulRowGroups * d.MatmulL2Cols * addressing.OutputWords
}

// ColumnLoads returns how many weight-set loads a run of mode m performs.
func (d Dims) ColumnLoads(m Mode) int {
	if m == ModeConvolution {
		return d.ConvKernels
	}

	return d.MatmulRowGroups * (d.MatmulL1Cols + d.MatmulL2Cols)
}

func counterMustBeInRange(name string, v, modulus int) {
	if v < 0 || v >= modulus {
		log.Panicf("loop counter %s=%d overflowed its modulus %d",
			name, v, modulus)
	}
}
