// Package compute defines the compute-array port of the accelerator and a
// functional model of the array.
package compute

import (
	"log"

	"github.com/sarchlab/nnaccel/accel/addressing"
	"github.com/sarchlab/nnaccel/accel/sched"
)

// Operands are the staged inputs visible to the array during one
// invocation. Slices are views; the array must not retain them.
type Operands struct {
	// Weights is the weight staging register file.
	Weights []uint32

	// ConvActs holds the convolution activation staging registers, indexed
	// by processing element then window.
	ConvActs *[addressing.ConvPEs][addressing.ConvWindows]uint32

	// Acts is the active activation bank, used by the matmul stages.
	Acts []uint32
}

// Array is the compute array. Compute is called once per valid compute tick;
// Result is sampled by the output accumulator on the capture tick.
type Array interface {
	Compute(ctrl sched.ComputeCtrl, in Operands)
	Result() [addressing.OutputWords]uint32
}

// OutputAccumulator holds the seven words of one compute invocation until
// they are written back.
type OutputAccumulator struct {
	words    [addressing.OutputWords]uint32
	captures uint64
}

// Capture replaces all seven words at once.
func (a *OutputAccumulator) Capture(words [addressing.OutputWords]uint32) {
	a.words = words
	a.captures++
}

// Word returns word i.
func (a *OutputAccumulator) Word(i int) uint32 {
	if i < 0 || i >= addressing.OutputWords {
		log.Panicf("accumulator index %d out of range", i)
	}

	return a.words[i]
}

// Words returns a copy of all words.
func (a *OutputAccumulator) Words() [addressing.OutputWords]uint32 {
	return a.words
}

// NumCaptures returns how many times the accumulator has been loaded.
func (a *OutputAccumulator) NumCaptures() uint64 {
	return a.captures
}

// Reset clears the accumulator.
func (a *OutputAccumulator) Reset() {
	*a = OutputAccumulator{}
}
