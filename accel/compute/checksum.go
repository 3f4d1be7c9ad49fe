package compute

import (
	"log"

	"github.com/sarchlab/nnaccel/accel/addressing"
	"github.com/sarchlab/nnaccel/accel/sched"
)

// ChecksumArray is a deterministic functional model of the compute array.
// It performs the real multiply-accumulate reductions in wrapping uint32
// arithmetic and splits each reduction evenly across the sub-cycles of the
// invocation, so results are only correct when every operand was routed to
// the right place at the right time.
//
//   - conv: out[j] = w[12] + sum over pe of w[pe] * act[pe][j]
//   - matmul L1: out[r] = sum over k of acts[r*24+k] * w[k]
//   - matmul L2: out[r] = sum over h of acts[h*7+r] * byte h%4 of w[h/4]
type ChecksumArray struct {
	partial     [addressing.OutputWords]uint32
	invocations uint64
	ticks       uint64
}

// NewChecksumArray creates an idle array.
func NewChecksumArray() *ChecksumArray {
	return &ChecksumArray{}
}

// Compute runs one sub-cycle of the reduction selected by ctrl.
func (a *ChecksumArray) Compute(ctrl sched.ComputeCtrl, in Operands) {
	if !ctrl.Valid {
		return
	}

	if ctrl.SubCycle == 0 {
		a.partial = [addressing.OutputWords]uint32{}
		a.invocations++
	}

	a.ticks++

	switch {
	case ctrl.Op == sched.OpConv:
		a.conv(ctrl, in)
	case ctrl.Op == sched.OpMatmul && ctrl.Stage == sched.StageL1:
		a.matmulL1(ctrl, in)
	case ctrl.Op == sched.OpMatmul && ctrl.Stage == sched.StageL2:
		a.matmulL2(ctrl, in)
	default:
		log.Panicf("unsupported compute operation %s", ctrl.Op)
	}
}

// Result returns the reduction computed so far.
func (a *ChecksumArray) Result() [addressing.OutputWords]uint32 {
	return a.partial
}

// NumInvocations returns how many invocations have started.
func (a *ChecksumArray) NumInvocations() uint64 {
	return a.invocations
}

// NumTicks returns how many valid compute ticks the array has seen.
func (a *ChecksumArray) NumTicks() uint64 {
	return a.ticks
}

// share returns the part of [0, n) reduced on the given sub-cycle.
func share(ctrl sched.ComputeCtrl, n int) (lo, hi int) {
	per := (n + ctrl.SubCycles - 1) / ctrl.SubCycles
	lo = min(ctrl.SubCycle*per, n)
	hi = min(lo+per, n)

	return lo, hi
}

func (a *ChecksumArray) conv(ctrl sched.ComputeCtrl, in Operands) {
	lo, hi := share(ctrl, addressing.ConvPEs)

	for j := range addressing.ConvWindows {
		if ctrl.SubCycle == 0 {
			a.partial[j] = in.Weights[addressing.ConvTaps]
		}

		for pe := lo; pe < hi; pe++ {
			a.partial[j] += in.Weights[pe] * in.ConvActs[pe][j]
		}
	}
}

func (a *ChecksumArray) matmulL1(ctrl sched.ComputeCtrl, in Operands) {
	const k = addressing.MatmulFeatureWidth

	lo, hi := share(ctrl, k)

	for r := range addressing.MatmulRowsPerGroup {
		for i := lo; i < hi; i++ {
			a.partial[r] += in.Acts[r*k+i] * in.Weights[i]
		}
	}
}

func (a *ChecksumArray) matmulL2(ctrl sched.ComputeCtrl, in Operands) {
	lo, hi := share(ctrl, addressing.MatmulL1Cols)

	for r := range addressing.MatmulRowsPerGroup {
		for h := lo; h < hi; h++ {
			w := in.Weights[h/4] >> (8 * (h % 4)) & 0xff
			a.partial[r] += in.Acts[h*addressing.OutputWords+r] * w
		}
	}
}
