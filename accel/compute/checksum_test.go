package compute

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/nnaccel/accel/addressing"
	"github.com/sarchlab/nnaccel/accel/sched"
)

func invoke(a Array, op sched.Op, stage sched.Stage, n int, in Operands) {
	for sub := 0; sub < n; sub++ {
		a.Compute(sched.ComputeCtrl{
			Valid:     true,
			Op:        op,
			Stage:     stage,
			SubCycle:  sub,
			SubCycles: n,
		}, in)
	}
}

var _ = Describe("ChecksumArray", func() {
	var a *ChecksumArray

	BeforeEach(func() {
		a = NewChecksumArray()
	})

	It("should compute a convolution over two sub-cycles", func() {
		var acts [addressing.ConvPEs][addressing.ConvWindows]uint32
		weights := make([]uint32, 96)
		for pe := range addressing.ConvPEs {
			weights[pe] = uint32(pe + 1)
			for j := range addressing.ConvWindows {
				acts[pe][j] = uint32(j)
			}
		}
		weights[addressing.ConvTaps] = 5

		invoke(a, sched.OpConv, sched.StageL1, 2,
			Operands{Weights: weights, ConvActs: &acts})

		// sum of 1..12 is 78
		for j, v := range a.Result() {
			Expect(v).To(Equal(uint32(5 + 78*j)))
		}
		Expect(a.NumInvocations()).To(Equal(uint64(1)))
		Expect(a.NumTicks()).To(Equal(uint64(2)))
	})

	It("should compute a layer-1 column", func() {
		weights := make([]uint32, 96)
		acts := make([]uint32, 2688)
		for k := range 24 {
			weights[k] = 2
		}
		for r := range 7 {
			for k := range 24 {
				acts[r*24+k] = uint32(r)
			}
		}

		invoke(a, sched.OpMatmul, sched.StageL1, 3,
			Operands{Weights: weights, Acts: acts})

		for r, v := range a.Result() {
			Expect(v).To(Equal(uint32(48 * r)))
		}
	})

	It("should unpack layer-2 weight bytes", func() {
		weights := make([]uint32, 96)
		acts := make([]uint32, 2688)
		weights[0] = 0x04030201
		for h := range 4 {
			acts[h*7+1] = 1
		}

		invoke(a, sched.OpMatmul, sched.StageL2, 9,
			Operands{Weights: weights, Acts: acts})

		res := a.Result()
		Expect(res[0]).To(BeZero())
		Expect(res[1]).To(Equal(uint32(1 + 2 + 3 + 4)))
	})

	It("should restart the reduction on sub-cycle zero", func() {
		weights := make([]uint32, 96)
		acts := make([]uint32, 2688)
		weights[0] = 1
		acts[0] = 9

		in := Operands{Weights: weights, Acts: acts}
		invoke(a, sched.OpMatmul, sched.StageL1, 3, in)
		invoke(a, sched.OpMatmul, sched.StageL1, 3, in)

		Expect(a.Result()[0]).To(Equal(uint32(9)))
		Expect(a.NumInvocations()).To(Equal(uint64(2)))
	})

	It("should ignore invalid ticks", func() {
		a.Compute(sched.ComputeCtrl{}, Operands{})

		Expect(a.NumTicks()).To(BeZero())
	})
})

var _ = Describe("OutputAccumulator", func() {
	It("should capture all words at once", func() {
		acc := &OutputAccumulator{}
		acc.Capture([7]uint32{1, 2, 3, 4, 5, 6, 7})

		Expect(acc.Word(6)).To(Equal(uint32(7)))
		Expect(acc.NumCaptures()).To(Equal(uint64(1)))
		Expect(func() { acc.Word(7) }).To(Panic())

		acc.Reset()
		Expect(acc.Words()).To(Equal([7]uint32{}))
	})
})

var _ = Describe("PostProcessor", func() {
	It("should pass words through", func() {
		Expect(Passthrough{}.Process(sched.OpConv, sched.StageL1, 9)).
			To(Equal(uint32(9)))
	})

	It("should requantize hidden words only", func() {
		q := Requantize{Shift: 4, Max: 255}

		Expect(q.Process(sched.OpMatmul, sched.StageL1, 0x100)).
			To(Equal(uint32(0x10)))
		Expect(q.Process(sched.OpMatmul, sched.StageL1, 0xfffff)).
			To(Equal(uint32(255)))
		Expect(q.Process(sched.OpMatmul, sched.StageL2, 0x100)).
			To(Equal(uint32(0x100)))
	})
})
