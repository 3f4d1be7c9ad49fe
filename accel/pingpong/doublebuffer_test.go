package pingpong

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/nnaccel/sim/hooking"
)

var _ = Describe("DoubleBuffer", func() {
	var buf *DoubleBuffer

	BeforeEach(func() {
		buf = NewDoubleBuffer("WeightBuf", 4)
	})

	It("should start with bank A active", func() {
		Expect(buf.Active()).To(Equal(BankA))
		Expect(buf.Shadow()).To(Equal(BankB))
		Expect(buf.Size()).To(Equal(4))
	})

	It("should make a swap effective one tick after the request", func() {
		buf.WriteShadow(0, 42)
		buf.RequestSwap()

		Expect(buf.Active()).To(Equal(BankA))
		Expect(buf.SwapPending()).To(BeTrue())

		Expect(buf.Commit()).To(BeTrue())

		Expect(buf.Active()).To(Equal(BankB))
		Expect(buf.ReadActive(0)).To(Equal(uint32(42)))
		Expect(buf.NumSwaps()).To(Equal(uint64(1)))
	})

	It("should treat repeated requests in one tick as one swap", func() {
		buf.RequestSwap()
		buf.RequestSwap()
		buf.Commit()

		Expect(buf.Active()).To(Equal(BankB))
		Expect(buf.Commit()).To(BeFalse())
		Expect(buf.Active()).To(Equal(BankB))
	})

	It("should tolerate a swap without prefetch", func() {
		buf.Poke(BankA, 1, 7)
		buf.Poke(BankB, 1, 7)

		buf.RequestSwap()
		buf.Commit()

		Expect(buf.ReadActive(1)).To(Equal(uint32(7)))
	})

	It("should allow serving and prefetch on different banks", func() {
		buf.Poke(BankA, 2, 9)

		Expect(buf.ReadActive(2)).To(Equal(uint32(9)))
		buf.WriteShadow(2, 10)

		Expect(func() { buf.Commit() }).NotTo(Panic())
		Expect(buf.Peek(BankB, 2)).To(Equal(uint32(10)))
	})

	It("should panic when both streams hit one bank in a tick", func() {
		buf.ReadActive(0)
		buf.Write(BankA, 0, 1)

		Expect(func() { buf.Commit() }).To(Panic())
	})

	It("should count a view as a read", func() {
		buf.Poke(BankA, 3, 5)

		Expect(buf.View(BankA)[3]).To(Equal(uint32(5)))
		buf.WriteShadow(1, 2)
		Expect(func() { buf.Commit() }).NotTo(Panic())

		buf.View(BankA)
		buf.Write(BankA, 1, 1)
		Expect(func() { buf.Commit() }).To(Panic())
	})

	It("should notify hooks about swaps", func() {
		var became []Bank
		buf.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
			Expect(ctx.Pos).To(BeIdenticalTo(HookPosSwap))
			became = append(became, ctx.Item.(Bank))
		}))

		buf.RequestSwap()
		buf.Commit()
		buf.RequestSwap()
		buf.Commit()

		Expect(became).To(Equal([]Bank{BankB, BankA}))
	})

	It("should go back to bank A on reset", func() {
		buf.RequestSwap()
		buf.Commit()
		buf.RequestSwap()

		buf.Reset()

		Expect(buf.Active()).To(Equal(BankA))
		Expect(buf.SwapPending()).To(BeFalse())
	})
})

var _ = Describe("NextSet", func() {
	It("should return the following set", func() {
		next, ok := NextSet(3, 96)
		Expect(ok).To(BeTrue())
		Expect(next).To(Equal(4))
	})

	It("should report that the last set has no successor", func() {
		_, ok := NextSet(95, 96)
		Expect(ok).To(BeFalse())
	})
})
