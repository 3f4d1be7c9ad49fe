package memory

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("SRAM", func() {
	var (
		storage *Storage
		sram    *SRAM
	)

	BeforeEach(func() {
		storage = NewStorage(16)
		Expect(storage.WriteWord(3, 33)).To(Succeed())
		sram = NewSRAM("FeatureStore", storage)
	})

	It("should return data one tick after the request", func() {
		sram.Read(3)
		Expect(sram.DataValid()).To(BeFalse())

		sram.Commit()

		Expect(sram.DataValid()).To(BeTrue())
		Expect(sram.Data()).To(Equal(uint32(33)))
		Expect(sram.NumReads()).To(Equal(uint64(1)))

		sram.Commit()
		Expect(sram.DataValid()).To(BeFalse())
		Expect(func() { sram.Data() }).To(Panic())
	})

	It("should return the old word on a same-tick read and write", func() {
		sram.Read(3)
		sram.Write(3, 44)
		sram.Commit()

		Expect(sram.Data()).To(Equal(uint32(33)))

		v, _ := storage.ReadWord(3)
		Expect(v).To(Equal(uint32(44)))
		Expect(sram.NumWrites()).To(Equal(uint64(1)))
	})

	It("should not expose writes before commit", func() {
		sram.Write(5, 7)

		v, _ := storage.ReadWord(5)
		Expect(v).To(Equal(uint32(0)))
	})

	It("should panic on two reads in one tick", func() {
		sram.Read(1)
		Expect(func() { sram.Read(2) }).To(Panic())
	})

	It("should panic on out-of-range addresses", func() {
		Expect(func() { sram.Read(16) }).To(Panic())
		Expect(func() { sram.Write(-1, 0) }).To(Panic())
	})
})

var _ = Describe("FeatureMux", func() {
	var (
		primary, feedback *SRAM
		mux               *FeatureMux
	)

	BeforeEach(func() {
		ps := NewStorage(8)
		fs := NewStorage(8)
		Expect(ps.WriteWord(2, 100)).To(Succeed())
		Expect(fs.WriteWord(2, 200)).To(Succeed())

		primary = NewSRAM("FeatureStore", ps)
		feedback = NewSRAM("ResultStore", fs)
		mux = NewFeatureMux("FeatureMux", primary, feedback)
	})

	commit := func() {
		primary.Commit()
		feedback.Commit()
		mux.Commit()
	}

	It("should read the primary store by default", func() {
		mux.Read(2)
		commit()

		Expect(mux.Data()).To(Equal(uint32(100)))
	})

	It("should read the feedback tap when selected", func() {
		mux.SetFeedback(true)
		mux.Read(2)
		commit()

		Expect(mux.Feedback()).To(BeTrue())
		Expect(mux.Data()).To(Equal(uint32(200)))
	})

	It("should steer data with the selection of the request tick", func() {
		mux.Read(2)
		commit()

		mux.SetFeedback(true)

		Expect(mux.Data()).To(Equal(uint32(100)))
	})
})
