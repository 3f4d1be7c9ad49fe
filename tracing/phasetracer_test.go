package tracing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/nnaccel/sim/timing"
)

var _ = Describe("PhaseStatsTracer", func() {
	var (
		mockCtrl   *gomock.Controller
		timeTeller *MockTimeTeller
		t          *PhaseStatsTracer
	)

	at := func(cycle timing.VTimeInCycle) {
		timeTeller.EXPECT().CurrentTime().Return(cycle)
	}

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		timeTeller = NewMockTimeTeller(mockCtrl)
		t = NewPhaseStatsTracer(timeTeller, KindFilter(KindPhase))
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should group phases by what", func() {
		at(0)
		t.StartTask(Task{ID: "a", Kind: KindPhase, What: "ConvLoad"})
		at(168)
		t.EndTask(Task{ID: "a"})
		at(168)
		t.StartTask(Task{ID: "b", Kind: KindPhase, What: "ConvCompute"})
		at(170)
		t.EndTask(Task{ID: "b"})
		at(170)
		t.StartTask(Task{ID: "c", Kind: KindPhase, What: "ConvLoad"})
		at(338)
		t.EndTask(Task{ID: "c"})

		Expect(t.Stats()).To(Equal([]PhaseStat{
			{What: "ConvLoad", Count: 2, Cycles: 336},
			{What: "ConvCompute", Count: 1, Cycles: 2},
		}))
		Expect(t.Stat("ConvSwap")).To(Equal(PhaseStat{What: "ConvSwap"}))
	})

	It("should skip filtered and unknown tasks", func() {
		t.StartTask(Task{ID: "s", Kind: KindSession, What: "conv"})

		at(5)
		t.EndTask(Task{ID: "s"})

		Expect(t.Stats()).To(BeEmpty())
	})
})
