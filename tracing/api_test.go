package tracing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/nnaccel/sim/hooking"
	"github.com/sarchlab/nnaccel/sim/naming"
)

type testDomain struct {
	naming.NamedBase
	*hooking.HookableBase
}

func newTestDomain() *testDomain {
	return &testDomain{
		NamedBase:    naming.MakeNamedBase("Accel"),
		HookableBase: hooking.NewHookableBase(),
	}
}

var _ = Describe("API", func() {
	var (
		mockCtrl *gomock.Controller
		tracer   *MockTracer
		domain   *testDomain
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		tracer = NewMockTracer(mockCtrl)
		domain = newTestDomain()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should not call anything without hooks", func() {
		StartTask("1", "", domain, KindPhase, "ConvLoad", nil)
		AddTaskStep("1", domain, "word")
		EndTask("1", domain)
	})

	It("should forward tasks to the tracer", func() {
		CollectTrace(domain, tracer)

		tracer.EXPECT().StartTask(Task{
			ID:       "2",
			ParentID: "1",
			Kind:     KindPhase,
			What:     "ConvLoad",
			Where:    "Accel",
		})
		tracer.EXPECT().StepTask(Task{
			ID:    "2",
			Steps: []TaskStep{{What: "word"}},
		})
		tracer.EXPECT().EndTask(Task{ID: "2"})

		StartTask("2", "1", domain, KindPhase, "ConvLoad", nil)
		AddTaskStep("2", domain, "word")
		EndTask("2", domain)
	})

	It("should panic on incomplete tasks", func() {
		CollectTrace(domain, tracer)

		Expect(func() {
			StartTask("", "", domain, KindPhase, "ConvLoad", nil)
		}).To(Panic())
		Expect(func() {
			StartTask("3", "", domain, "", "ConvLoad", nil)
		}).To(Panic())
	})

	It("should not collect twice with the same tracer", func() {
		CollectTrace(domain, tracer)

		Expect(func() { CollectTrace(domain, tracer) }).To(Panic())
	})

	It("should filter by kind and what", func() {
		Expect(KindFilter(KindPhase)(Task{Kind: KindPhase})).To(BeTrue())
		Expect(KindFilter(KindPhase)(Task{Kind: KindSession})).To(BeFalse())

		f := WhatFilter("ConvCompute", "MatmulComputeL1")
		Expect(f(Task{What: "MatmulComputeL1"})).To(BeTrue())
		Expect(f(Task{What: "ConvLoad"})).To(BeFalse())
	})
})
