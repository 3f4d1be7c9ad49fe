package tracing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/nnaccel/sim/timing"
)

var _ = Describe("BusyTimeTracer", func() {
	var (
		mockCtrl   *gomock.Controller
		timeTeller *MockTimeTeller
		t          *BusyTimeTracer
	)

	at := func(cycle timing.VTimeInCycle) {
		timeTeller.EXPECT().CurrentTime().Return(cycle)
	}

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		timeTeller = NewMockTimeTeller(mockCtrl)

		t = NewBusyTimeTracer(timeTeller, nil)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should track busy time, one task", func() {
		at(1)
		t.StartTask(Task{ID: "1"})
		at(3)
		t.EndTask(Task{ID: "1"})

		Expect(t.BusyTime()).To(Equal(timing.VTimeInCycle(2)))
	})

	It("should track busy time, two tasks", func() {
		at(1)
		t.StartTask(Task{ID: "1"})
		at(2)
		t.EndTask(Task{ID: "1"})
		at(3)
		t.StartTask(Task{ID: "2"})
		at(5)
		t.EndTask(Task{ID: "2"})

		Expect(t.BusyTime()).To(Equal(timing.VTimeInCycle(3)))
	})

	It("should count overlapping time once", func() {
		at(10)
		t.StartTask(Task{ID: "1"})
		at(12)
		t.StartTask(Task{ID: "2"})
		at(14)
		t.EndTask(Task{ID: "1"})
		at(20)
		t.EndTask(Task{ID: "2"})

		Expect(t.BusyTime()).To(Equal(timing.VTimeInCycle(10)))
	})

	It("should ignore filtered tasks", func() {
		t = NewBusyTimeTracer(timeTeller, WhatFilter("ConvCompute"))

		at(0)
		t.StartTask(Task{ID: "1", What: "ConvLoad"})
		at(168)
		t.EndTask(Task{ID: "1"})
		at(168)
		t.StartTask(Task{ID: "2", What: "ConvCompute"})
		at(170)
		t.EndTask(Task{ID: "2"})

		Expect(t.BusyTime()).To(Equal(timing.VTimeInCycle(2)))
	})

	It("should terminate unfinished tasks", func() {
		at(4)
		t.StartTask(Task{ID: "1"})

		t.TerminateAllTasks(10)

		Expect(t.BusyTime()).To(Equal(timing.VTimeInCycle(6)))
	})
})
