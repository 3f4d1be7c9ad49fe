package accel

import (
	"io"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/nnaccel/accel/addressing"
	"github.com/sarchlab/nnaccel/accel/compute"
	"github.com/sarchlab/nnaccel/accel/memory"
	"github.com/sarchlab/nnaccel/accel/sched"
	"github.com/sarchlab/nnaccel/sim/hooking"
	"github.com/sarchlab/nnaccel/sim/timing"
	"github.com/sarchlab/nnaccel/tracing"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var _ = Describe("Accelerator", func() {
	var (
		mockCtrl *gomock.Controller
		engine   *MockEngine
		now      timing.VTimeInCycle
		builder  Builder
		a        *Accelerator

		weights  []uint32
		features []uint32
	)

	run := func() int {
		ticks := 0
		for {
			ticks++
			progress := a.Tick()
			now++

			if !progress {
				return ticks
			}
		}
	}

	load := func() {
		Expect(a.LoadWeights(0, weights)).To(Succeed())
		Expect(a.LoadFeatures(0, features)).To(Succeed())
	}

	results := func() []uint32 {
		res, err := a.ReadResults(0, addressing.ResultSpace)
		Expect(err).NotTo(HaveOccurred())

		return res
	}

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		engine = NewMockEngine(mockCtrl)
		now = 0

		engine.EXPECT().
			CurrentTime().
			DoAndReturn(func() timing.VTimeInCycle { return now }).
			AnyTimes()
		engine.EXPECT().Schedule(gomock.Any()).AnyTimes()

		builder = MakeBuilder().
			WithEngine(engine).
			WithLogger(quietLogger)

		weights = randomWords(1, WeightStoreWords)
		features = randomWords(2, FeatureStoreWords)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	Context("convolution", func() {
		dims := sched.Dims{
			ConvKernels: 3, ConvRowGroups: 2, ConvChunks: 3,
			MatmulRowGroups: 1, MatmulL1Cols: 1, MatmulL2Cols: 1,
		}

		BeforeEach(func() {
			a = builder.WithDims(dims).Build("Accel")
			load()
		})

		It("should produce the reference results", func() {
			Expect(a.Start(sched.ModeConvolution)).To(Succeed())

			ticks := run()

			Expect(ticks).To(Equal(1 + 26 + 3 + 18*178 + 1))
			Expect(results()).To(Equal(convReference(weights, features, dims)))

			s, ok := a.Session()
			Expect(ok).To(BeTrue())
			Expect(s.Done).To(BeTrue())
			Expect(s.Running).To(BeFalse())
			Expect(s.Mode).To(Equal(sched.ModeConvolution))
			Expect(s.ResultWords).To(Equal(uint64(18 * 7)))
			Expect(s.Progress()).To(Equal(1.0))
			Expect(s.ColumnLoads).To(Equal(uint64(3)))
			Expect(s.ComputeTicks).To(Equal(uint64(18 * 2)))
			Expect(s.Cycles(now)).To(Equal(timing.VTimeInCycle(ticks - 1)))
			Expect(a.WeightBuffer().NumSwaps()).To(Equal(uint64(3)))
		})

		It("should run again after done", func() {
			Expect(a.Start(sched.ModeConvolution)).To(Succeed())
			run()

			Expect(a.Start(sched.ModeConvolution)).To(Succeed())
			run()

			Expect(results()).To(Equal(convReference(weights, features, dims)))
			Expect(a.Sessions()).To(HaveLen(2))
		})

		It("should refuse start and host access while busy", func() {
			Expect(a.Start(sched.ModeConvolution)).To(Succeed())
			a.Tick()

			Expect(a.Start(sched.ModeDenseMatmul)).To(MatchError(ErrBusy))
			Expect(a.LoadWeights(0, []uint32{1})).To(MatchError(ErrBusy))
			_, err := a.ReadResults(0, 1)
			Expect(err).To(MatchError(ErrBusy))
			Expect(a.SetFeedback(true)).To(MatchError(ErrBusy))
		})

		It("should reject unknown modes", func() {
			Expect(a.Start(sched.Mode(9))).To(MatchError(sched.ErrUnknownMode))
		})

		It("should reject host accesses beyond the stores", func() {
			err := a.LoadFeatures(FeatureStoreWords, []uint32{1})

			Expect(err).To(MatchError(memory.ErrOutOfCapacity))
		})

		It("should abort the session on reset", func() {
			Expect(a.Start(sched.ModeConvolution)).To(Succeed())
			for i := 0; i < 500; i++ {
				a.Tick()
				now++
			}

			a.Reset()
			Expect(a.Tick()).To(BeFalse())

			s, _ := a.Session()
			Expect(s.Aborted).To(BeTrue())
			Expect(s.Running).To(BeFalse())
			Expect(a.Controller().State()).To(Equal(sched.StateIdle))
			Expect(a.WeightBuffer().Active()).To(Equal(a.ActBuffer().Active()))

			Expect(a.Start(sched.ModeConvolution)).To(Succeed())
			run()
			Expect(results()).To(Equal(convReference(weights, features, dims)))
		})

		It("should notify session hooks", func() {
			var starts, ends int

			a.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
				switch ctx.Pos {
				case HookPosSessionStart:
					starts++
				case HookPosSessionEnd:
					ends++
					Expect(ctx.Item.(*Session).Done).To(BeTrue())
				}
			}))

			Expect(a.Start(sched.ModeConvolution)).To(Succeed())
			run()

			Expect(starts).To(Equal(1))
			Expect(ends).To(Equal(1))
		})

		It("should trace sessions and phases", func() {
			var (
				started []tracing.Task
				ended   = map[string]timing.VTimeInCycle{}
				begun   = map[string]timing.VTimeInCycle{}
			)

			a.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
				task, ok := ctx.Item.(tracing.Task)
				if !ok {
					return
				}

				switch ctx.Pos {
				case tracing.HookPosTaskStart:
					started = append(started, task)
					begun[task.ID] = now
				case tracing.HookPosTaskEnd:
					ended[task.ID] = now
				}
			}))

			Expect(a.Start(sched.ModeConvolution)).To(Succeed())
			ticks := run()

			session := started[0]
			Expect(session.Kind).To(Equal(tracing.KindSession))
			Expect(session.What).To(Equal("conv"))
			Expect(session.Where).To(Equal("Accel"))
			Expect(ended[session.ID] - begun[session.ID]).
				To(Equal(timing.VTimeInCycle(ticks - 1)))

			Expect(started[1].What).To(Equal("ConvPreload"))
			Expect(started[1].ParentID).To(Equal(session.ID))
			Expect(ended[started[1].ID] - begun[started[1].ID]).
				To(Equal(timing.VTimeInCycle(26)))
			Expect(started[2].What).To(Equal("ConvSwap"))
			Expect(started[3].What).To(Equal("ConvLoad"))

			Expect(ended).To(HaveLen(len(started)))
		})
	})

	Context("feedback", func() {
		It("should read features from the result store", func() {
			dims := sched.Dims{
				ConvKernels: 1, ConvRowGroups: 1, ConvChunks: 1,
				MatmulRowGroups: 1, MatmulL1Cols: 1, MatmulL2Cols: 1,
			}
			resultStorage := memory.NewStorage(ResultStoreWords)
			fed := randomWords(3, FeatureStoreWords)
			Expect(resultStorage.Write(0, fed)).To(Succeed())

			a = builder.
				WithDims(dims).
				WithResultStorage(resultStorage).
				Build("Accel")
			load()
			Expect(a.SetFeedback(true)).To(Succeed())

			Expect(a.Start(sched.ModeConvolution)).To(Succeed())
			run()

			expected := convReference(weights, fed, dims)
			for j := 0; j < addressing.OutputWords; j++ {
				addr := addressing.ConvResult(0, 0, 0, j)
				v, err := resultStorage.ReadWord(addr)
				Expect(err).NotTo(HaveOccurred())
				Expect(v).To(Equal(expected[addr]))
			}
		})
	})

	Context("dense matmul", func() {
		dims := sched.Dims{
			ConvKernels: 1, ConvRowGroups: 1, ConvChunks: 1,
			MatmulRowGroups: 3, MatmulL1Cols: 5, MatmulL2Cols: 4,
		}

		It("should produce the reference results", func() {
			a = builder.WithDims(dims).Build("Accel")
			load()

			Expect(a.Start(sched.ModeDenseMatmul)).To(Succeed())
			ticks := run()

			Expect(ticks).To(Equal(1 + 3*(528+60*5+210*4) + 1))
			Expect(results()).To(Equal(matmulReference(
				weights, features, dims, compute.Passthrough{})))

			s, _ := a.Session()
			Expect(s.HiddenWords).To(Equal(uint64(3 * 5 * 7)))
			Expect(s.ColumnLoads).To(Equal(uint64(3 * (5 + 4))))
			Expect(a.ActBuffer().NumSwaps()).To(Equal(uint64(3 * 2)))
		})

		It("should requantize the hidden layer", func() {
			post := compute.Requantize{Shift: 6, Max: 255}
			a = builder.
				WithDims(dims).
				WithPostProcessor(post).
				Build("Accel")
			load()

			Expect(a.Start(sched.ModeDenseMatmul)).To(Succeed())
			run()

			Expect(results()).To(Equal(
				matmulReference(weights, features, dims, post)))
		})
	})

	Context("with a mocked compute array", func() {
		var (
			array *MockArray
			post  *MockPostProcessor
		)

		BeforeEach(func() {
			array = NewMockArray(mockCtrl)
			post = NewMockPostProcessor(mockCtrl)

			a = builder.
				WithDims(sched.Dims{
					ConvKernels: 1, ConvRowGroups: 1, ConvChunks: 1,
					MatmulRowGroups: 1, MatmulL1Cols: 1, MatmulL2Cols: 1,
				}).
				WithArray(array).
				WithPostProcessor(post).
				Build("Accel")
			load()
		})

		It("should stage operands before computing", func() {
			var staged compute.Operands

			gomock.InOrder(
				array.EXPECT().
					Compute(sched.ComputeCtrl{
						Valid: true, Op: sched.OpConv, Stage: sched.StageL1,
						SubCycle: 0, SubCycles: 2,
					}, gomock.Any()).
					Do(func(_ sched.ComputeCtrl, in compute.Operands) {
						staged = in
						Expect(in.Acts).To(BeNil())
						for w := 0; w < addressing.ConvWeightWords; w++ {
							Expect(in.Weights[w]).To(
								Equal(weights[addressing.ConvWeight(0, w)]))
						}
						for word := 0; word < addressing.ConvFeatureWords; word++ {
							pe, win := addressing.ConvSlot(word)
							Expect(in.ConvActs[pe][win]).To(Equal(
								features[addressing.ConvFeature(0, 0, word)]))
						}
					}),
				array.EXPECT().
					Compute(gomock.Any(), gomock.Any()).
					Do(func(ctrl sched.ComputeCtrl, _ compute.Operands) {
						Expect(ctrl.SubCycle).To(Equal(1))
					}),
				array.EXPECT().
					Result().
					Return([7]uint32{1, 2, 3, 4, 5, 6, 7}),
			)

			post.EXPECT().
				Process(sched.OpConv, sched.StageL1, gomock.Any()).
				DoAndReturn(func(_ sched.Op, _ sched.Stage, v uint32) uint32 {
					return v + 100
				}).
				Times(7)

			Expect(a.Start(sched.ModeConvolution)).To(Succeed())
			run()

			Expect(staged.Weights).To(HaveLen(WeightStagingWords))
			for j := 0; j < 7; j++ {
				Expect(results()[addressing.ConvResult(0, 0, 0, j)]).
					To(Equal(uint32(j + 101)))
			}
			Expect(a.Accumulator().NumCaptures()).To(Equal(uint64(1)))
		})

		It("should hand the active activation bank to matmul stages", func() {
			var l1, l2 int

			array.EXPECT().
				Compute(gomock.Any(), gomock.Any()).
				Do(func(ctrl sched.ComputeCtrl, in compute.Operands) {
					Expect(in.Acts).To(HaveLen(ActStagingWords))

					if ctrl.Stage == sched.StageL1 {
						l1++
						for word := 0; word < addressing.MatmulFeatureWords; word++ {
							Expect(in.Acts[word]).To(Equal(
								features[addressing.MatmulFeature(0, word)]))
						}

						return
					}

					l2++
					for r := 0; r < 7; r++ {
						Expect(in.Acts[addressing.HiddenAddress(0, r)]).
							To(Equal(uint32(10 + r)))
					}
				}).
				AnyTimes()
			array.EXPECT().
				Result().
				Return([7]uint32{10, 11, 12, 13, 14, 15, 16}).
				Times(2)
			post.EXPECT().
				Process(gomock.Any(), gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ sched.Op, _ sched.Stage, v uint32) uint32 {
					return v
				}).
				Times(14)

			Expect(a.Start(sched.ModeDenseMatmul)).To(Succeed())
			run()

			Expect(l1).To(Equal(3))
			Expect(l2).To(Equal(9))
		})
	})

	Context("full size", Label("slow"), func() {
		BeforeEach(func() {
			a = builder.Build("Accel")
			load()
		})

		It("should produce the reference convolution", func() {
			Expect(a.Start(sched.ModeConvolution)).To(Succeed())
			run()

			Expect(results()).To(Equal(
				convReference(weights, features, sched.DefaultDims())))

			s, _ := a.Session()
			Expect(s.ResultWords).To(Equal(uint64(301056)))
		})

		It("should produce the reference matmul", func() {
			Expect(a.Start(sched.ModeDenseMatmul)).To(Succeed())
			run()

			Expect(results()).To(Equal(matmulReference(weights, features,
				sched.DefaultDims(), compute.Passthrough{})))

			s, _ := a.Session()
			Expect(s.ResultWords).To(Equal(uint64(301056)))
			Expect(s.ColumnLoads).To(Equal(uint64(448 * 480)))
		})
	})
})
