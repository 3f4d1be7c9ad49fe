package monitoring

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/nnaccel/accel"
	"github.com/sarchlab/nnaccel/accel/sched"
	"github.com/sarchlab/nnaccel/sim/hooking"
	"github.com/sarchlab/nnaccel/sim/timing"
)

var _ = Describe("Monitor", func() {
	var (
		engine  *timing.SerialEngine
		a       *accel.Accelerator
		m       *Monitor
		handler http.Handler
	)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

		return rec
	}

	BeforeEach(func() {
		engine = timing.NewSerialEngine()
		a = accel.MakeBuilder().
			WithEngine(engine).
			WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
			WithDims(sched.Dims{
				ConvKernels: 1, ConvRowGroups: 1, ConvChunks: 1,
				MatmulRowGroups: 1, MatmulL1Cols: 1, MatmulL2Cols: 1,
			}).
			Build("Accel")

		m = NewMonitor()
		m.RegisterEngine(engine)
		m.RegisterAccelerator(a)
		handler = m.Handler()
	})

	It("should list the accelerators", func() {
		rec := get("/api/list_components")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(MatchJSON(`["Accel"]`))
	})

	It("should report the current cycle", func() {
		Expect(get("/api/now").Body.String()).To(MatchJSON(`{"now":0}`))
	})

	It("should pause and continue the engine", func() {
		Expect(get("/api/pause").Code).To(Equal(http.StatusOK))
		Expect(get("/api/continue").Code).To(Equal(http.StatusOK))

		Expect(engine.Run()).To(Succeed())
	})

	It("should return 404 for unknown accelerators", func() {
		rec := get("/api/state/Nope")

		Expect(rec.Code).To(Equal(http.StatusNotFound))
	})

	It("should report the controller state", func() {
		var rsp stateRsp
		Expect(json.Unmarshal(get("/api/state/Accel").Body.Bytes(), &rsp)).
			To(Succeed())

		Expect(rsp.State).To(Equal(sched.StateIdle.String()))
		Expect(rsp.Busy).To(BeFalse())
		Expect(rsp.Mode).To(BeEmpty())
	})

	It("should list finished sessions", func() {
		Expect(a.Start(sched.ModeConvolution)).To(Succeed())
		Expect(engine.Run()).To(Succeed())

		var rsp []sessionRsp
		Expect(json.Unmarshal(get("/api/sessions/Accel").Body.Bytes(), &rsp)).
			To(Succeed())

		Expect(rsp).To(HaveLen(1))
		Expect(rsp[0].Mode).To(Equal(sched.ModeConvolution.String()))
		Expect(rsp[0].Done).To(BeTrue())
		Expect(rsp[0].Progress).To(BeNumerically("==", 1))
	})

	It("should remove the session bar when the session ends", func() {
		Expect(a.Start(sched.ModeConvolution)).To(Succeed())
		Expect(engine.Run()).To(Succeed())

		Expect(m.ProgressBars()).To(BeEmpty())
	})

	It("should follow the result words of a running session", func() {
		hook := &sessionProgressHook{m: m}
		s := &accel.Session{
			ID:                  "s1",
			Mode:                sched.ModeDenseMatmul,
			Running:             true,
			ExpectedResultWords: 84,
		}

		hook.Func(hooking.HookCtx{
			Domain: a, Pos: accel.HookPosSessionStart, Item: s,
		})
		s.ResultWords = 21

		var bars []ProgressSnapshot
		Expect(json.Unmarshal(get("/api/progress").Body.Bytes(), &bars)).
			To(Succeed())
		Expect(bars).To(HaveLen(1))
		Expect(bars[0].Name).To(Equal("Accel " + sched.ModeDenseMatmul.String()))
		Expect(bars[0].Total).To(Equal(uint64(84)))
		Expect(bars[0].Finished).To(Equal(uint64(21)))

		hook.Func(hooking.HookCtx{
			Domain: a, Pos: accel.HookPosSessionEnd, Item: s,
		})
		Expect(m.ProgressBars()).To(BeEmpty())
	})

	It("should serialize an accelerator", func() {
		rec := get("/api/component/Accel")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(json.Valid(rec.Body.Bytes())).To(BeTrue())
		Expect(rec.Body.String()).To(ContainSubstring(`"WeightStaging"`))
		Expect(rec.Body.String()).To(ContainSubstring(`"ConvActs"`))
	})

	It("should serialize an accelerator after a session", func() {
		Expect(a.Start(sched.ModeConvolution)).To(Succeed())
		Expect(engine.Run()).To(Succeed())

		rec := get("/api/component/Accel")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(json.Valid(rec.Body.Bytes())).To(BeTrue())
		Expect(rec.Body.String()).To(ContainSubstring(`"Session"`))
	})

	It("should serialize a field of an accelerator", func() {
		req := url.PathEscape(`{"comp_name":"Accel","field_name":"Counters"}`)
		rec := get("/api/field/" + req)

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(json.Valid(rec.Body.Bytes())).To(BeTrue())
		Expect(rec.Body.String()).To(ContainSubstring(`"Kernel"`))
	})

	It("should reject unknown fields", func() {
		req := url.PathEscape(`{"comp_name":"Accel","field_name":"NoSuch"}`)
		rec := get("/api/field/" + req)

		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("should reject malformed field requests", func() {
		rec := get("/api/field/notjson")

		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("should serve the dashboard", func() {
		rec := get("/")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(HavePrefix("<!DOCTYPE html>"))
	})

	It("should refuse to open a browser before the server starts", func() {
		Expect(m.OpenInBrowser()).To(MatchError(ErrNotStarted))
	})
})

var _ = Describe("ProgressBar", func() {
	It("should move in-progress items to finished", func() {
		bar := &ProgressBar{Total: 10}

		bar.IncrementInProgress(4)
		bar.MoveInProgressToFinished(3)
		bar.IncrementFinished(1)

		s := bar.Snapshot()
		Expect(s.InProgress).To(Equal(uint64(1)))
		Expect(s.Finished).To(Equal(uint64(4)))
	})

	It("should add and complete bars", func() {
		m := NewMonitor()
		b1 := m.CreateProgressBar("a", 1)
		m.CreateProgressBar("b", 2)

		m.CompleteProgressBar(b1)

		bars := m.ProgressBars()
		Expect(bars).To(HaveLen(1))
		Expect(bars[0].Name).To(Equal("b"))
	})
})
