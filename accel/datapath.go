package accel

import (
	"fmt"

	"github.com/sarchlab/nnaccel/accel/addressing"
	"github.com/sarchlab/nnaccel/accel/compute"
	"github.com/sarchlab/nnaccel/accel/sched"
	"github.com/sarchlab/nnaccel/sim/hooking"
	"github.com/sarchlab/nnaccel/sim/id"
	"github.com/sarchlab/nnaccel/tracing"
)

// Tick advances the controller by one tick and serves its signals.
func (a *Accelerator) Tick() bool {
	in := sched.Inputs{
		Mode:  a.mode,
		Start: a.startReq,
		Reset: a.resetReq,
	}
	a.resetReq = false

	before := a.ctrl.State()
	sig := a.ctrl.Step(in)

	if in.Reset {
		a.startReq = false
		a.resetDatapath()
		a.tracePhase(before)
		a.abortSession()

		return false
	}

	if sig.Accepted {
		a.startReq = false
		a.openSession()
	}

	a.serveData(&sig)
	a.serveAddress(&sig)
	a.serveCompute(&sig)
	a.serveWriteback(&sig)
	a.serveSwaps(&sig)
	a.commit()

	a.tracePhase(before)

	if sig.Done {
		a.closeSession()
	}

	return sig.Accepted || sig.State.Busy()
}

// serveData handles the strobes that consume data requested on the previous
// tick.
func (a *Accelerator) serveData(sig *sched.Signals) {
	if sig.WeightShadowWrite.Enable {
		a.weightBuf.WriteShadow(sig.WeightShadowWrite.Addr,
			a.weightStore.Data())
	}

	if sig.WeightStage.Enable {
		a.weightStaging[sig.WeightStage.Addr] = a.weightOut
	}

	if sig.ActStage.Enable {
		a.convActs[sig.ActStage.PE][sig.ActStage.Window] = a.featureMux.Data()
	}

	if sig.ActShadowWrite.Enable {
		a.actBuf.WriteShadow(sig.ActShadowWrite.Addr, a.featureMux.Data())
	}
}

func (a *Accelerator) serveAddress(sig *sched.Signals) {
	if sig.WeightFetch.Enable {
		a.weightStore.Read(sig.WeightFetch.Addr)
	}

	if sig.WeightActiveRead.Enable {
		a.weightOutNext = a.weightBuf.ReadActive(sig.WeightActiveRead.Addr)
	}

	if sig.FeatureFetch.Enable {
		a.featureMux.Read(sig.FeatureFetch.Addr)
	}
}

func (a *Accelerator) serveCompute(sig *sched.Signals) {
	if !sig.Compute.Valid {
		return
	}

	in := compute.Operands{
		Weights:  a.weightStaging[:],
		ConvActs: &a.convActs,
	}

	if sig.Compute.Op == sched.OpMatmul {
		in.Acts = a.actBuf.View(a.actBuf.Active())
	}

	a.array.Compute(sig.Compute, in)
	a.session.ComputeTicks++

	if sig.Capture {
		a.acc.Capture(a.array.Result())
		a.accCtrl = sig.Compute
	}
}

func (a *Accelerator) serveWriteback(sig *sched.Signals) {
	if !sig.Writeback() {
		return
	}

	v := a.post.Process(a.accCtrl.Op, a.accCtrl.Stage, a.acc.Word(sig.ReadIdx))

	if sig.ResultWrite.Enable {
		a.resultStore.Write(sig.ResultWrite.Addr, v)
		a.session.ResultWords++
	}

	if sig.HiddenWrite.Enable {
		a.actBuf.WriteShadow(sig.HiddenWrite.Addr, v)
		a.session.HiddenWords++
	}
}

func (a *Accelerator) serveSwaps(sig *sched.Signals) {
	if sig.WeightSwap {
		a.weightBuf.RequestSwap()
		a.session.ColumnLoads++
	}

	if sig.ActSwap {
		a.actBuf.RequestSwap()
	}
}

func (a *Accelerator) commit() {
	a.weightStore.Commit()
	a.featureStore.Commit()
	a.resultStore.Commit()
	a.featureMux.Commit()
	a.weightBuf.Commit()
	a.actBuf.Commit()

	a.weightOut = a.weightOutNext
}

func (a *Accelerator) resetDatapath() {
	a.weightBuf.Reset()
	a.actBuf.Reset()
	a.acc.Reset()
	a.weightStaging = [WeightStagingWords]uint32{}
	a.convActs = [addressing.ConvPEs][addressing.ConvWindows]uint32{}
	a.weightOut = 0
	a.weightOutNext = 0
	a.accCtrl = sched.ComputeCtrl{}
}

// tracePhase reports every busy state as a phase task of the session.
func (a *Accelerator) tracePhase(before sched.State) {
	after := a.ctrl.State()
	if after == before || a.NumHooks() == 0 {
		return
	}

	if a.phaseTaskID != "" {
		tracing.EndTask(a.phaseTaskID, a)
		a.phaseTaskID = ""
	}

	if !after.Busy() || a.session == nil {
		return
	}

	a.phaseSeq++
	a.phaseTaskID = fmt.Sprintf("%s.%d", a.session.ID, a.phaseSeq)
	tracing.StartTask(a.phaseTaskID, a.session.ID, a,
		tracing.KindPhase, after.String(), a.ctrl.Counters())
}

func (a *Accelerator) openSession() {
	dims := a.ctrl.Dims()

	a.session = &Session{
		ID:                  id.Generate(),
		Mode:                a.mode,
		Running:             true,
		StartCycle:          a.CurrentTime(),
		ExpectedResultWords: dims.ResultWords(a.mode),
	}
	a.sessions = append(a.sessions, a.session)

	a.logger.Info("session started",
		"accel", a.Name(),
		"session", a.session.ID,
		"mode", a.mode.String(),
		"cycle", uint64(a.session.StartCycle))

	a.InvokeHook(hooking.HookCtx{
		Domain: a,
		Pos:    HookPosSessionStart,
		Item:   a.session,
	})

	tracing.StartTask(a.session.ID, "", a,
		tracing.KindSession, a.mode.String(), a.session)
}

func (a *Accelerator) closeSession() {
	s := a.session
	s.Running = false
	s.Done = true
	s.EndCycle = a.CurrentTime()

	a.logger.Info("session finished",
		"accel", a.Name(),
		"session", s.ID,
		"mode", s.Mode.String(),
		"cycles", uint64(s.Cycles(s.EndCycle)),
		"result_words", s.ResultWords,
		"column_loads", s.ColumnLoads)

	tracing.EndTask(s.ID, a)

	a.InvokeHook(hooking.HookCtx{
		Domain: a,
		Pos:    HookPosSessionEnd,
		Item:   s,
	})
}

func (a *Accelerator) abortSession() {
	s := a.session
	if s == nil || !s.Running {
		return
	}

	s.Running = false
	s.Aborted = true
	s.EndCycle = a.CurrentTime()

	a.logger.Warn("session aborted by reset",
		"accel", a.Name(),
		"session", s.ID,
		"result_words", s.ResultWords)

	tracing.EndTask(s.ID, a)

	a.InvokeHook(hooking.HookCtx{
		Domain: a,
		Pos:    HookPosSessionEnd,
		Item:   s,
	})
}
