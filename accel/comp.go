// Package accel assembles the scheduling controller, the staging memories,
// and the compute array into a ticking accelerator.
package accel

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/sarchlab/nnaccel/accel/addressing"
	"github.com/sarchlab/nnaccel/accel/compute"
	"github.com/sarchlab/nnaccel/accel/memory"
	"github.com/sarchlab/nnaccel/accel/pingpong"
	"github.com/sarchlab/nnaccel/accel/sched"
	"github.com/sarchlab/nnaccel/sim/hooking"
	"github.com/sarchlab/nnaccel/sim/timing"
)

// ErrBusy is returned when an operation needs an idle accelerator.
var ErrBusy = errors.New("accelerator is busy")

var (
	// HookPosSessionStart fires when a start pulse is accepted. The item is
	// the *Session.
	HookPosSessionStart = &hooking.HookPos{Name: "AccelSessionStart"}

	// HookPosSessionEnd fires when a session finishes or is aborted by a
	// reset. The item is the *Session.
	HookPosSessionEnd = &hooking.HookPos{Name: "AccelSessionEnd"}
)

// Accelerator is the dual-mode accelerator. All operands live in its
// memories; the controller decides every tick which of them move.
type Accelerator struct {
	*timing.TickingComponent

	ctrl   *sched.Controller
	array  compute.Array
	post   compute.PostProcessor
	logger *slog.Logger

	weightStore  *memory.SRAM
	featureStore *memory.SRAM
	resultStore  *memory.SRAM
	featureMux   *memory.FeatureMux

	weightBuf *pingpong.DoubleBuffer
	actBuf    *pingpong.DoubleBuffer

	weightStaging [WeightStagingWords]uint32
	convActs      [addressing.ConvPEs][addressing.ConvWindows]uint32
	acc           compute.OutputAccumulator

	// Output register of the weight staging memory read port.
	weightOut     uint32
	weightOutNext uint32

	// Operation of the invocation held in the accumulator.
	accCtrl sched.ComputeCtrl

	mode     sched.Mode
	startReq bool
	resetReq bool

	session  *Session
	sessions []*Session

	phaseTaskID string
	phaseSeq    uint64
}

// Controller returns the scheduling controller.
func (a *Accelerator) Controller() *sched.Controller {
	return a.ctrl
}

// WeightBuffer returns the weight staging double buffer.
func (a *Accelerator) WeightBuffer() *pingpong.DoubleBuffer {
	return a.weightBuf
}

// ActBuffer returns the activation staging double buffer.
func (a *Accelerator) ActBuffer() *pingpong.DoubleBuffer {
	return a.actBuf
}

// Accumulator returns the output accumulator.
func (a *Accelerator) Accumulator() *compute.OutputAccumulator {
	return &a.acc
}

// Busy tells if a session is running or about to start.
func (a *Accelerator) Busy() bool {
	return a.startReq || a.ctrl.Busy() ||
		(a.session != nil && a.session.Running)
}

// Start requests a new run in mode m. The request is sampled on the next
// tick.
func (a *Accelerator) Start(m sched.Mode) error {
	if !m.Valid() {
		return fmt.Errorf("start %s: %w", m, sched.ErrUnknownMode)
	}

	if a.Busy() {
		return fmt.Errorf("start %s: %w", m, ErrBusy)
	}

	a.mode = m
	a.startReq = true
	a.TickLater()

	return nil
}

// Reset aborts any running session and returns the controller and the
// staging memories to their initial state on the next tick.
func (a *Accelerator) Reset() {
	a.resetReq = true
	a.TickLater()
}

// SetFeedback routes feature reads to the result store instead of the
// feature store, so a run can consume the results of the previous one.
func (a *Accelerator) SetFeedback(on bool) error {
	if a.Busy() {
		return fmt.Errorf("set feedback: %w", ErrBusy)
	}

	a.featureMux.SetFeedback(on)

	return nil
}

// Session returns the running session, or the last one. The second return
// value is false if no session was ever started.
func (a *Accelerator) Session() (Session, bool) {
	if a.session == nil {
		return Session{}, false
	}

	return *a.session, true
}

// Sessions returns every session started so far, oldest first.
func (a *Accelerator) Sessions() []Session {
	res := make([]Session, 0, len(a.sessions))
	for _, s := range a.sessions {
		res = append(res, *s)
	}

	return res
}

func (a *Accelerator) hostAccess(
	op string,
	f func() error,
) error {
	if a.Busy() {
		return fmt.Errorf("%s: %w", op, ErrBusy)
	}

	if err := f(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// LoadWeights writes words into the weight store starting at addr.
func (a *Accelerator) LoadWeights(addr int, data []uint32) error {
	return a.hostAccess("load weights", func() error {
		return a.weightStore.Storage().Write(addr, data)
	})
}

// LoadFeatures writes words into the feature store starting at addr.
func (a *Accelerator) LoadFeatures(addr int, data []uint32) error {
	return a.hostAccess("load features", func() error {
		return a.featureStore.Storage().Write(addr, data)
	})
}

// ReadResults returns n words of the result store starting at addr.
func (a *Accelerator) ReadResults(addr, n int) ([]uint32, error) {
	var res []uint32

	err := a.hostAccess("read results", func() error {
		var err error
		res, err = a.resultStore.Storage().Read(addr, n)

		return err
	})

	return res, err
}
