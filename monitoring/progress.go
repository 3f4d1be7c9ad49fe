package monitoring

import (
	"sync"
	"time"

	"github.com/sarchlab/nnaccel/accel"
	"github.com/sarchlab/nnaccel/sim/hooking"
)

// A ProgressBar is a tracker of the progress
type ProgressBar struct {
	sync.Mutex
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	StartTime  time.Time `json:"start_time"`
	Total      uint64    `json:"total"`
	Finished   uint64    `json:"finished"`
	InProgress uint64    `json:"in_progress"`
}

// ProgressSnapshot is a copy of a ProgressBar taken under its lock.
type ProgressSnapshot struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	StartTime  time.Time `json:"start_time"`
	Total      uint64    `json:"total"`
	Finished   uint64    `json:"finished"`
	InProgress uint64    `json:"in_progress"`
}

// IncrementInProgress adds the number of in-progress element.
func (b *ProgressBar) IncrementInProgress(amount uint64) {
	b.Lock()
	defer b.Unlock()

	b.InProgress += amount
}

// IncrementFinished add a certain amount to finished element.
func (b *ProgressBar) IncrementFinished(amount uint64) {
	b.Lock()
	defer b.Unlock()

	b.Finished += amount
}

// SetFinished overwrites the number of finished elements.
func (b *ProgressBar) SetFinished(finished uint64) {
	b.Lock()
	defer b.Unlock()

	b.Finished = finished
}

// MoveInProgressToFinished reduces the number of in progress item by a certain
// amount and increase the finished item by the same amount.
func (b *ProgressBar) MoveInProgressToFinished(amount uint64) {
	b.Lock()
	defer b.Unlock()

	b.InProgress -= amount
	b.Finished += amount
}

// Snapshot copies the bar.
func (b *ProgressBar) Snapshot() ProgressSnapshot {
	b.Lock()
	defer b.Unlock()

	return ProgressSnapshot{
		ID:         b.ID,
		Name:       b.Name,
		StartTime:  b.StartTime,
		Total:      b.Total,
		Finished:   b.Finished,
		InProgress: b.InProgress,
	}
}

type trackedSession struct {
	bar     *ProgressBar
	session *accel.Session
}

// sessionProgressHook keeps one progress bar per running session, counted
// in result words.
type sessionProgressHook struct {
	m *Monitor
}

func (h *sessionProgressHook) Func(ctx hooking.HookCtx) {
	s, ok := ctx.Item.(*accel.Session)
	if !ok {
		return
	}

	switch ctx.Pos {
	case accel.HookPosSessionStart:
		h.m.trackSession(ctx.Domain, s)
	case accel.HookPosSessionEnd:
		h.m.untrackSession(s)
	}
}
