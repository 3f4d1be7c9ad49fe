package tracing

import (
	"sync"

	"github.com/sarchlab/nnaccel/sim/timing"
)

// PhaseStat summarizes the tasks sharing one What.
type PhaseStat struct {
	What   string
	Count  uint64
	Cycles timing.VTimeInCycle
}

// PhaseStatsTracer counts tasks and adds up their durations, grouped by
// What. Overlapping tasks are all counted in full.
type PhaseStatsTracer struct {
	timeTeller timing.TimeTeller
	filter     TaskFilter

	lock     sync.Mutex
	inflight map[string]Task
	order    []string
	stats    map[string]*PhaseStat
}

// NewPhaseStatsTracer creates a tracer. A nil filter keeps every task.
func NewPhaseStatsTracer(
	timeTeller timing.TimeTeller,
	filter TaskFilter,
) *PhaseStatsTracer {
	return &PhaseStatsTracer{
		timeTeller: timeTeller,
		filter:     filter,
		inflight:   make(map[string]Task),
		stats:      make(map[string]*PhaseStat),
	}
}

// StartTask records the task start time.
func (t *PhaseStatsTracer) StartTask(task Task) {
	if t.filter != nil && !t.filter(task) {
		return
	}

	task.StartTime = t.timeTeller.CurrentTime()

	t.lock.Lock()
	t.inflight[task.ID] = task
	t.lock.Unlock()
}

// StepTask does nothing.
func (t *PhaseStatsTracer) StepTask(_ Task) {}

// EndTask adds the task to the statistics of its What.
func (t *PhaseStatsTracer) EndTask(task Task) {
	now := t.timeTeller.CurrentTime()

	t.lock.Lock()
	defer t.lock.Unlock()

	original, ok := t.inflight[task.ID]
	if !ok {
		return
	}

	delete(t.inflight, task.ID)

	stat, ok := t.stats[original.What]
	if !ok {
		stat = &PhaseStat{What: original.What}
		t.stats[original.What] = stat
		t.order = append(t.order, original.What)
	}

	stat.Count++
	stat.Cycles += now - original.StartTime
}

// Stats returns the statistics in the order each What first completed.
func (t *PhaseStatsTracer) Stats() []PhaseStat {
	t.lock.Lock()
	defer t.lock.Unlock()

	res := make([]PhaseStat, 0, len(t.order))
	for _, what := range t.order {
		res = append(res, *t.stats[what])
	}

	return res
}

// Stat returns the statistics of one What.
func (t *PhaseStatsTracer) Stat(what string) PhaseStat {
	t.lock.Lock()
	defer t.lock.Unlock()

	if s, ok := t.stats[what]; ok {
		return *s
	}

	return PhaseStat{What: what}
}
