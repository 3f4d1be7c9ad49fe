package tracing

import (
	"sync"

	"github.com/tebeka/atexit"

	"github.com/sarchlab/nnaccel/datarecording"
	"github.com/sarchlab/nnaccel/sim/timing"
)

// TraceTable is the table DBTracer writes into.
const TraceTable = "trace"

// TaskTableEntry is one finished task as stored by DBTracer.
type TaskTableEntry struct {
	ID         string
	ParentID   string
	Kind       string
	What       string
	Location   string
	StartCycle uint64
	EndCycle   uint64
}

// DBTracer is a tracer that stores finished tasks through a DataRecorder.
type DBTracer struct {
	mu         sync.Mutex
	timeTeller timing.TimeTeller
	backend    datarecording.DataRecorder
	filter     TaskFilter

	startTime, endTime timing.VTimeInCycle

	tracingTasks map[string]Task
	terminated   bool
}

// NewDBTracer creates a new DBTracer. A nil filter keeps every task.
func NewDBTracer(
	timeTeller timing.TimeTeller,
	dataRecorder datarecording.DataRecorder,
	filter TaskFilter,
) *DBTracer {
	dataRecorder.CreateTable(TraceTable, TaskTableEntry{})

	t := &DBTracer{
		timeTeller:   timeTeller,
		backend:      dataRecorder,
		filter:       filter,
		tracingTasks: make(map[string]Task),
	}

	atexit.Register(func() {
		t.Terminate()
	})

	return t
}

// SetTimeRange limits tracing to tasks overlapping [startTime, endTime]. A
// zero bound is open.
func (t *DBTracer) SetTimeRange(startTime, endTime timing.VTimeInCycle) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.startTime = startTime
	t.endTime = endTime
}

// StartTask marks the start of a task.
func (t *DBTracer) StartTask(task Task) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.terminated || (t.filter != nil && !t.filter(task)) {
		return
	}

	task.StartTime = t.timeTeller.CurrentTime()
	if t.endTime > 0 && task.StartTime > t.endTime {
		return
	}

	t.tracingTasks[task.ID] = task
}

// StepTask does nothing.
func (t *DBTracer) StepTask(_ Task) {}

// EndTask writes a finished task.
func (t *DBTracer) EndTask(task Task) {
	t.mu.Lock()
	defer t.mu.Unlock()

	original, ok := t.tracingTasks[task.ID]
	if !ok {
		return
	}

	delete(t.tracingTasks, task.ID)

	original.EndTime = t.timeTeller.CurrentTime()
	if t.startTime > 0 && original.EndTime < t.startTime {
		return
	}

	t.write(original)
}

func (t *DBTracer) write(task Task) {
	t.backend.InsertData(TraceTable, TaskTableEntry{
		ID:         task.ID,
		ParentID:   task.ParentID,
		Kind:       task.Kind,
		What:       task.What,
		Location:   task.Where,
		StartCycle: uint64(task.StartTime),
		EndCycle:   uint64(task.EndTime),
	})
}

// Terminate writes the unfinished tasks as ending now and flushes the
// backend. Calling it more than once has no further effect.
func (t *DBTracer) Terminate() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.terminated {
		return
	}

	t.terminated = true

	now := t.timeTeller.CurrentTime()
	for _, task := range t.tracingTasks {
		task.EndTime = now
		t.write(task)
	}

	t.tracingTasks = nil
	t.backend.Flush()
}
