package tracing

import (
	"container/list"

	"github.com/sarchlab/nnaccel/sim/timing"
)

type taskTimeStartEnd struct {
	start, end timing.VTimeInCycle
	completed  bool
}

// BusyTimeTracer traces the that a domain is processing a kind of task. If the
// task processing time overlaps, this tracer only consider one instance of the
// overlapped time.
type BusyTimeTracer struct {
	timeTeller    timing.TimeTeller
	filter        TaskFilter
	inflightTasks map[string]*list.Element
	taskTimes     *list.List
	busyTime      timing.VTimeInCycle
}

// NewBusyTimeTracer creates a new BusyTimeTracer.
func NewBusyTimeTracer(
	timeTeller timing.TimeTeller,
	filter TaskFilter,
) *BusyTimeTracer {
	return &BusyTimeTracer{
		timeTeller:    timeTeller,
		filter:        filter,
		inflightTasks: make(map[string]*list.Element),
		taskTimes:     list.New(),
	}
}

// BusyTime returns the number of cycles spent on the filtered tasks.
func (t *BusyTimeTracer) BusyTime() timing.VTimeInCycle {
	return t.busyTime
}

// TerminateAllTasks will mark all the tasks as completed.
func (t *BusyTimeTracer) TerminateAllTasks(now timing.VTimeInCycle) {
	for e := t.taskTimes.Front(); e != nil; e = e.Next() {
		task := e.Value.(*taskTimeStartEnd)
		if !task.completed {
			task.completed = true
			task.end = now
		}
	}

	t.inflightTasks = make(map[string]*list.Element)
	t.collapse(now)
}

// StartTask records the task start time.
func (t *BusyTimeTracer) StartTask(task Task) {
	task.StartTime = t.timeTeller.CurrentTime()

	if t.filter != nil && !t.filter(task) {
		return
	}

	elem := t.taskTimes.PushBack(&taskTimeStartEnd{start: task.StartTime})
	t.inflightTasks[task.ID] = elem
}

// StepTask does nothing.
func (t *BusyTimeTracer) StepTask(_ Task) {}

// EndTask records the end of the task.
func (t *BusyTimeTracer) EndTask(task Task) {
	task.EndTime = t.timeTeller.CurrentTime()

	elem, ok := t.inflightTasks[task.ID]
	if !ok {
		return
	}

	time := elem.Value.(*taskTimeStartEnd)
	time.end = task.EndTime
	time.completed = true
	delete(t.inflightTasks, task.ID)

	t.collapse(task.EndTime)
}

func (t *BusyTimeTracer) collapse(now timing.VTimeInCycle) {
	start, found := t.startTimeOfFirstIncompleteTask()
	if found && start < now {
		return
	}

	finished := make([]*taskTimeStartEnd, 0)

	var next *list.Element
	for e := t.taskTimes.Front(); e != nil; e = next {
		next = e.Next()

		task := e.Value.(*taskTimeStartEnd)
		if !task.completed {
			break
		}

		if task.end <= now {
			finished = append(finished, task)
			t.taskTimes.Remove(e)
		}
	}

	t.busyTime += taskBusyTime(finished)
}

func (t *BusyTimeTracer) startTimeOfFirstIncompleteTask() (
	timing.VTimeInCycle, bool,
) {
	for e := t.taskTimes.Front(); e != nil; e = e.Next() {
		task := e.Value.(*taskTimeStartEnd)
		if !task.completed {
			return task.start, true
		}
	}

	return 0, false
}

func taskBusyTime(tasks []*taskTimeStartEnd) timing.VTimeInCycle {
	var busyTime timing.VTimeInCycle

	covered := make(map[int]bool)

	for i, t1 := range tasks {
		if covered[i] {
			continue
		}

		covered[i] = true
		ext := taskTimeStartEnd{start: t1.start, end: t1.end}

		for j, t2 := range tasks {
			if covered[j] || !overlap(&ext, t2) {
				continue
			}

			covered[j] = true
			ext.start = min(ext.start, t2.start)
			ext.end = max(ext.end, t2.end)
		}

		busyTime += ext.end - ext.start
	}

	return busyTime
}

func overlap(t1, t2 *taskTimeStartEnd) bool {
	return t1.start <= t2.end && t2.start <= t1.end
}
