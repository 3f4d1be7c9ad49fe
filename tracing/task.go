// Package tracing turns what simulated components do into tasks that tracers
// can measure or store.
package tracing

import "github.com/sarchlab/nnaccel/sim/timing"

// Task kinds raised by the accelerator.
const (
	KindSession = "session"
	KindPhase   = "phase"
)

// A TaskStep represents a milestone in the processing of task.
type TaskStep struct {
	Time timing.VTimeInCycle `json:"time"`
	What string              `json:"what"`
}

// A Task is a span of work done by a domain.
type Task struct {
	ID        string              `json:"id"`
	ParentID  string              `json:"parent_id"`
	Kind      string              `json:"kind"`
	What      string              `json:"what"`
	Where     string              `json:"where"`
	StartTime timing.VTimeInCycle `json:"start_time"`
	EndTime   timing.VTimeInCycle `json:"end_time"`
	Steps     []TaskStep          `json:"steps"`
	Detail    any                 `json:"-"`
}

// TaskFilter is a function that can filter interesting tasks. If this function
// returns true, the task is considered useful.
type TaskFilter func(t Task) bool

// KindFilter keeps the tasks of one kind.
func KindFilter(kind string) TaskFilter {
	return func(t Task) bool {
		return t.Kind == kind
	}
}

// WhatFilter keeps the tasks whose What is one of whats.
func WhatFilter(whats ...string) TaskFilter {
	set := make(map[string]bool, len(whats))
	for _, w := range whats {
		set[w] = true
	}

	return func(t Task) bool {
		return set[t.What]
	}
}
