package datarecording

import (
	"os"
	"strings"
	"time"
)

const execTable = "exec_info"

type execInfo struct {
	Property string
	Value    string
}

// ExecRecorder records how and when the program ran.
type ExecRecorder struct {
	recorder DataRecorder
	entries  []execInfo
}

// NewExecRecorder creates the exec_info table in recorder.
func NewExecRecorder(recorder DataRecorder) *ExecRecorder {
	recorder.CreateTable(execTable, execInfo{})

	return &ExecRecorder{recorder: recorder}
}

func now() string {
	return time.Now().Format("2006-01-02 15:04:05.000000000")
}

// Start notes the start time, the command line, and the working directory.
func (e *ExecRecorder) Start() {
	e.entries = append(e.entries,
		execInfo{"Start Time", now()},
		execInfo{"Command", strings.Join(os.Args, " ")},
	)

	if cwd, err := os.Getwd(); err == nil {
		e.entries = append(e.entries, execInfo{"Working Directory", cwd})
	}
}

// Note adds a custom property, such as the mode or a configuration value.
func (e *ExecRecorder) Note(property, value string) {
	e.entries = append(e.entries, execInfo{property, value})
}

// End writes every noted property along with the end time.
func (e *ExecRecorder) End() {
	for _, entry := range e.entries {
		e.recorder.InsertData(execTable, entry)
	}

	e.recorder.InsertData(execTable, execInfo{"End Time", now()})
	e.entries = nil

	e.recorder.Flush()
}
