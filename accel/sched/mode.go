package sched

import (
	"errors"
	"fmt"
	"strings"
)

// Mode selects the workload shape of a run.
type Mode int

// The supported modes.
const (
	ModeConvolution Mode = iota
	ModeDenseMatmul
	numModes
)

// ErrUnknownMode is returned when a mode name cannot be parsed.
var ErrUnknownMode = errors.New("unknown operating mode")

func (m Mode) String() string {
	switch m {
	case ModeConvolution:
		return "conv"
	case ModeDenseMatmul:
		return "matmul"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Valid tells if m is one of the supported modes.
func (m Mode) Valid() bool {
	return m >= 0 && m < numModes
}

// ParseMode converts a mode name to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "conv", "convolution":
		return ModeConvolution, nil
	case "matmul", "dense", "densematmul", "mlp":
		return ModeDenseMatmul, nil
	default:
		return 0, fmt.Errorf("%q: %w", s, ErrUnknownMode)
	}
}

// Op is the operation selector sent to the compute array.
type Op int

// Compute-array operations.
const (
	OpNone Op = iota
	OpConv
	OpMatmul
)

func (o Op) String() string {
	switch o {
	case OpConv:
		return "conv"
	case OpMatmul:
		return "matmul"
	default:
		return "none"
	}
}

// Stage distinguishes the two dense layers, whose reduction depth differs.
type Stage int

// Compute stages.
const (
	StageL1 Stage = iota
	StageL2
)

func (s Stage) String() string {
	if s == StageL2 {
		return "L2"
	}

	return "L1"
}
