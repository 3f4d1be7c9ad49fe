package timing

import (
	"log/slog"
	"reflect"

	"github.com/sarchlab/nnaccel/sim/hooking"
	"github.com/sarchlab/nnaccel/sim/naming"
)

// EventLogger is an hook that logs every event the engine handles.
type EventLogger struct {
	logger *slog.Logger
}

// NewEventLogger returns a new EventLogger which will write in to the logger.
func NewEventLogger(logger *slog.Logger) *EventLogger {
	h := new(EventLogger)

	h.logger = logger

	return h
}

// Func writes the event information into the logger.
func (h *EventLogger) Func(ctx hooking.HookCtx) {
	if ctx.Pos != HookPosBeforeEvent {
		return
	}

	evt, ok := ctx.Item.(Event)
	if !ok {
		return
	}

	handlerName := "unnamed"
	if named, ok := evt.Handler().(naming.Named); ok {
		handlerName = named.Name()
	}

	h.logger.Debug("event",
		"cycle", uint64(evt.Time()),
		"type", reflect.TypeOf(evt).String(),
		"handler", handlerName,
	)
}
