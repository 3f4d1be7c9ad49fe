package timing

import (
	"sync"

	"github.com/sarchlab/nnaccel/sim/hooking"
	"github.com/sarchlab/nnaccel/sim/id"
	"github.com/sarchlab/nnaccel/sim/naming"
)

// TickEvent is a generic event that almost all the component can use to
// update their status.
type TickEvent struct {
	EventBase
}

// MakeTickEvent creates a new TickEvent.
func MakeTickEvent(handler Handler, time VTimeInCycle) TickEvent {
	evt := TickEvent{}
	evt.ID = id.Generate()
	evt.handler = handler
	evt.time = time
	evt.secondary = false

	return evt
}

// A Ticker is an object that updates states with ticks.
type Ticker interface {
	Tick() bool
}

// TickScheduler can help schedule tick events.
type TickScheduler struct {
	lock    sync.Mutex
	handler Handler
	Freq    Freq
	Engine  Engine

	scheduled    bool
	nextTickTime VTimeInCycle
}

// NewTickScheduler creates a scheduler for tick events.
func NewTickScheduler(
	handler Handler,
	engine Engine,
	freq Freq,
) *TickScheduler {
	ticker := new(TickScheduler)

	ticker.handler = handler
	ticker.Engine = engine
	ticker.Freq = freq

	return ticker
}

// TickNow schedule a Tick event at the current time.
func (t *TickScheduler) TickNow() {
	t.schedule(t.CurrentTime())
}

// TickLater will schedule a tick event at the cycle after the current time.
func (t *TickScheduler) TickLater() {
	t.schedule(t.CurrentTime() + 1)
}

func (t *TickScheduler) schedule(time VTimeInCycle) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.scheduled && t.nextTickTime >= time {
		return
	}

	t.scheduled = true
	t.nextTickTime = time
	t.Engine.Schedule(MakeTickEvent(t.handler, time))
}

// handled marks the tick at now as consumed, so that a later request for the
// same cycle is scheduled again.
func (t *TickScheduler) handled(now VTimeInCycle) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.scheduled && t.nextTickTime <= now {
		t.scheduled = false
	}
}

// CurrentTime returns the current cycle of the engine.
func (t *TickScheduler) CurrentTime() VTimeInCycle {
	return t.Engine.CurrentTime()
}

// TickingComponent is a type of component that update states from cycle to
// cycle. A programmer would only need to program a tick function for a ticking
// component.
type TickingComponent struct {
	naming.NamedBase
	*hooking.HookableBase
	*TickScheduler

	ticker Ticker
}

// Handle triggers the tick function of the TickingComponent.
func (c *TickingComponent) Handle(e Event) error {
	c.handled(e.Time())

	madeProgress := c.ticker.Tick()
	if madeProgress {
		c.TickLater()
	}

	return nil
}

// NewTickingComponent creates a new ticking component.
func NewTickingComponent(
	name string,
	engine Engine,
	freq Freq,
	ticker Ticker,
) *TickingComponent {
	tc := new(TickingComponent)
	tc.NamedBase = naming.MakeNamedBase(name)
	tc.HookableBase = hooking.NewHookableBase()
	tc.TickScheduler = NewTickScheduler(tc, engine, freq)
	tc.ticker = ticker

	return tc
}
