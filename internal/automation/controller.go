package automation

import (
	"sync"
	"time"

	"cockpit-service/internal/fsm"
	"cockpit-service/internal/logger"
)

// Machine is a tick-driven automation state machine. All methods run on the
// scheduler goroutine.
type Machine interface {
	Name() string
	State() fsm.State
	// Sync consumes pending lifecycle requests and returns the setup result
	// that gates Step.
	Sync(now time.Time) Setup
	// Step evaluates the current state once and returns the next poll
	// interval.
	Step(now time.Time) time.Duration
	// IdleInterval is returned while the machine is not ready.
	IdleInterval() time.Duration
	// Halt ends any active command and returns to the initial state.
	Halt(reason string)
	Actuator() *ActuatorHandle
}

// Detailer is implemented by machines that expose extra status fields.
type Detailer interface {
	Details(now time.Time) map[string]any
}

// Observer is told about every state change of a controlled machine.
type Observer interface {
	StateChanged(machine string, from, to fsm.State)
}

// TickObserver is optionally implemented by observers that want every tick.
type TickObserver interface {
	Ticked(machine string, elapsed time.Duration, ready bool)
}

// Status is a snapshot of a machine taken after its last tick or command.
type Status struct {
	Machine       string         `json:"machine"`
	State         fsm.State      `json:"state"`
	Ready         bool           `json:"ready"`
	Reason        string         `json:"reason,omitempty"`
	ActiveCommand string         `json:"active_command,omitempty"`
	Ticks         uint64         `json:"ticks"`
	LastTick      time.Time      `json:"last_tick"`
	NextPoll      string         `json:"next_poll"`
	Details       map[string]any `json:"details,omitempty"`
}

// Controller drives one machine: it gates every tick on the setup result,
// runs one state evaluation and notifies observers of state changes.
type Controller struct {
	machine   Machine
	logger    *logger.Logger
	observers []Observer

	ticks     uint64
	lastSetup string

	mu     sync.RWMutex
	status Status
}

func NewController(m Machine, l *logger.Logger) *Controller {
	return &Controller{
		machine: m,
		logger:  l,
		status:  Status{Machine: m.Name(), State: m.State()},
	}
}

// AddObserver registers an observer. Not safe once ticking has started.
func (c *Controller) AddObserver(o Observer) {
	c.observers = append(c.observers, o)
}

func (c *Controller) Machine() Machine {
	return c.machine
}

// Tick performs exactly one evaluation and returns the next poll interval.
// A machine that is not ready is left untouched.
func (c *Controller) Tick(now time.Time, elapsed time.Duration) time.Duration {
	from := c.machine.State()
	setup := c.machine.Sync(now)
	c.ticks++

	if s := setup.String(); s != c.lastSetup {
		if setup.Ready() {
			c.logger.Infof("%s ready", c.machine.Name())
		} else {
			c.logger.Warnf("%s not ready: %s", c.machine.Name(), s)
		}
		c.lastSetup = s
	}

	next := c.machine.IdleInterval()
	if setup.Ready() {
		next = c.machine.Step(now)
	}

	c.notify(from)
	for _, o := range c.observers {
		if to, ok := o.(TickObserver); ok {
			to.Ticked(c.machine.Name(), elapsed, setup.Ready())
		}
	}
	c.snapshot(now, setup, next)
	return next
}

// Do runs fn against the machine outside a tick, then reports any state
// change it caused. It must be called on the scheduler goroutine.
func (c *Controller) Do(now time.Time, fn func()) {
	from := c.machine.State()
	fn()
	c.notify(from)

	c.mu.Lock()
	c.status.State = c.machine.State()
	c.status.ActiveCommand = c.machine.Actuator().Active()
	if d, ok := c.machine.(Detailer); ok {
		c.status.Details = d.Details(now)
	}
	c.mu.Unlock()
}

// Status returns the latest snapshot. Safe from any goroutine.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *Controller) notify(from fsm.State) {
	to := c.machine.State()
	if from == to {
		return
	}
	for _, o := range c.observers {
		o.StateChanged(c.machine.Name(), from, to)
	}
}

func (c *Controller) snapshot(now time.Time, setup Setup, next time.Duration) {
	s := Status{
		Machine:       c.machine.Name(),
		State:         c.machine.State(),
		Ready:         setup.Ready(),
		ActiveCommand: c.machine.Actuator().Active(),
		Ticks:         c.ticks,
		LastTick:      now,
		NextPoll:      next.String(),
	}
	if !setup.Ready() {
		s.Reason = setup.String()
	}
	if d, ok := c.machine.(Detailer); ok {
		s.Details = d.Details(now)
	}

	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}
