package automation

import (
	"errors"
	"fmt"
)

// ErrActuatorBusy is returned when a command is begun while another one is
// still active on the same handle.
var ErrActuatorBusy = errors.New("actuator busy")

// ActuatorHandle tracks the single command a machine may hold active.
type ActuatorHandle struct {
	port     ActuatorPort
	active   string
	observer func(command string, active bool)
}

func NewActuatorHandle(port ActuatorPort) *ActuatorHandle {
	return &ActuatorHandle{port: port}
}

// SetObserver installs a callback invoked after every begin and end.
func (h *ActuatorHandle) SetObserver(fn func(command string, active bool)) {
	h.observer = fn
}

// Begin starts a command. At most one command is active at a time.
func (h *ActuatorHandle) Begin(id string) error {
	if h.active != "" {
		return fmt.Errorf("%w: %s is active, cannot begin %s", ErrActuatorBusy, h.active, id)
	}
	if err := h.port.Begin(id); err != nil {
		return fmt.Errorf("failed to begin %s: %w", id, err)
	}
	h.active = id
	h.notify(id, true)
	return nil
}

// End stops the active command. It is a no-op when none is active. The
// handle is cleared even if the host rejects the end.
func (h *ActuatorHandle) End() error {
	if h.active == "" {
		return nil
	}
	id := h.active
	h.active = ""
	h.notify(id, false)
	if err := h.port.End(id); err != nil {
		return fmt.Errorf("failed to end %s: %w", id, err)
	}
	return nil
}

// Pulse begins and immediately ends a command.
func (h *ActuatorHandle) Pulse(id string) error {
	if err := h.Begin(id); err != nil {
		return err
	}
	return h.End()
}

// Active returns the active command, or "" when idle.
func (h *ActuatorHandle) Active() string {
	return h.active
}

func (h *ActuatorHandle) notify(id string, active bool) {
	if h.observer != nil {
		h.observer(id, active)
	}
}
