package fsm

import "github.com/librescoot/librefsm"

// SessionActions defines the callbacks of the vehicle session machine.
// CockpitSystem implements this interface; the callbacks run on the
// session machine's goroutine and must only raise requests on the tick
// machines.
type SessionActions interface {
	// Transition actions
	OnVehicleLoaded(c *librefsm.Context) error
	OnVehicleUnloaded(c *librefsm.Context) error

	// State entry actions
	EnterCrashed(c *librefsm.Context) error
}
