package fsm

import "github.com/librescoot/librefsm"

// State identifies a state of a tick-driven automation machine.
type State string

// Touchdown motion states
const (
	TouchdownIdle            State = "idle"
	TouchdownArmed           State = "armed-waiting-liftoff"
	TouchdownWaitingLanding  State = "waiting-landing"
	TouchdownBounceDown      State = "touchdown"
	TouchdownMovingUp        State = "moving-up"
	TouchdownRestoring       State = "restoring-position"
	TouchdownWaitingNoseGear State = "waiting-nose-gear"
)

// TouchdownStates lists every touchdown motion state.
var TouchdownStates = []State{
	TouchdownIdle,
	TouchdownArmed,
	TouchdownWaitingLanding,
	TouchdownBounceDown,
	TouchdownMovingUp,
	TouchdownRestoring,
	TouchdownWaitingNoseGear,
}

// Landing throttle manager states
const (
	ThrottleWaitingUser         State = "waiting-user"
	ThrottleStarting            State = "starting"
	ThrottleThrottlingDown      State = "throttling-down"
	ThrottleWaitingIdle         State = "waiting-idle-throttle"
	ThrottleWaitingTouchdown    State = "waiting-touchdown"
	ThrottleApplyingReverse     State = "applying-reverse"
	ThrottleWaitingEndOfReverse State = "waiting-end-of-reverse"
)

// ThrottleStates lists every throttle manager state.
var ThrottleStates = []State{
	ThrottleWaitingUser,
	ThrottleStarting,
	ThrottleThrottlingDown,
	ThrottleWaitingIdle,
	ThrottleWaitingTouchdown,
	ThrottleApplyingReverse,
	ThrottleWaitingEndOfReverse,
}

// Session states
const (
	StateNoVehicle      librefsm.StateID = "no-vehicle"
	StateVehicleLoaded  librefsm.StateID = "vehicle-loaded"
	StateVehicleCrashed librefsm.StateID = "vehicle-crashed"
)

// Session events
const (
	EvVehicleLoaded   librefsm.EventID = "vehicle-loaded"
	EvVehicleUnloaded librefsm.EventID = "vehicle-unloaded"
	EvVehicleCrashed  librefsm.EventID = "vehicle-crashed"
)
