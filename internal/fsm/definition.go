package fsm

import "github.com/librescoot/librefsm"

// NewSessionDefinition creates the vehicle session FSM definition.
// Every path into StateVehicleLoaded runs OnVehicleLoaded, including a
// reload while a vehicle is already loaded.
func NewSessionDefinition(actions SessionActions) *librefsm.Definition {
	return librefsm.NewDefinition().
		State(StateNoVehicle).
		State(StateVehicleLoaded).
		State(StateVehicleCrashed,
			librefsm.WithOnEnter(actions.EnterCrashed),
		).

		// Loading
		Transition(StateNoVehicle, EvVehicleLoaded, StateVehicleLoaded,
			librefsm.WithAction(actions.OnVehicleLoaded),
		).
		Transition(StateVehicleLoaded, EvVehicleLoaded, StateVehicleLoaded,
			librefsm.WithAction(actions.OnVehicleLoaded),
		).
		Transition(StateVehicleCrashed, EvVehicleLoaded, StateVehicleLoaded,
			librefsm.WithAction(actions.OnVehicleLoaded),
		).

		// Crash and unload
		Transition(StateVehicleLoaded, EvVehicleCrashed, StateVehicleCrashed).
		Transition(StateVehicleLoaded, EvVehicleUnloaded, StateNoVehicle,
			librefsm.WithAction(actions.OnVehicleUnloaded),
		).
		Transition(StateVehicleCrashed, EvVehicleUnloaded, StateNoVehicle,
			librefsm.WithAction(actions.OnVehicleUnloaded),
		).
		Initial(StateNoVehicle)
}
