package core

import (
	"cockpit-service/internal/automation"
	"cockpit-service/internal/hardware"
	"cockpit-service/internal/messaging"
)

// MessagingClient defines the host bridge operations needed by CockpitSystem
type MessagingClient interface {
	automation.SensorPort
	automation.ActuatorPort
	automation.Reporter

	SetCallbacks(callbacks messaging.Callbacks)
	Connect() error
	StartListening() error
	Close() error

	// Cockpit state
	PublishMachineState(machine string, state string) error
	PublishLanding(l automation.Landing) error
	PublishSession(id string, state string) error
}

// EventMirror defines the broker copy of cockpit events. Optional.
type EventMirror interface {
	PublishReport(msg string) error
	PublishMachineState(machine, state string) error
	PublishLanding(l automation.Landing) error
	PublishSession(id, state string) error
	Close()
}

// PanelIO defines the cockpit panel operations needed by CockpitSystem. Optional.
type PanelIO interface {
	Initialize() error
	Cleanup()
	SetCallback(cb hardware.ButtonCallback)
	SetLamp(name string, on bool) error
}
