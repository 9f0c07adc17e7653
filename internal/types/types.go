package types

import "fmt"

// Command is a user trigger routed to one of the automation machines.
type Command string

const (
	CmdThrottleEnable      Command = "throttle-manager:enable"
	CmdThrottleStop        Command = "throttle-manager:stop"
	CmdTouchdownToggle     Command = "touchdown-motion:toggle"
	CmdTouchdownEnable     Command = "touchdown-motion:enable"
	CmdTouchdownDisable    Command = "touchdown-motion:disable"
	CmdParkingBrakeRelease Command = "parking-brake:release"
)

// Commands lists every command in dispatch order.
var Commands = []Command{
	CmdThrottleEnable,
	CmdThrottleStop,
	CmdTouchdownToggle,
	CmdTouchdownEnable,
	CmdTouchdownDisable,
	CmdParkingBrakeRelease,
}

// ParseCommand converts a wire name into a Command.
func ParseCommand(s string) (Command, error) {
	for _, c := range Commands {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown command: %s", s)
}

// LifecycleEvent is a vehicle session notification from the host.
type LifecycleEvent string

const (
	VehicleLoaded   LifecycleEvent = "plane-loaded"
	VehicleUnloaded LifecycleEvent = "plane-unloaded"
	VehicleCrashed  LifecycleEvent = "plane-crashed"
)

// ParseLifecycleEvent converts a wire payload into a LifecycleEvent.
func ParseLifecycleEvent(s string) (LifecycleEvent, error) {
	switch LifecycleEvent(s) {
	case VehicleLoaded, VehicleUnloaded, VehicleCrashed:
		return LifecycleEvent(s), nil
	default:
		return "", fmt.Errorf("unknown lifecycle event: %s", s)
	}
}

// Pose is the pilot's head position and orientation.
type Pose struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Z       float64 `json:"z"`
	Heading float64 `json:"heading"`
	Pitch   float64 `json:"pitch"`
	Roll    float64 `json:"roll"`
}
