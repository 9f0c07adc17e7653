package automation

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady means a required identifier is unavailable on the host.
	ErrNotReady = errors.New("not ready")
	// ErrUnsupportedVehicle means the loaded vehicle matched no profile.
	ErrUnsupportedVehicle = errors.New("unsupported vehicle")
)

// Requirements lists the identifiers a machine needs before it can run.
type Requirements struct {
	Sensors  []string
	Commands []string
}

// Setup is the outcome of resolving a machine's identifiers. The zero
// value is an unresolved, not-ready setup.
type Setup struct {
	resolved    bool
	Missing     string
	Unsupported string
}

// ResolvedSetup is a setup with every identifier present.
func ResolvedSetup() Setup {
	return Setup{resolved: true}
}

// UnsupportedSetup records a vehicle description no profile matched.
func UnsupportedSetup(description string) Setup {
	return Setup{resolved: true, Unsupported: description}
}

// Ready reports whether the machine may run.
func (s Setup) Ready() bool {
	return s.resolved && s.Missing == "" && s.Unsupported == ""
}

// Err describes why the setup is not ready, or nil when it is.
func (s Setup) Err() error {
	switch {
	case s.Ready():
		return nil
	case s.Unsupported != "":
		return fmt.Errorf("%w: %q", ErrUnsupportedVehicle, s.Unsupported)
	case s.Missing != "":
		return fmt.Errorf("%w: missing identifier %s", ErrNotReady, s.Missing)
	default:
		return fmt.Errorf("%w: identifiers not resolved", ErrNotReady)
	}
}

func (s Setup) String() string {
	if err := s.Err(); err != nil {
		return err.Error()
	}
	return "ready"
}

// Resolve checks every required identifier. The first absent one is
// recorded and resolution stops there.
func Resolve(sensors SensorPort, actuators ActuatorPort, req Requirements) Setup {
	for _, id := range req.Sensors {
		if !sensors.HasSensor(id) {
			return Setup{resolved: true, Missing: id}
		}
	}
	for _, id := range req.Commands {
		if !actuators.HasCommand(id) {
			return Setup{resolved: true, Missing: id}
		}
	}
	return ResolvedSetup()
}
