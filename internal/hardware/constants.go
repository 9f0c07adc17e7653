package hardware

import "cockpit-service/internal/types"

const (
	EV_SYN = 0x00
	EV_KEY = 0x01

	KEY_F1 = 59
	KEY_F2 = 60
	KEY_F3 = 61
	KEY_F4 = 62
	KEY_F5 = 63
	KEY_F6 = 64

	// _IOW('E', 0x90, int)
	evIOCGRAB = 0x40044590

	Consumer = "cockpit-service"
)

// Panel lamps
const (
	LampThrottleArmed      = "throttle_armed"
	LampTouchdownEnabled   = "touchdown_enabled"
	LampUnsupportedVehicle = "unsupported_vehicle"
)

// DefaultButtons maps the button box keys to commands.
var DefaultButtons = map[uint16]types.Command{
	KEY_F1: types.CmdThrottleEnable,
	KEY_F2: types.CmdThrottleStop,
	KEY_F3: types.CmdTouchdownToggle,
	KEY_F4: types.CmdTouchdownEnable,
	KEY_F5: types.CmdTouchdownDisable,
	KEY_F6: types.CmdParkingBrakeRelease,
}
