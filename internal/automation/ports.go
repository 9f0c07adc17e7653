// Package automation runs the tick-driven cockpit automation machines
// against host telemetry and actuator commands.
package automation

// SensorPort reads host telemetry by identifier. Reads return the latest
// value cached from the host and never block; an unknown identifier reads
// as the zero value.
type SensorPort interface {
	HasSensor(id string) bool
	Float(id string) float64
	// FloatAt reads one element of an array sensor.
	FloatAt(id string, index int) float64
	Bool(id string) bool
	Text(id string) string
}

// ActuatorPort drives pulse-style host commands. Every Begin must be
// matched by an End of the same command.
type ActuatorPort interface {
	HasCommand(id string) bool
	Begin(id string) error
	End(id string) error
}

// Reporter carries short status messages to the pilot.
type Reporter interface {
	Report(message string) error
}

// Host telemetry identifiers
const (
	SensorHeadX              = "sim/graphics/view/pilots_head_x"
	SensorHeadY              = "sim/graphics/view/pilots_head_y"
	SensorHeadZ              = "sim/graphics/view/pilots_head_z"
	SensorHeadHeading        = "sim/graphics/view/pilots_head_psi"
	SensorHeadPitch          = "sim/graphics/view/pilots_head_the"
	SensorHeadRoll           = "sim/graphics/view/pilots_head_phi"
	SensorAnyWheelOnGround   = "sim/flightmodel/failures/onground_any"
	SensorAllWheelsOnGround  = "sim/flightmodel/failures/onground_all"
	SensorGearNormalForce    = "sim/flightmodel/forces/fnrml_gear"
	SensorNormalGForce       = "sim/flightmodel/forces/g_nrml"
	SensorTireVerticalForce  = "sim/flightmodel2/gear/tire_vertical_force_n_mtr"
	SensorVerticalSpeed      = "sim/flightmodel/position/local_vy"
	SensorFlightTime         = "sim/time/total_flight_time_sec"
	SensorThrottleRatio      = "sim/cockpit2/engine/actuators/throttle_ratio_all"
	SensorIndicatedAirspeed  = "sim/flightmodel/position/indicated_airspeed2"
	SensorFlapAngle          = "sim/flightmodel2/wing/flap1_deg"
	SensorGearDeployRatio    = "sim/flightmodel2/gear/deploy_ratio"
	SensorHeightAboveGround  = "sim/flightmodel2/position/y_agl"
	SensorVehicleDescription = "sim/aircraft/view/acf_descrip"
)

// Host command identifiers
const (
	CommandHeadDown      = "sim/general/down"
	CommandHeadUp        = "sim/general/up"
	CommandHeadDownFast  = "sim/general/down_fast"
	CommandHeadUpFast    = "sim/general/up_fast"
	CommandReverseThrust = "sim/engines/thrust_reverse_hold"
	CommandThrottleDown  = "sim/engines/throttle_down"
	CommandBrakesMax     = "sim/flight_controls/brakes_max"
)
