package automation

import (
	"fmt"
	"strings"

	"cockpit-service/internal/logger"
)

// fakeHost is an in-memory host: telemetry, commands and reports.
type fakeHost struct {
	floats   map[string]float64
	arrays   map[string][]float64
	bools    map[string]bool
	texts    map[string]string
	commands map[string]bool

	active  map[string]bool
	calls   []string
	reports []string
	failOn  string
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		floats:   map[string]float64{},
		arrays:   map[string][]float64{},
		bools:    map[string]bool{},
		texts:    map[string]string{},
		commands: map[string]bool{},
		active:   map[string]bool{},
	}
}

func (h *fakeHost) HasSensor(id string) bool {
	if _, ok := h.floats[id]; ok {
		return true
	}
	if _, ok := h.arrays[id]; ok {
		return true
	}
	if _, ok := h.bools[id]; ok {
		return true
	}
	_, ok := h.texts[id]
	return ok
}

func (h *fakeHost) Float(id string) float64 { return h.floats[id] }
func (h *fakeHost) Bool(id string) bool     { return h.bools[id] }
func (h *fakeHost) Text(id string) string   { return h.texts[id] }

func (h *fakeHost) FloatAt(id string, i int) float64 {
	a := h.arrays[id]
	if i < 0 || i >= len(a) {
		return 0
	}
	return a[i]
}

func (h *fakeHost) HasCommand(id string) bool { return h.commands[id] }

func (h *fakeHost) Begin(id string) error {
	if id == h.failOn {
		return fmt.Errorf("host rejected %s", id)
	}
	if h.active[id] {
		return fmt.Errorf("%s begun twice", id)
	}
	h.active[id] = true
	h.calls = append(h.calls, "begin "+id)
	return nil
}

func (h *fakeHost) End(id string) error {
	if !h.active[id] {
		return fmt.Errorf("%s ended while inactive", id)
	}
	delete(h.active, id)
	h.calls = append(h.calls, "end "+id)
	return nil
}

func (h *fakeHost) Report(msg string) error {
	h.reports = append(h.reports, msg)
	return nil
}

func (h *fakeHost) activeCount() int {
	return len(h.active)
}

func (h *fakeHost) countCalls(call string) int {
	n := 0
	for _, c := range h.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (h *fakeHost) reportsContaining(s string) int {
	n := 0
	for _, r := range h.reports {
		if strings.Contains(r, s) {
			n++
		}
	}
	return n
}

func testLogger() *logger.Logger {
	return logger.NewLogger(nil, logger.LogLevelDebug)
}

// touchdownHost has every touchdown identifier present, the vehicle
// parked on its gear with the flight settled.
func touchdownHost() *fakeHost {
	h := newFakeHost()
	for _, id := range []string{SensorHeadX, SensorHeadZ, SensorHeadHeading, SensorHeadPitch, SensorHeadRoll, SensorVerticalSpeed} {
		h.floats[id] = 0
	}
	h.floats[SensorHeadY] = 1.0
	h.floats[SensorFlightTime] = 10
	h.bools[SensorAnyWheelOnGround] = true
	h.bools[SensorAllWheelsOnGround] = true
	h.arrays[SensorTireVerticalForce] = []float64{1000, 2000, 2000}
	for _, id := range []string{CommandHeadDown, CommandHeadUp, CommandHeadDownFast, CommandHeadUpFast, CommandBrakesMax} {
		h.commands[id] = true
	}
	return h
}

// throttleHost is on final approach in a supported vehicle.
func throttleHost() *fakeHost {
	h := newFakeHost()
	h.texts[SensorVehicleDescription] = "X-Crafts ERJ 175"
	h.floats[SensorThrottleRatio] = 0.6
	h.floats[SensorIndicatedAirspeed] = 150
	h.floats[SensorHeightAboveGround] = 100
	h.arrays[SensorFlapAngle] = []float64{20, 20}
	h.arrays[SensorGearDeployRatio] = []float64{1, 1, 1}
	h.bools[SensorAllWheelsOnGround] = false
	h.commands[CommandThrottleDown] = true
	h.commands[CommandReverseThrust] = true
	return h
}
