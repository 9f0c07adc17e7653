package automation

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"cockpit-service/internal/fsm"
	"cockpit-service/internal/logger"
	"cockpit-service/internal/physics"
	"cockpit-service/internal/types"
)

// TouchdownConfig tunes the touchdown motion machine.
type TouchdownConfig struct {
	Enabled bool
	// SettleTime is the flight time after load before the machine arms,
	// letting the vehicle drop onto its gear.
	SettleTime     time.Duration
	CoarseInterval time.Duration
	FineInterval   time.Duration
	// NoseBump is the head travel in meters when the nose gear comes down.
	NoseBump     float64
	FastMotion   bool
	AnnounceRate bool
}

func DefaultTouchdownConfig() TouchdownConfig {
	return TouchdownConfig{
		Enabled:        true,
		SettleTime:     3 * time.Second,
		CoarseInterval: 250 * time.Millisecond,
		FineInterval:   5 * time.Millisecond,
		NoseBump:       0.005,
	}
}

// Landing records one touchdown.
type Landing struct {
	Time        time.Time `json:"time"`
	DescentRate float64   `json:"descent_rate"`
	Amplitude   float64   `json:"amplitude"`
	Fast        bool      `json:"fast"`
}

// TouchdownMotion moves the pilot's head down and back up when the gear
// touches the ground, scaled by the descent rate.
type TouchdownMotion struct {
	cfg       TouchdownConfig
	sensors   SensorPort
	actuators ActuatorPort
	handle    *ActuatorHandle
	reporter  Reporter
	logger    *logger.Logger
	onLanding func(Landing)

	state   fsm.State
	setup   Setup
	enabled bool

	reference     types.Pose
	haveReference bool
	target        float64
	downCommand   string
	upCommand     string

	lastFlightTime float64
	haveFlightTime bool
	landing        *Landing
	bounce         physics.BounceTrajectory
	unhandled      int

	interrupt atomic.Bool
	reload    atomic.Bool
}

func NewTouchdownMotion(cfg TouchdownConfig, sensors SensorPort, actuators ActuatorPort, reporter Reporter, l *logger.Logger) *TouchdownMotion {
	m := &TouchdownMotion{
		cfg:         cfg,
		sensors:     sensors,
		actuators:   actuators,
		handle:      NewActuatorHandle(actuators),
		reporter:    reporter,
		logger:      l,
		state:       fsm.TouchdownIdle,
		enabled:     cfg.Enabled,
		downCommand: CommandHeadDown,
		upCommand:   CommandHeadUp,
	}
	m.reload.Store(true)
	return m
}

// Requirements lists the identifiers the machine cannot run without.
func (m *TouchdownMotion) Requirements() Requirements {
	req := Requirements{
		Sensors: []string{
			SensorHeadX, SensorHeadY, SensorHeadZ,
			SensorHeadHeading, SensorHeadPitch, SensorHeadRoll,
			SensorAnyWheelOnGround, SensorAllWheelsOnGround,
			SensorTireVerticalForce, SensorVerticalSpeed, SensorFlightTime,
		},
		Commands: []string{CommandHeadDown, CommandHeadUp},
	}
	if m.cfg.FastMotion {
		req.Commands = append(req.Commands, CommandHeadDownFast, CommandHeadUpFast)
	}
	return req
}

// SetLandingHook installs a callback run on every touchdown.
func (m *TouchdownMotion) SetLandingHook(fn func(Landing)) {
	m.onLanding = fn
}

func (m *TouchdownMotion) Name() string                { return "touchdown-motion" }
func (m *TouchdownMotion) State() fsm.State            { return m.state }
func (m *TouchdownMotion) IdleInterval() time.Duration { return m.cfg.CoarseInterval }
func (m *TouchdownMotion) Actuator() *ActuatorHandle   { return m.handle }
func (m *TouchdownMotion) Enabled() bool               { return m.enabled }

// Reference returns the captured reference pose, if any.
func (m *TouchdownMotion) Reference() (types.Pose, bool) {
	return m.reference, m.haveReference
}

// LastLanding returns the most recent touchdown this session.
func (m *TouchdownMotion) LastLanding() (Landing, bool) {
	if m.landing == nil {
		return Landing{}, false
	}
	return *m.landing, true
}

// RequestReload asks for a session reset on the next tick. Safe from any
// goroutine.
func (m *TouchdownMotion) RequestReload() {
	m.reload.Store(true)
}

// Interrupt asks the machine to abandon the current motion and re-arm on
// the next tick. Safe from any goroutine.
func (m *TouchdownMotion) Interrupt() {
	m.interrupt.Store(true)
}

// SetEnabled switches the motion on or off. Disabling ends any active
// command and returns to idle.
func (m *TouchdownMotion) SetEnabled(enabled bool) {
	if m.enabled == enabled {
		return
	}
	m.enabled = enabled
	if enabled {
		m.logger.Infof("Touchdown motion enabled")
		return
	}
	m.endActive()
	m.setState(fsm.TouchdownIdle, "disabled")
	m.logger.Infof("Touchdown motion disabled")
}

// Toggle flips the enabled flag and returns the new value.
func (m *TouchdownMotion) Toggle() bool {
	m.SetEnabled(!m.enabled)
	return m.enabled
}

func (m *TouchdownMotion) Halt(reason string) {
	m.endActive()
	m.setState(fsm.TouchdownIdle, reason)
}

func (m *TouchdownMotion) Sync(now time.Time) Setup {
	if m.reload.Swap(false) {
		m.setup = Resolve(m.sensors, m.actuators, m.Requirements())
		m.reset("vehicle loaded")
		m.haveFlightTime = false
	}
	if !m.setup.Ready() {
		return m.setup
	}

	flightTime := m.sensors.Float(SensorFlightTime)
	if m.haveFlightTime && flightTime < m.lastFlightTime {
		m.reset(fmt.Sprintf("flight time went back from %.1fs to %.1fs", m.lastFlightTime, flightTime))
	}
	m.lastFlightTime = flightTime
	m.haveFlightTime = true
	return m.setup
}

// reset ends any active command, forgets the reference pose and returns to
// idle.
func (m *TouchdownMotion) reset(reason string) {
	m.endActive()
	m.haveReference = false
	m.reference = types.Pose{}
	m.landing = nil
	m.setState(fsm.TouchdownIdle, reason)
}

func (m *TouchdownMotion) Step(now time.Time) time.Duration {
	if !m.enabled {
		return m.cfg.CoarseInterval
	}

	if m.state != fsm.TouchdownIdle && m.interrupt.Swap(false) {
		m.endActive()
		m.setState(fsm.TouchdownArmed, "interrupted")
		return m.cfg.CoarseInterval
	}

	switch m.state {
	case fsm.TouchdownIdle:
		return m.stepIdle()
	case fsm.TouchdownArmed:
		return m.stepArmed()
	case fsm.TouchdownWaitingLanding:
		return m.stepWaitingLanding(now)
	case fsm.TouchdownBounceDown:
		return m.stepBounceDown()
	case fsm.TouchdownMovingUp:
		return m.stepMovingUp()
	case fsm.TouchdownRestoring:
		return m.stepRestoring()
	case fsm.TouchdownWaitingNoseGear:
		return m.stepWaitingNoseGear()
	default:
		m.unhandled++
		m.logger.Errorf("Unhandled state %q", m.state)
		m.endActive()
		m.setState(fsm.TouchdownIdle, "unhandled state")
		return m.cfg.CoarseInterval
	}
}

func (m *TouchdownMotion) stepIdle() time.Duration {
	if m.sensors.Float(SensorFlightTime) >= m.cfg.SettleTime.Seconds() {
		m.interrupt.Store(false)
		m.setState(fsm.TouchdownArmed, "settled")
	}
	return m.cfg.CoarseInterval
}

func (m *TouchdownMotion) stepArmed() time.Duration {
	if m.sensors.Bool(SensorAnyWheelOnGround) {
		return m.cfg.CoarseInterval
	}
	if !m.haveReference {
		m.reference = m.readPose()
		m.haveReference = true
		m.logger.Debugf("Reference pose captured: %+v", m.reference)
	}
	m.setState(fsm.TouchdownWaitingLanding, "liftoff")
	return m.cfg.CoarseInterval
}

func (m *TouchdownMotion) stepWaitingLanding(now time.Time) time.Duration {
	if !m.sensors.Bool(SensorAnyWheelOnGround) {
		return m.cfg.CoarseInterval
	}

	rate := math.Abs(m.sensors.Float(SensorVerticalSpeed))
	amplitude := physics.ShakeAmplitude(rate)
	m.logDiagnostics(rate)

	fast := m.cfg.FastMotion && rate > physics.HardLandingRate
	if fast {
		m.downCommand, m.upCommand = CommandHeadDownFast, CommandHeadUpFast
	} else {
		m.downCommand, m.upCommand = CommandHeadDown, CommandHeadUp
	}

	m.landing = &Landing{Time: now, DescentRate: rate, Amplitude: amplitude, Fast: fast}
	m.bounce = physics.NewBounceTrajectory(rate, now)

	if amplitude <= 0 {
		m.setState(fsm.TouchdownArmed, "touchdown without descent")
		m.announceLanding()
		return m.cfg.CoarseInterval
	}

	m.target = m.reference.Y - amplitude
	m.logger.Infof("Touchdown at %.2f m/s, amplitude %.3f m, target %.3f", rate, amplitude, m.target)
	next := m.beginDown("touchdown")
	m.announceLanding()
	return next
}

// announceLanding runs once the head command is out, so listeners never
// delay the bounce.
func (m *TouchdownMotion) announceLanding() {
	if m.onLanding != nil {
		m.onLanding(*m.landing)
	}
	if m.cfg.AnnounceRate {
		m.report(fmt.Sprintf("%.1f meters per second", m.landing.DescentRate))
	}
}

func (m *TouchdownMotion) beginDown(reason string) time.Duration {
	if err := m.handle.Begin(m.downCommand); err != nil {
		m.logger.Errorf("Failed to move head down: %v", err)
		m.endActive()
		m.setState(fsm.TouchdownArmed, "actuator failure")
		return m.cfg.CoarseInterval
	}
	m.setState(fsm.TouchdownBounceDown, reason)
	return m.cfg.FineInterval
}

func (m *TouchdownMotion) stepBounceDown() time.Duration {
	if m.sensors.Float(SensorHeadY) > m.target {
		return m.cfg.FineInterval
	}
	m.endActive()
	m.setState(fsm.TouchdownMovingUp, "target reached")
	return m.cfg.FineInterval
}

func (m *TouchdownMotion) stepMovingUp() time.Duration {
	if err := m.handle.Begin(m.upCommand); err != nil {
		m.logger.Errorf("Failed to move head up: %v", err)
		m.endActive()
		m.setState(fsm.TouchdownArmed, "actuator failure")
		return m.cfg.CoarseInterval
	}
	m.setState(fsm.TouchdownRestoring, "moving up")
	return m.cfg.FineInterval
}

func (m *TouchdownMotion) stepRestoring() time.Duration {
	if m.sensors.Float(SensorHeadY) < m.reference.Y {
		return m.cfg.FineInterval
	}
	m.endActive()

	if m.sensors.FloatAt(SensorTireVerticalForce, 0) == 0 {
		m.setState(fsm.TouchdownWaitingNoseGear, "nose gear up")
		return m.cfg.CoarseInterval
	}
	m.setState(fsm.TouchdownArmed, "position restored")
	return m.cfg.CoarseInterval
}

func (m *TouchdownMotion) stepWaitingNoseGear() time.Duration {
	if !m.sensors.Bool(SensorAnyWheelOnGround) {
		m.setState(fsm.TouchdownWaitingLanding, "bounced off the runway")
		return m.cfg.CoarseInterval
	}
	if !m.sensors.Bool(SensorAllWheelsOnGround) {
		return m.cfg.CoarseInterval
	}
	m.target = m.reference.Y - m.cfg.NoseBump
	return m.beginDown("nose gear down")
}

func (m *TouchdownMotion) readPose() types.Pose {
	return types.Pose{
		X:       m.sensors.Float(SensorHeadX),
		Y:       m.sensors.Float(SensorHeadY),
		Z:       m.sensors.Float(SensorHeadZ),
		Heading: m.sensors.Float(SensorHeadHeading),
		Pitch:   m.sensors.Float(SensorHeadPitch),
		Roll:    m.sensors.Float(SensorHeadRoll),
	}
}

func (m *TouchdownMotion) logDiagnostics(rate float64) {
	if m.logger.Level() < logger.LogLevelDebug {
		return
	}
	m.logger.Debugf("Descent rate %.3f m/s", rate)
	if m.sensors.HasSensor(SensorGearNormalForce) {
		m.logger.Debugf("Gear normal force %.1f N", m.sensors.Float(SensorGearNormalForce))
	}
	if m.sensors.HasSensor(SensorNormalGForce) {
		m.logger.Debugf("Normal load %.2f g", m.sensors.Float(SensorNormalGForce))
	}
	for i, name := range []string{"nose", "left", "right"} {
		m.logger.Debugf("Tire vertical force %s %.1f N/m", name, m.sensors.FloatAt(SensorTireVerticalForce, i))
	}
}

func (m *TouchdownMotion) endActive() {
	if err := m.handle.End(); err != nil {
		m.logger.Errorf("%v", err)
	}
}

func (m *TouchdownMotion) report(msg string) {
	if m.reporter == nil {
		return
	}
	if err := m.reporter.Report(msg); err != nil {
		m.logger.Warnf("Failed to report %q: %v", msg, err)
	}
}

func (m *TouchdownMotion) setState(to fsm.State, reason string) {
	if m.state == to {
		return
	}
	m.logger.Infof("%s -> %s (%s)", m.state, to, reason)
	m.state = to
}

// Details implements Detailer.
func (m *TouchdownMotion) Details(now time.Time) map[string]any {
	d := map[string]any{"enabled": m.enabled}
	if m.haveReference {
		d["reference"] = m.reference
	}
	if m.landing != nil {
		d["last_landing"] = *m.landing
		d["expected_offset"] = m.bounce.Offset(now)
	}
	return d
}
