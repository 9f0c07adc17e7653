package automation

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"

	"cockpit-service/internal/fsm"
	"cockpit-service/internal/logger"
)

// Report texts of the throttle manager
const (
	ReportAlreadyEnabled = "Already enabled"
	ReportNotReady       = "Throttle manager not ready, check the aircraft is known"
	ReportEnabled        = "Throttle manager enabled"
	ReportDisabled       = "Throttle manager disabled"
)

// ErrAlreadyEnabled is returned by an enable request outside waiting-user.
var ErrAlreadyEnabled = errors.New("throttle manager already enabled")

// ThrottleConfig holds the landing limits and poll intervals.
type ThrottleConfig struct {
	MaxAirspeed       float64 // knots
	MinFlapAngle      float64 // degrees
	MaxHeight         float64 // meters above ground
	ReverseFloor      float64 // knots
	GearDownRatio     float64
	CoarseInterval    time.Duration
	FineInterval      time.Duration
	AnnounceLifecycle bool
}

func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		MaxAirspeed:    160,
		MinFlapAngle:   18,
		MaxHeight:      152.4,
		ReverseFloor:   60,
		GearDownRatio:  1.0,
		CoarseInterval: 250 * time.Millisecond,
		FineInterval:   50 * time.Millisecond,
	}
}

// PreconditionError is one failed enable precondition.
type PreconditionError struct {
	Label string
	Value float64
	Limit float64
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s (%.1f, limit %.1f)", e.Label, e.Value, e.Limit)
}

// reportFormat joins failure labels for the pilot.
func reportFormat(errs []error) string {
	labels := make([]string, 0, len(errs))
	for _, err := range errs {
		var pe *PreconditionError
		if errors.As(err, &pe) {
			labels = append(labels, pe.Label)
			continue
		}
		labels = append(labels, err.Error())
	}
	return strings.Join(labels, ", ")
}

// ThrottleManager pulls the throttles to idle before touchdown and holds
// reverse thrust during the rollout until the airspeed floor.
type ThrottleManager struct {
	cfg       ThrottleConfig
	profiles  []Profile
	sensors   SensorPort
	actuators ActuatorPort
	handle    *ActuatorHandle
	reporter  Reporter
	logger    *logger.Logger

	state     fsm.State
	setup     Setup
	profile   Profile
	unhandled int

	deactivate atomic.Bool
	interrupt  atomic.Bool
	reload     atomic.Bool
}

func NewThrottleManager(cfg ThrottleConfig, profiles []Profile, sensors SensorPort, actuators ActuatorPort, reporter Reporter, l *logger.Logger) *ThrottleManager {
	m := &ThrottleManager{
		cfg:       cfg,
		profiles:  profiles,
		sensors:   sensors,
		actuators: actuators,
		handle:    NewActuatorHandle(actuators),
		reporter:  reporter,
		logger:    l,
		state:     fsm.ThrottleWaitingUser,
	}
	m.reload.Store(true)
	return m
}

func (m *ThrottleManager) Name() string                { return "throttle-manager" }
func (m *ThrottleManager) State() fsm.State            { return m.state }
func (m *ThrottleManager) IdleInterval() time.Duration { return m.cfg.CoarseInterval }
func (m *ThrottleManager) Actuator() *ActuatorHandle   { return m.handle }

// Profile returns the resolved vehicle profile.
func (m *ThrottleManager) Profile() (Profile, bool) {
	return m.profile, m.setup.Ready()
}

// Unsupported reports whether the loaded vehicle matched no profile.
func (m *ThrottleManager) Unsupported() bool {
	return m.setup.Unsupported != ""
}

// Ready reports whether the last resolution succeeded.
func (m *ThrottleManager) Ready() bool {
	return m.setup.Ready()
}

// RequestReload asks for profile resolution on the next tick. Safe from
// any goroutine.
func (m *ThrottleManager) RequestReload() {
	m.reload.Store(true)
}

// RequestDeactivation asks the manager to stop on its next tick. Safe from
// any goroutine.
func (m *ThrottleManager) RequestDeactivation() {
	m.deactivate.Store(true)
}

// Interrupt cancels the sequence on the next tick after a crash or unload.
// Safe from any goroutine.
func (m *ThrottleManager) Interrupt() {
	m.interrupt.Store(true)
}

func (m *ThrottleManager) Halt(reason string) {
	m.endActive()
	m.setState(fsm.ThrottleWaitingUser, reason)
}

// RequestEnable starts the landing sequence when every precondition holds.
// Failures are reported and leave the state untouched.
func (m *ThrottleManager) RequestEnable() error {
	if !m.setup.Ready() {
		m.report(ReportNotReady)
		return m.setup.Err()
	}
	if m.state != fsm.ThrottleWaitingUser {
		m.report(ReportAlreadyEnabled)
		return ErrAlreadyEnabled
	}
	if err := m.CheckPreconditions(); err != nil {
		m.report(err.Error())
		return err
	}

	m.deactivate.Store(false)
	m.interrupt.Store(false)
	m.setState(fsm.ThrottleStarting, "enabled")
	if m.cfg.AnnounceLifecycle {
		m.report(ReportEnabled)
	}
	return nil
}

// RequestStop raises the deactivation flag when a sequence is running.
func (m *ThrottleManager) RequestStop() error {
	if !m.setup.Ready() {
		m.report(ReportNotReady)
		return m.setup.Err()
	}
	if m.state == fsm.ThrottleWaitingUser {
		return nil
	}
	m.RequestDeactivation()
	return nil
}

// CheckPreconditions returns every failed landing precondition, in the
// order airspeed, flaps, gear, height. The error text lists their labels.
func (m *ThrottleManager) CheckPreconditions() error {
	var result *multierror.Error
	p := m.profile

	if ias := m.sensors.Float(p.IndicatedAirspeed); ias > m.cfg.MaxAirspeed {
		result = multierror.Append(result, &PreconditionError{Label: "Airspeed too high", Value: ias, Limit: m.cfg.MaxAirspeed})
	}
	if flaps := m.sensors.FloatAt(p.FlapAngle, 0); flaps < m.cfg.MinFlapAngle {
		result = multierror.Append(result, &PreconditionError{Label: "Flaps too low", Value: flaps, Limit: m.cfg.MinFlapAngle})
	}
	if gear := m.sensors.FloatAt(p.GearDeployRatio, 0); gear != m.cfg.GearDownRatio {
		result = multierror.Append(result, &PreconditionError{Label: "Gear not down", Value: gear, Limit: m.cfg.GearDownRatio})
	}
	if agl := m.sensors.Float(p.HeightAboveGround); agl > m.cfg.MaxHeight {
		result = multierror.Append(result, &PreconditionError{Label: "Altitude too high", Value: agl, Limit: m.cfg.MaxHeight})
	}

	if result != nil {
		result.ErrorFormat = reportFormat
	}
	return result.ErrorOrNil()
}

func (m *ThrottleManager) Sync(now time.Time) Setup {
	if m.reload.Swap(false) {
		m.endActive()
		m.setState(fsm.ThrottleWaitingUser, "vehicle loaded")
		m.deactivate.Store(false)
		m.interrupt.Store(false)
		m.setup = m.resolve()
	}
	return m.setup
}

func (m *ThrottleManager) resolve() Setup {
	if !m.sensors.HasSensor(SensorVehicleDescription) {
		return Setup{resolved: true, Missing: SensorVehicleDescription}
	}
	desc := m.sensors.Text(SensorVehicleDescription)
	p, ok := MatchProfile(m.profiles, desc)
	if !ok {
		m.profile = Profile{}
		return UnsupportedSetup(desc)
	}
	m.profile = p
	setup := Resolve(m.sensors, m.actuators, p.Requirements())
	if setup.Ready() {
		m.logger.Infof("Vehicle profile %s", p.Name)
	}
	return setup
}

func (m *ThrottleManager) Step(now time.Time) time.Duration {
	deactivate := m.deactivate.Swap(false)
	reason := "deactivated"
	if m.interrupt.Swap(false) {
		deactivate = true
		reason = "interrupted"
	}
	if deactivate && m.state != fsm.ThrottleWaitingUser {
		m.endActive()
		m.setState(fsm.ThrottleWaitingUser, reason)
		if m.cfg.AnnounceLifecycle {
			m.report(ReportDisabled)
		}
		return m.interval()
	}

	p := m.profile
	switch m.state {
	case fsm.ThrottleWaitingUser:
	case fsm.ThrottleStarting:
		if m.sensors.Float(p.ThrottleRatio) > 0 {
			m.setState(fsm.ThrottleThrottlingDown, "throttle above idle")
		} else {
			m.setState(fsm.ThrottleWaitingTouchdown, "throttle at idle")
		}
	case fsm.ThrottleThrottlingDown:
		if err := m.handle.Begin(p.ThrottleDown); err != nil {
			m.fail(err)
			break
		}
		m.setState(fsm.ThrottleWaitingIdle, "reducing throttle")
	case fsm.ThrottleWaitingIdle:
		if m.sensors.Float(p.ThrottleRatio) <= 0 {
			m.endActive()
			m.setState(fsm.ThrottleWaitingTouchdown, "throttle at idle")
		}
	case fsm.ThrottleWaitingTouchdown:
		if m.sensors.Bool(p.AllWheelsOnGround) {
			m.setState(fsm.ThrottleApplyingReverse, "all wheels on ground")
		}
	case fsm.ThrottleApplyingReverse:
		if m.sensors.Float(p.IndicatedAirspeed) <= m.cfg.ReverseFloor {
			m.setState(fsm.ThrottleWaitingUser, "below reverse floor")
			break
		}
		if err := m.handle.Begin(p.ReverseThrust); err != nil {
			m.fail(err)
			break
		}
		m.setState(fsm.ThrottleWaitingEndOfReverse, "reverse thrust")
	case fsm.ThrottleWaitingEndOfReverse:
		if m.sensors.Float(p.IndicatedAirspeed) <= m.cfg.ReverseFloor {
			m.endActive()
			m.setState(fsm.ThrottleWaitingUser, "below reverse floor")
		}
	default:
		m.unhandled++
		m.logger.Errorf("Unhandled state %q", m.state)
		m.endActive()
		m.setState(fsm.ThrottleWaitingUser, "unhandled state")
	}
	return m.interval()
}

func (m *ThrottleManager) interval() time.Duration {
	if m.state == fsm.ThrottleWaitingUser {
		return m.cfg.CoarseInterval
	}
	return m.cfg.FineInterval
}

func (m *ThrottleManager) fail(err error) {
	m.logger.Errorf("%v", err)
	m.endActive()
	m.setState(fsm.ThrottleWaitingUser, "actuator failure")
}

func (m *ThrottleManager) endActive() {
	if err := m.handle.End(); err != nil {
		m.logger.Errorf("%v", err)
	}
}

func (m *ThrottleManager) report(msg string) {
	if m.reporter == nil {
		return
	}
	if err := m.reporter.Report(msg); err != nil {
		m.logger.Warnf("Failed to report %q: %v", msg, err)
	}
}

func (m *ThrottleManager) setState(to fsm.State, reason string) {
	if m.state == to {
		return
	}
	m.logger.Infof("%s -> %s (%s)", m.state, to, reason)
	m.state = to
}

// Details implements Detailer.
func (m *ThrottleManager) Details(now time.Time) map[string]any {
	if !m.setup.Ready() {
		return nil
	}
	return map[string]any{"profile": m.profile.Name}
}
