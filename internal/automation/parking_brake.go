package automation

import (
	"sync/atomic"

	"cockpit-service/internal/logger"
)

const (
	ReportBrakeReleased    = "Brake released"
	ReportBrakeUnavailable = "Parking brake command not available"
)

// ParkingBrake releases the parking brake with a single pulse of the
// maximum-brake command.
type ParkingBrake struct {
	sensors   SensorPort
	actuators ActuatorPort
	handle    *ActuatorHandle
	reporter  Reporter
	logger    *logger.Logger

	setup  Setup
	reload atomic.Bool
}

func NewParkingBrake(sensors SensorPort, actuators ActuatorPort, reporter Reporter, l *logger.Logger) *ParkingBrake {
	b := &ParkingBrake{
		sensors:   sensors,
		actuators: actuators,
		handle:    NewActuatorHandle(actuators),
		reporter:  reporter,
		logger:    l,
	}
	b.reload.Store(true)
	return b
}

// RequestReload re-resolves the brake command before the next release.
func (b *ParkingBrake) RequestReload() {
	b.reload.Store(true)
}

func (b *ParkingBrake) Actuator() *ActuatorHandle {
	return b.handle
}

// Release pulses the brake command and reports the result.
func (b *ParkingBrake) Release() error {
	if b.reload.Swap(false) {
		b.setup = Resolve(b.sensors, b.actuators, Requirements{Commands: []string{CommandBrakesMax}})
	}
	if !b.setup.Ready() {
		b.report(ReportBrakeUnavailable)
		return b.setup.Err()
	}
	if err := b.handle.Pulse(CommandBrakesMax); err != nil {
		b.logger.Errorf("Failed to release parking brake: %v", err)
		return err
	}
	b.logger.Infof("Parking brake released")
	b.report(ReportBrakeReleased)
	return nil
}

func (b *ParkingBrake) report(msg string) {
	if err := b.reporter.Report(msg); err != nil {
		b.logger.Warnf("Failed to report %q: %v", msg, err)
	}
}
