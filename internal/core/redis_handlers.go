package core

import (
	"context"
	"fmt"
	"time"

	"cockpit-service/internal/fsm"
	"cockpit-service/internal/types"
)

// commandHandler runs on the scheduler goroutine.
type commandHandler func(now time.Time) error

func (s *CockpitSystem) commandHandlers() map[types.Command]commandHandler {
	return map[types.Command]commandHandler{
		types.CmdThrottleEnable:      s.handleThrottleEnable,
		types.CmdThrottleStop:        s.handleThrottleStop,
		types.CmdTouchdownToggle:     s.handleTouchdownToggle,
		types.CmdTouchdownEnable:     s.handleTouchdownEnable(true),
		types.CmdTouchdownDisable:    s.handleTouchdownEnable(false),
		types.CmdParkingBrakeRelease: s.handleParkingBrakeRelease,
	}
}

// handleCommand queues a command from a trigger list or the panel. The
// outcome is reported to the pilot, so errors are only logged.
func (s *CockpitSystem) handleCommand(cmd types.Command) error {
	s.logger.Debugf("Handling command request: %s", cmd)
	handler, ok := s.handlers[cmd]
	if !ok {
		return fmt.Errorf("unknown command: %s", cmd)
	}
	return s.scheduler.Post(s.context(), func() {
		if err := handler(s.now()); err != nil {
			s.logger.Warnf("Command %s failed: %v", cmd, err)
		}
	})
}

// Execute runs a command on the scheduler goroutine and waits for its
// result.
func (s *CockpitSystem) Execute(ctx context.Context, cmd types.Command) error {
	s.logger.Debugf("Handling command request: %s", cmd)
	handler, ok := s.handlers[cmd]
	if !ok {
		return fmt.Errorf("unknown command: %s", cmd)
	}

	result := make(chan error, 1)
	if err := s.scheduler.Post(ctx, func() { result <- handler(s.now()) }); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *CockpitSystem) handleThrottleEnable(now time.Time) error {
	var err error
	s.throttleCtl.Do(now, func() { err = s.throttle.RequestEnable() })
	return err
}

func (s *CockpitSystem) handleThrottleStop(now time.Time) error {
	var err error
	s.throttleCtl.Do(now, func() { err = s.throttle.RequestStop() })
	return err
}

func (s *CockpitSystem) handleTouchdownToggle(now time.Time) error {
	s.touchdownCtl.Do(now, func() {
		s.logger.Infof("Touchdown motion toggled, enabled: %v", s.touchdown.Toggle())
	})
	s.refreshLamps()
	return nil
}

func (s *CockpitSystem) handleTouchdownEnable(enabled bool) commandHandler {
	return func(now time.Time) error {
		s.touchdownCtl.Do(now, func() { s.touchdown.SetEnabled(enabled) })
		s.refreshLamps()
		return nil
	}
}

func (s *CockpitSystem) handleParkingBrakeRelease(now time.Time) error {
	return s.brake.Release()
}

// handleLifecycle feeds a host lifecycle notification to the session
// machine.
func (s *CockpitSystem) handleLifecycle(event types.LifecycleEvent) error {
	s.logger.Debugf("Handling lifecycle event: %s", event)
	s.metrics.IncLifecycle(string(event))

	switch event {
	case types.VehicleLoaded:
		return s.sendEvent(fsm.EvVehicleLoaded)
	case types.VehicleUnloaded:
		return s.sendEvent(fsm.EvVehicleUnloaded)
	case types.VehicleCrashed:
		return s.sendEvent(fsm.EvVehicleCrashed)
	default:
		return fmt.Errorf("unknown lifecycle event: %s", event)
	}
}
