package core

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/librescoot/librefsm"

	"cockpit-service/internal/fsm"
)

// Ensure CockpitSystem implements fsm.SessionActions
var _ fsm.SessionActions = (*CockpitSystem)(nil)

// initFSM initializes and starts the session machine
func (s *CockpitSystem) initFSM(ctx context.Context) error {
	def := fsm.NewSessionDefinition(s)
	machine, err := def.Build()
	if err != nil {
		return err
	}
	s.machine = machine

	// the actions publish the session; a reload keeps the state and never
	// reaches this callback
	s.machine.OnStateChange(func(from, to librefsm.StateID) {
		s.mu.Lock()
		s.session = to
		s.mu.Unlock()

		s.logger.Infof("Session transition: %s -> %s", from, to)
	})

	if err := s.machine.Start(ctx); err != nil {
		return err
	}

	s.logger.Infof("librefsm session machine started")
	return nil
}

// sendEvent sends an event to the session machine and waits for it to be
// handled. Once the system context is done the machine no longer answers,
// so the wait gives up with the context's error.
func (s *CockpitSystem) sendEvent(event librefsm.EventID) error {
	if s.machine == nil {
		return fmt.Errorf("session machine not started")
	}
	ctx := s.context()
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- s.machine.SendSync(librefsm.Event{ID: event})
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// setSession records the session and publishes it.
func (s *CockpitSystem) setSession(id string, state librefsm.StateID) {
	s.mu.Lock()
	s.sessionID = id
	s.session = state
	s.mu.Unlock()

	s.publishSession(id, state)
}

func (s *CockpitSystem) publishSession(id string, state librefsm.StateID) {
	if err := s.redis.PublishSession(id, string(state)); err != nil {
		s.logger.Warnf("Failed to publish session: %v", err)
	}
	if s.mirror != nil {
		if err := s.mirror.PublishSession(id, string(state)); err != nil {
			s.logger.Warnf("Failed to mirror session: %v", err)
		}
	}
}

// === Transition Actions ===

// OnVehicleLoaded starts a new session. Every machine re-resolves its
// identifiers and resets on its next tick.
func (s *CockpitSystem) OnVehicleLoaded(c *librefsm.Context) error {
	id := uuid.NewString()
	s.logger.Debugf("FSM: OnVehicleLoaded")
	s.logger.Infof("Vehicle loaded, session %s", id)

	s.touchdown.RequestReload()
	s.throttle.RequestReload()
	s.brake.RequestReload()

	s.setSession(id, fsm.StateVehicleLoaded)
	return nil
}

func (s *CockpitSystem) OnVehicleUnloaded(c *librefsm.Context) error {
	s.logger.Debugf("FSM: OnVehicleUnloaded")

	s.touchdown.Interrupt()
	s.throttle.Interrupt()

	s.setSession("", fsm.StateNoVehicle)
	return nil
}

// === State Entry Actions ===

func (s *CockpitSystem) EnterCrashed(c *librefsm.Context) error {
	s.logger.Debugf("FSM: EnterCrashed")
	s.logger.Warnf("Vehicle crashed, abandoning active sequences")

	s.touchdown.Interrupt()
	s.throttle.Interrupt()

	s.mu.RLock()
	id := s.sessionID
	s.mu.RUnlock()
	s.setSession(id, fsm.StateVehicleCrashed)
	return nil
}
