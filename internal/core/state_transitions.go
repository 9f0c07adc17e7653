package core

import (
	"time"

	"cockpit-service/internal/automation"
	"cockpit-service/internal/fsm"
	"cockpit-service/internal/hardware"
)

var (
	_ automation.Observer     = (*CockpitSystem)(nil)
	_ automation.TickObserver = (*CockpitSystem)(nil)
)

// StateChanged queues a machine state change for the host and the mirror.
func (s *CockpitSystem) StateChanged(machine string, from, to fsm.State) {
	s.logger.Infof("State transition %s: %s -> %s", machine, from, to)

	s.publisher.enqueue(func() {
		if err := s.redis.PublishMachineState(machine, string(to)); err != nil {
			s.logger.Errorf("Failed to publish state: %v", err)
		}
		if s.mirror != nil {
			if err := s.mirror.PublishMachineState(machine, string(to)); err != nil {
				s.logger.Warnf("Failed to mirror state: %v", err)
			}
		}
	})
	s.refreshLamps()
}

// Ticked keeps the lamps in step with readiness changes, which do not move
// a machine's state.
func (s *CockpitSystem) Ticked(machine string, elapsed time.Duration, ready bool) {
	s.refreshLamps()
}

// lampStates derives the panel lamps from the machines.
func (s *CockpitSystem) lampStates() map[string]bool {
	return map[string]bool{
		hardware.LampThrottleArmed:      s.throttle.State() != fsm.ThrottleWaitingUser,
		hardware.LampTouchdownEnabled:   s.touchdown.Enabled(),
		hardware.LampUnsupportedVehicle: s.throttle.Unsupported(),
	}
}

// refreshLamps writes the lamps that changed. Scheduler goroutine only.
func (s *CockpitSystem) refreshLamps() {
	if s.panel == nil {
		return
	}
	for name, on := range s.lampStates() {
		if last, ok := s.lamps[name]; ok && last == on {
			continue
		}
		if err := s.panel.SetLamp(name, on); err != nil {
			s.logger.Warnf("Failed to set lamp %s: %v", name, err)
			continue
		}
		s.lamps[name] = on
	}
}
