package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/librescoot/librefsm"

	"cockpit-service/internal/automation"
	"cockpit-service/internal/clock"
	"cockpit-service/internal/fsm"
	"cockpit-service/internal/hardware"
	"cockpit-service/internal/logger"
	"cockpit-service/internal/messaging"
	"cockpit-service/internal/metrics"
	"cockpit-service/internal/types"
)

const machineParkingBrake = "parking-brake"

// Options carries the machine settings and the optional collaborators of a
// CockpitSystem. Nil Touchdown/Throttle select the defaults.
type Options struct {
	Touchdown *automation.TouchdownConfig
	Throttle  *automation.ThrottleConfig
	Profiles  []automation.Profile
	Clock     clock.Clock
	Metrics   *metrics.Collector
	Mirror    EventMirror
}

// Session is the vehicle session as seen by the session machine.
type Session struct {
	ID    string `json:"id,omitempty"`
	State string `json:"state"`
}

// Snapshot is the cockpit status served over HTTP.
type Snapshot struct {
	Session    Session             `json:"session"`
	Machines   []automation.Status `json:"machines"`
	LastReport string              `json:"last_report,omitempty"`
}

type CockpitSystem struct {
	logger  *logger.Logger
	redis   MessagingClient
	panel   PanelIO
	mirror  EventMirror
	metrics *metrics.Collector
	clock   clock.Clock

	touchdown    *automation.TouchdownMotion
	throttle     *automation.ThrottleManager
	brake        *automation.ParkingBrake
	touchdownCtl *automation.Controller
	throttleCtl  *automation.Controller
	scheduler    *automation.Scheduler
	handlers     map[types.Command]commandHandler
	machine      *librefsm.Machine
	publisher    *publisher

	// lamp cache, scheduler goroutine only
	lamps map[string]bool

	mu         sync.RWMutex
	ctx        context.Context
	sessionID  string
	session    librefsm.StateID
	lastReport string
}

// NewCockpitSystem builds the machines and wires them to the host bridge.
// panel may be nil when no button box is attached.
func NewCockpitSystem(redis MessagingClient, panel PanelIO, opts Options, l *logger.Logger) *CockpitSystem {
	tdCfg := automation.DefaultTouchdownConfig()
	if opts.Touchdown != nil {
		tdCfg = *opts.Touchdown
	}
	thCfg := automation.DefaultThrottleConfig()
	if opts.Throttle != nil {
		thCfg = *opts.Throttle
	}
	profiles := opts.Profiles
	if len(profiles) == 0 {
		profiles = automation.BuiltinProfiles
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}

	s := &CockpitSystem{
		logger:  l,
		redis:   redis,
		panel:   panel,
		mirror:  opts.Mirror,
		metrics: opts.Metrics,
		clock:   clk,
		lamps:   make(map[string]bool),
		ctx:     context.Background(),
		session: fsm.StateNoVehicle,
	}
	s.publisher = newPublisher(publishQueueSize, l.WithTag("publisher"))

	s.touchdown = automation.NewTouchdownMotion(tdCfg, redis, redis, s, l.WithTag("touchdown"))
	s.touchdown.SetLandingHook(s.handleLanding)
	s.throttle = automation.NewThrottleManager(thCfg, profiles, redis, redis, s, l.WithTag("throttle"))
	s.brake = automation.NewParkingBrake(redis, redis, s, l.WithTag("brake"))
	s.brake.Actuator().SetObserver(s.metrics.ActuatorObserver(machineParkingBrake))

	s.scheduler = automation.NewScheduler(clk, l.WithTag("scheduler"))
	s.touchdownCtl = s.addMachine(s.touchdown)
	s.throttleCtl = s.addMachine(s.throttle)
	s.handlers = s.commandHandlers()
	return s
}

func (s *CockpitSystem) addMachine(m automation.Machine) *automation.Controller {
	m.Actuator().SetObserver(s.metrics.ActuatorObserver(m.Name()))
	c := automation.NewController(m, s.logger.WithTag(m.Name()))
	if s.metrics != nil {
		c.AddObserver(s.metrics)
	}
	c.AddObserver(s)
	s.scheduler.Add(c)
	return c
}

// Start connects to the host, starts the session machine and the panel,
// then begins listening for lifecycle events and triggers. The machines
// only tick once Run is called.
func (s *CockpitSystem) Start(ctx context.Context) error {
	s.logger.Infof("Starting cockpit system")

	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.redis.SetCallbacks(messaging.Callbacks{
		LifecycleCallback: s.handleLifecycle,
		CommandCallback:   s.handleCommand,
	})
	if err := s.redis.Connect(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if err := s.initFSM(ctx); err != nil {
		return fmt.Errorf("failed to start session machine: %w", err)
	}

	if s.panel != nil {
		s.panel.SetCallback(s.handleCommand)
		if err := s.panel.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize panel: %w", err)
		}
	}

	for _, c := range s.scheduler.Controllers() {
		m := c.Machine()
		if err := s.redis.PublishMachineState(m.Name(), string(m.State())); err != nil {
			s.logger.Warnf("Failed to publish initial %s state: %v", m.Name(), err)
		}
	}

	// A vehicle already sitting in the simulator never sends a load event.
	if s.redis.Text(automation.SensorVehicleDescription) != "" {
		s.logger.Infof("Vehicle present at startup")
		if err := s.sendEvent(fsm.EvVehicleLoaded); err != nil {
			s.logger.Warnf("Failed to start session: %v", err)
		}
	}

	if err := s.redis.StartListening(); err != nil {
		return fmt.Errorf("failed to start Redis listeners: %w", err)
	}

	s.logger.Infof("Cockpit system started")
	return nil
}

// Run ticks the machines until ctx is cancelled. Host and mirror writes
// raised by the machines go out on a separate goroutine; the ones left
// queued by the final halt are flushed before Run returns.
func (s *CockpitSystem) Run(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.publisher.run(ctx)
	}()

	err := s.scheduler.Run(ctx)
	<-done
	s.publisher.drain()
	return err
}

// Shutdown releases the host connection, the mirror and the panel. Run must
// have returned first so no command is left active.
func (s *CockpitSystem) Shutdown() {
	s.logger.Infof("Shutting down cockpit system")
	if s.machine != nil {
		s.machine.Stop()
	}
	if s.panel != nil {
		for _, name := range []string{hardware.LampThrottleArmed, hardware.LampTouchdownEnabled, hardware.LampUnsupportedVehicle} {
			s.panel.SetLamp(name, false)
		}
		s.panel.Cleanup()
	}
	if s.mirror != nil {
		s.mirror.Close()
	}
	if err := s.redis.Close(); err != nil {
		s.logger.Warnf("Failed to close Redis client: %v", err)
	}
}

// Report implements automation.Reporter: the message is kept for the
// status snapshot and queued for the host and the mirror. Delivery failures
// are logged, never returned.
func (s *CockpitSystem) Report(msg string) error {
	s.mu.Lock()
	s.lastReport = msg
	s.mu.Unlock()

	s.metrics.IncReports()
	s.publisher.enqueue(func() {
		if err := s.redis.Report(msg); err != nil {
			s.logger.Warnf("Failed to report %q: %v", msg, err)
		}
		if s.mirror != nil {
			if err := s.mirror.PublishReport(msg); err != nil {
				s.logger.Warnf("Failed to mirror report: %v", err)
			}
		}
	})
	return nil
}

func (s *CockpitSystem) handleLanding(l automation.Landing) {
	s.metrics.ObserveLanding(l)
	s.publisher.enqueue(func() {
		if err := s.redis.PublishLanding(l); err != nil {
			s.logger.Warnf("Failed to publish landing: %v", err)
		}
		if s.mirror != nil {
			if err := s.mirror.PublishLanding(l); err != nil {
				s.logger.Warnf("Failed to mirror landing: %v", err)
			}
		}
	})
}

// Session returns the current vehicle session.
func (s *CockpitSystem) Session() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Session{ID: s.sessionID, State: string(s.session)}
}

// Status returns the latest snapshot of every machine. Safe from any
// goroutine.
func (s *CockpitSystem) Status() Snapshot {
	snap := Snapshot{Session: s.Session()}
	for _, c := range s.scheduler.Controllers() {
		snap.Machines = append(snap.Machines, c.Status())
	}
	s.mu.RLock()
	snap.LastReport = s.lastReport
	s.mu.RUnlock()
	return snap
}

func (s *CockpitSystem) context() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctx
}

func (s *CockpitSystem) now() time.Time {
	return s.clock.Now()
}
