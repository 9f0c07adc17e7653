package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/librescoot/librefsm"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"cockpit-service/internal/automation"
	"cockpit-service/internal/clock"
	"cockpit-service/internal/fsm"
	"cockpit-service/internal/hardware"
	"cockpit-service/internal/logger"
	"cockpit-service/internal/messaging"
	"cockpit-service/internal/metrics"
	"cockpit-service/internal/types"
)

var t0 = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// Mock MessagingClient
type mockMessagingClient struct {
	mu        sync.Mutex
	callbacks messaging.Callbacks

	floats   map[string]float64
	arrays   map[string][]float64
	bools    map[string]bool
	texts    map[string]string
	commands map[string]bool

	// Track method calls
	calls             []string
	reports           []string
	publishedStates   []string
	publishedLandings []automation.Landing
	publishedSessions []Session
	listening         bool
	closed            bool
}

func newMockMessagingClient() *mockMessagingClient {
	m := &mockMessagingClient{
		floats:   map[string]float64{},
		arrays:   map[string][]float64{},
		bools:    map[string]bool{},
		texts:    map[string]string{},
		commands: map[string]bool{},
	}
	// supported vehicle on final approach
	m.texts[automation.SensorVehicleDescription] = "X-Crafts ERJ 175"
	m.floats[automation.SensorThrottleRatio] = 0.6
	m.floats[automation.SensorIndicatedAirspeed] = 150
	m.floats[automation.SensorHeightAboveGround] = 100
	m.arrays[automation.SensorFlapAngle] = []float64{20, 20}
	m.arrays[automation.SensorGearDeployRatio] = []float64{1, 1, 1}
	m.bools[automation.SensorAllWheelsOnGround] = false
	m.bools[automation.SensorAnyWheelOnGround] = false
	for _, id := range []string{
		automation.SensorHeadX, automation.SensorHeadY, automation.SensorHeadZ,
		automation.SensorHeadHeading, automation.SensorHeadPitch, automation.SensorHeadRoll,
		automation.SensorVerticalSpeed, automation.SensorFlightTime,
	} {
		m.floats[id] = 0
	}
	m.arrays[automation.SensorTireVerticalForce] = []float64{0, 0, 0}
	for _, id := range []string{
		automation.CommandHeadDown, automation.CommandHeadUp,
		automation.CommandThrottleDown, automation.CommandReverseThrust,
		automation.CommandBrakesMax,
	} {
		m.commands[id] = true
	}
	return m
}

func (m *mockMessagingClient) SetCallbacks(callbacks messaging.Callbacks) { m.callbacks = callbacks }
func (m *mockMessagingClient) Connect() error                             { return nil }

func (m *mockMessagingClient) StartListening() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listening = true
	return nil
}

func (m *mockMessagingClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockMessagingClient) HasSensor(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, f := m.floats[id]
	_, a := m.arrays[id]
	_, b := m.bools[id]
	_, t := m.texts[id]
	return f || a || b || t
}

func (m *mockMessagingClient) Float(id string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.floats[id]
}

func (m *mockMessagingClient) FloatAt(id string, i int) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.arrays[id]
	if i < 0 || i >= len(a) {
		return 0
	}
	return a[i]
}

func (m *mockMessagingClient) Bool(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bools[id]
}

func (m *mockMessagingClient) Text(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.texts[id]
}

func (m *mockMessagingClient) HasCommand(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commands[id]
}

func (m *mockMessagingClient) Begin(id string) error { return m.record("begin " + id) }
func (m *mockMessagingClient) End(id string) error   { return m.record("end " + id) }

func (m *mockMessagingClient) record(call string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	return nil
}

func (m *mockMessagingClient) Report(msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, msg)
	return nil
}

func (m *mockMessagingClient) PublishMachineState(machine string, state string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishedStates = append(m.publishedStates, machine+"="+state)
	return nil
}

func (m *mockMessagingClient) PublishLanding(l automation.Landing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishedLandings = append(m.publishedLandings, l)
	return nil
}

func (m *mockMessagingClient) PublishSession(id string, state string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishedSessions = append(m.publishedSessions, Session{ID: id, State: state})
	return nil
}

func (m *mockMessagingClient) setFloat(id string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.floats[id] = v
}

func (m *mockMessagingClient) setBool(id string, v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bools[id] = v
}

func (m *mockMessagingClient) sessions() []Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Session(nil), m.publishedSessions...)
}

func (m *mockMessagingClient) landings() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.publishedLandings)
}

func (m *mockMessagingClient) setText(id, v string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts[id] = v
}

func (m *mockMessagingClient) snapshotCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockMessagingClient) hasState(entry string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.publishedStates {
		if s == entry {
			return true
		}
	}
	return false
}

// Mock EventMirror
type mockMirror struct {
	mu       sync.Mutex
	reports  []string
	states   []string
	landings int
	closed   bool

	// release, when set, holds PublishLanding until it is closed
	release chan struct{}
}

func (m *mockMirror) PublishReport(msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, msg)
	return nil
}

func (m *mockMirror) PublishMachineState(machine, state string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, machine+"="+state)
	return nil
}

func (m *mockMirror) PublishLanding(l automation.Landing) error {
	if m.release != nil {
		<-m.release
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.landings++
	return nil
}

func (m *mockMirror) landingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.landings
}

func (m *mockMirror) PublishSession(id, state string) error { return nil }
func (m *mockMirror) Close()                                { m.closed = true }

// Mock PanelIO
type mockPanel struct {
	lamps       map[string]bool
	lampWrites  int
	callback    hardware.ButtonCallback
	initialized bool
	cleanedUp   bool
}

func newMockPanel() *mockPanel {
	return &mockPanel{lamps: make(map[string]bool)}
}

func (p *mockPanel) Initialize() error                      { p.initialized = true; return nil }
func (p *mockPanel) Cleanup()                               { p.cleanedUp = true }
func (p *mockPanel) SetCallback(cb hardware.ButtonCallback) { p.callback = cb }
func (p *mockPanel) SetLamp(name string, on bool) error {
	p.lamps[name] = on
	p.lampWrites++
	return nil
}

// Test helper
type testSystem struct {
	*CockpitSystem
	redis   *mockMessagingClient
	panel   *mockPanel
	mirror  *mockMirror
	metrics *metrics.Collector
	clock   *clock.Manual
}

func newTestCockpitSystem(t *testing.T) *testSystem {
	t.Helper()
	l := logger.NewLogger(nil, logger.LogLevelError)
	collector, err := metrics.NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	ts := &testSystem{
		redis:   newMockMessagingClient(),
		panel:   newMockPanel(),
		mirror:  &mockMirror{},
		metrics: collector,
		clock:   clock.NewManual(t0),
	}
	ts.CockpitSystem = NewCockpitSystem(ts.redis, ts.panel, Options{
		Clock:   ts.clock,
		Metrics: collector,
		Mirror:  ts.mirror,
	}, l)
	return ts
}

// tick advances the clock, runs every due machine and flushes the writes
// they queued.
func (ts *testSystem) tick(d time.Duration) {
	ts.clock.Advance(d)
	ts.scheduler.RunDue(ts.clock.Now())
	ts.publisher.drain()
}

func (ts *testSystem) run(t *testing.T, cmd types.Command) error {
	t.Helper()
	handler, ok := ts.handlers[cmd]
	if !ok {
		t.Fatalf("no handler for %s", cmd)
	}
	err := handler(ts.clock.Now())
	ts.publisher.drain()
	return err
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// ===== Construction =====

func TestNewCockpitSystem(t *testing.T) {
	ts := newTestCockpitSystem(t)

	controllers := ts.scheduler.Controllers()
	if len(controllers) != 2 {
		t.Fatalf("controllers = %d, want 2", len(controllers))
	}
	if controllers[0].Machine().Name() != "touchdown-motion" || controllers[1].Machine().Name() != "throttle-manager" {
		t.Errorf("tick order = %s, %s", controllers[0].Machine().Name(), controllers[1].Machine().Name())
	}
	if got := ts.Session().State; got != string(fsm.StateNoVehicle) {
		t.Errorf("session state = %s, want %s", got, fsm.StateNoVehicle)
	}
}

func TestCommandHandlersCoverEveryCommand(t *testing.T) {
	ts := newTestCockpitSystem(t)
	for _, cmd := range types.Commands {
		if _, ok := ts.handlers[cmd]; !ok {
			t.Errorf("no handler for %s", cmd)
		}
	}
	if err := ts.handleCommand(types.Command("throttle-manager:launch")); err == nil {
		t.Error("Expected error for unknown command")
	}
}

// ===== Throttle manager =====

func TestThrottleEnablePublishesStateAndLamp(t *testing.T) {
	ts := newTestCockpitSystem(t)
	ts.tick(0)

	if err := ts.run(t, types.CmdThrottleEnable); err != nil {
		t.Fatalf("enable failed: %v", err)
	}
	if !ts.redis.hasState("throttle-manager=starting") {
		t.Errorf("published states = %v", ts.redis.publishedStates)
	}
	if len(ts.mirror.states) == 0 || ts.mirror.states[len(ts.mirror.states)-1] != "throttle-manager=starting" {
		t.Errorf("mirrored states = %v", ts.mirror.states)
	}
	if !ts.panel.lamps[hardware.LampThrottleArmed] {
		t.Error("Expected throttle armed lamp on")
	}

	// starting runs on the next coarse tick, then throttling-down
	ts.tick(250 * time.Millisecond)
	ts.tick(50 * time.Millisecond)
	calls := ts.redis.snapshotCalls()
	if len(calls) != 1 || calls[0] != "begin "+automation.CommandThrottleDown {
		t.Errorf("calls = %v", calls)
	}
	if got := testutil.ToFloat64(ts.metrics.ActuatorActive.WithLabelValues("throttle-manager", automation.CommandThrottleDown)); got != 1 {
		t.Errorf("active gauge = %v, want 1", got)
	}

	if err := ts.run(t, types.CmdThrottleStop); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	ts.tick(50 * time.Millisecond)
	calls = ts.redis.snapshotCalls()
	if calls[len(calls)-1] != "end "+automation.CommandThrottleDown {
		t.Errorf("calls = %v", calls)
	}
	if ts.panel.lamps[hardware.LampThrottleArmed] {
		t.Error("Expected throttle armed lamp off after stop")
	}
}

func TestThrottleEnableReportsPreconditions(t *testing.T) {
	ts := newTestCockpitSystem(t)
	ts.redis.setFloat(automation.SensorIndicatedAirspeed, 200)
	ts.tick(0)

	err := ts.run(t, types.CmdThrottleEnable)
	if err == nil || !strings.Contains(err.Error(), "Airspeed too high") {
		t.Fatalf("enable error = %v", err)
	}
	if got := ts.Status().LastReport; got != err.Error() {
		t.Errorf("last report = %q, want %q", got, err.Error())
	}
	if len(ts.mirror.reports) != 1 {
		t.Errorf("mirrored reports = %v", ts.mirror.reports)
	}
	if got := testutil.ToFloat64(ts.metrics.Reports); got != 1 {
		t.Errorf("reports metric = %v, want 1", got)
	}
}

func TestUnsupportedVehicleLamp(t *testing.T) {
	ts := newTestCockpitSystem(t)
	ts.redis.setText(automation.SensorVehicleDescription, "Cessna 172")
	ts.tick(0)

	if !ts.panel.lamps[hardware.LampUnsupportedVehicle] {
		t.Error("Expected unsupported vehicle lamp on")
	}
	err := ts.run(t, types.CmdThrottleEnable)
	if !errors.Is(err, automation.ErrUnsupportedVehicle) {
		t.Errorf("enable error = %v, want ErrUnsupportedVehicle", err)
	}
}

// ===== Touchdown motion =====

func TestTouchdownToggle(t *testing.T) {
	ts := newTestCockpitSystem(t)
	ts.tick(0)
	if !ts.panel.lamps[hardware.LampTouchdownEnabled] {
		t.Fatal("Expected touchdown lamp on by default")
	}

	ts.run(t, types.CmdTouchdownToggle)
	if ts.touchdown.Enabled() || ts.panel.lamps[hardware.LampTouchdownEnabled] {
		t.Error("Expected touchdown motion disabled after toggle")
	}

	ts.run(t, types.CmdTouchdownEnable)
	ts.run(t, types.CmdTouchdownEnable)
	if !ts.touchdown.Enabled() || !ts.panel.lamps[hardware.LampTouchdownEnabled] {
		t.Error("Expected touchdown motion enabled")
	}

	ts.run(t, types.CmdTouchdownDisable)
	if ts.touchdown.Enabled() {
		t.Error("Expected touchdown motion disabled")
	}
}

func TestLampsOnlyWrittenOnChange(t *testing.T) {
	ts := newTestCockpitSystem(t)
	ts.tick(0)
	writes := ts.panel.lampWrites
	ts.tick(time.Second)
	ts.tick(time.Second)
	if ts.panel.lampWrites != writes {
		t.Errorf("lamp writes = %d, want %d", ts.panel.lampWrites, writes)
	}
}

func TestLandingPublished(t *testing.T) {
	ts := newTestCockpitSystem(t)
	ts.handleLanding(automation.Landing{Time: t0, DescentRate: 0.4, Amplitude: 0.05})
	if len(ts.redis.publishedLandings) != 0 {
		t.Error("Expected the landing queued, not written on the caller")
	}
	ts.publisher.drain()

	if len(ts.redis.publishedLandings) != 1 {
		t.Errorf("published landings = %v", ts.redis.publishedLandings)
	}
	if got := testutil.CollectAndCount(ts.metrics.DescentRate); got != 1 {
		t.Errorf("descent rate series = %d, want 1", got)
	}
}

func TestSlowMirrorDoesNotDelayTouchdown(t *testing.T) {
	ts := newTestCockpitSystem(t)
	ts.mirror.release = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ts.publisher.run(ctx)

	// runs the machines without flushing, the publisher goroutine delivers
	step := func() {
		ts.clock.Advance(250 * time.Millisecond)
		ts.scheduler.RunDue(ts.clock.Now())
	}
	step()
	ts.redis.setFloat(automation.SensorFlightTime, 10)
	step()
	step()
	if ts.touchdown.State() != fsm.TouchdownWaitingLanding {
		t.Fatalf("state = %s, want %s", ts.touchdown.State(), fsm.TouchdownWaitingLanding)
	}

	ts.redis.setBool(automation.SensorAnyWheelOnGround, true)
	ts.redis.setFloat(automation.SensorVerticalSpeed, -0.5)
	step()

	if ts.touchdown.State() != fsm.TouchdownBounceDown {
		t.Errorf("state = %s, want %s", ts.touchdown.State(), fsm.TouchdownBounceDown)
	}
	calls := ts.redis.snapshotCalls()
	if len(calls) == 0 || calls[len(calls)-1] != "begin "+automation.CommandHeadDown {
		t.Errorf("calls = %v", calls)
	}
	if ts.mirror.landingCount() != 0 {
		t.Fatal("mirror should still be holding the landing")
	}

	close(ts.mirror.release)
	waitFor(t, "mirrored landing", func() bool { return ts.mirror.landingCount() == 1 })
	if got := ts.redis.landings(); got != 1 {
		t.Errorf("published landings = %d, want 1", got)
	}
}

func TestReportQueuedForHostAndMirror(t *testing.T) {
	ts := newTestCockpitSystem(t)

	if err := ts.Report("Brake released"); err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	if got := ts.Status().LastReport; got != "Brake released" {
		t.Errorf("last report = %q", got)
	}
	if len(ts.mirror.reports) != 0 {
		t.Errorf("mirrored reports before flush = %v", ts.mirror.reports)
	}

	ts.publisher.drain()
	if len(ts.mirror.reports) != 1 || ts.mirror.reports[0] != "Brake released" {
		t.Errorf("mirrored reports = %v", ts.mirror.reports)
	}
}

func TestPublisherDropsWhenFull(t *testing.T) {
	p := newPublisher(2, logger.NewLogger(nil, logger.LogLevelNone))
	ran := 0
	for i := 0; i < 5; i++ {
		p.enqueue(func() { ran++ })
	}
	p.drain()

	if ran != 2 {
		t.Errorf("ran = %d, want 2", ran)
	}
	if got := p.dropped.Load(); got != 3 {
		t.Errorf("dropped = %d, want 3", got)
	}
}

// ===== Parking brake =====

func TestParkingBrakeRelease(t *testing.T) {
	ts := newTestCockpitSystem(t)

	if err := ts.run(t, types.CmdParkingBrakeRelease); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	calls := ts.redis.snapshotCalls()
	want := []string{"begin " + automation.CommandBrakesMax, "end " + automation.CommandBrakesMax}
	if len(calls) != 2 || calls[0] != want[0] || calls[1] != want[1] {
		t.Errorf("calls = %v, want %v", calls, want)
	}
	if got := ts.Status().LastReport; got != automation.ReportBrakeReleased {
		t.Errorf("last report = %q", got)
	}
	if got := testutil.ToFloat64(ts.metrics.ActuatorActions.WithLabelValues(machineParkingBrake, automation.CommandBrakesMax, "end")); got != 1 {
		t.Errorf("brake end count = %v, want 1", got)
	}
}

// ===== Session lifecycle =====

func TestStartWithVehiclePresent(t *testing.T) {
	ts := newTestCockpitSystem(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ts.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !ts.panel.initialized || ts.panel.callback == nil {
		t.Error("Expected panel initialized with a callback")
	}
	if !ts.redis.listening || ts.redis.callbacks.LifecycleCallback == nil || ts.redis.callbacks.CommandCallback == nil {
		t.Error("Expected Redis listening with callbacks")
	}
	if ts.Session().ID == "" {
		t.Error("Expected a session for the vehicle already loaded")
	}
	if !ts.redis.hasState("throttle-manager=waiting-user") || !ts.redis.hasState("touchdown-motion=idle") {
		t.Errorf("initial states = %v", ts.redis.publishedStates)
	}
}

func TestLifecycleEvents(t *testing.T) {
	ts := newTestCockpitSystem(t)
	ts.redis.setText(automation.SensorVehicleDescription, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ts.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if ts.Session().ID != "" {
		t.Fatal("Expected no session without a vehicle")
	}

	ts.redis.setText(automation.SensorVehicleDescription, "X-Crafts ERJ 175")
	if err := ts.redis.callbacks.LifecycleCallback(types.VehicleLoaded); err != nil {
		t.Fatalf("loaded event failed: %v", err)
	}
	first := ts.Session().ID
	if first == "" {
		t.Fatal("Expected a session ID after load")
	}
	waitFor(t, "vehicle-loaded state", func() bool {
		return ts.Session().State == string(fsm.StateVehicleLoaded)
	})

	ts.redis.callbacks.LifecycleCallback(types.VehicleLoaded)
	if second := ts.Session().ID; second == "" || second == first {
		t.Errorf("reload kept session %q", second)
	}

	if got := testutil.ToFloat64(ts.metrics.Lifecycle.WithLabelValues(string(types.VehicleLoaded))); got != 2 {
		t.Errorf("loaded events = %v, want 2", got)
	}

	ts.redis.callbacks.LifecycleCallback(types.VehicleUnloaded)
	waitFor(t, "no-vehicle state", func() bool {
		s := ts.Session()
		return s.State == string(fsm.StateNoVehicle) && s.ID == ""
	})

	if err := ts.handleLifecycle(types.LifecycleEvent("plane-exploded")); err == nil {
		t.Error("Expected error for unknown lifecycle event")
	}
}

func TestSessionPublishedOncePerTransition(t *testing.T) {
	ts := newTestCockpitSystem(t)
	ts.redis.setText(automation.SensorVehicleDescription, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ts.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if got := ts.redis.sessions(); len(got) != 0 {
		t.Fatalf("sessions before load = %v", got)
	}

	steps := []struct {
		event types.LifecycleEvent
		state librefsm.StateID
	}{
		{types.VehicleLoaded, fsm.StateVehicleLoaded},
		{types.VehicleLoaded, fsm.StateVehicleLoaded},
		{types.VehicleCrashed, fsm.StateVehicleCrashed},
		{types.VehicleUnloaded, fsm.StateNoVehicle},
	}
	for i, step := range steps {
		if err := ts.handleLifecycle(step.event); err != nil {
			t.Fatalf("%s failed: %v", step.event, err)
		}
		got := ts.redis.sessions()
		if len(got) != i+1 {
			t.Fatalf("after %s published %d sessions, want %d: %v", step.event, len(got), i+1, got)
		}
		last := got[i]
		if last.State != string(step.state) {
			t.Errorf("after %s published state %s, want %s", step.event, last.State, step.state)
		}
		if last != ts.Session() {
			t.Errorf("published %+v, current %+v", last, ts.Session())
		}
	}

	got := ts.redis.sessions()
	if got[0].ID == "" || got[1].ID == got[0].ID {
		t.Errorf("reload kept session: %v", got)
	}
	if got[2].ID != got[1].ID {
		t.Errorf("crash changed session: %v", got)
	}
	if got[3].ID != "" {
		t.Errorf("unload kept session %q", got[3].ID)
	}
}

func TestLifecycleAfterCancelReturns(t *testing.T) {
	ts := newTestCockpitSystem(t)
	ctx, cancel := context.WithCancel(context.Background())

	if err := ts.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	cancel()

	done := make(chan error, 1)
	go func() { done <- ts.handleLifecycle(types.VehicleCrashed) }()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("lifecycle event blocked after cancel")
	}

	ts.Shutdown()
	if !ts.redis.closed {
		t.Error("Expected Redis closed")
	}
}

func TestLifecycleBeforeStart(t *testing.T) {
	ts := newTestCockpitSystem(t)
	if err := ts.handleLifecycle(types.VehicleLoaded); err == nil {
		t.Error("Expected error before the session machine starts")
	}
}

func TestCrashEndsActiveThrottleCommand(t *testing.T) {
	ts := newTestCockpitSystem(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ts.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	ts.tick(0)
	if err := ts.run(t, types.CmdThrottleEnable); err != nil {
		t.Fatalf("enable failed: %v", err)
	}
	// starting runs on the next coarse tick, then throttling-down
	ts.tick(250 * time.Millisecond)
	ts.tick(50 * time.Millisecond)
	if ts.throttle.State() != fsm.ThrottleWaitingIdle {
		t.Fatalf("state = %s, want %s", ts.throttle.State(), fsm.ThrottleWaitingIdle)
	}

	if err := ts.handleLifecycle(types.VehicleCrashed); err != nil {
		t.Fatalf("crash event failed: %v", err)
	}
	ts.tick(50 * time.Millisecond)

	if ts.throttle.State() != fsm.ThrottleWaitingUser {
		t.Errorf("state = %s, want %s", ts.throttle.State(), fsm.ThrottleWaitingUser)
	}
	calls := ts.redis.snapshotCalls()
	if calls[len(calls)-1] != "end "+automation.CommandThrottleDown {
		t.Errorf("calls = %v", calls)
	}
}

// ===== Scheduler integration =====

func TestExecuteRunsOnScheduler(t *testing.T) {
	ts := newTestCockpitSystem(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- ts.Run(ctx) }()

	if err := ts.Execute(ctx, types.CmdThrottleEnable); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got := ts.throttleCtl.Status().State; got != fsm.ThrottleStarting {
		t.Errorf("status state = %s, want %s", got, fsm.ThrottleStarting)
	}
	if err := ts.Execute(ctx, types.CmdThrottleEnable); err == nil {
		t.Error("Expected error for a second enable")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}
	if err := ts.Execute(ctx, types.Command("nope")); err == nil {
		t.Error("Expected error for unknown command")
	}
}

func TestShutdown(t *testing.T) {
	ts := newTestCockpitSystem(t)
	ts.tick(0)
	ts.Shutdown()

	if !ts.panel.cleanedUp || !ts.mirror.closed || !ts.redis.closed {
		t.Error("Expected panel, mirror and Redis released")
	}
	for name, on := range ts.panel.lamps {
		if on {
			t.Errorf("lamp %s left on", name)
		}
	}
}
