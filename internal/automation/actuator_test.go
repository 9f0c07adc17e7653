package automation

import (
	"errors"
	"testing"
)

func TestActuatorHandleSingleActive(t *testing.T) {
	host := newFakeHost()
	h := NewActuatorHandle(host)

	if err := h.Begin(CommandHeadDown); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	err := h.Begin(CommandHeadUp)
	if !errors.Is(err, ErrActuatorBusy) {
		t.Fatalf("second Begin() error = %v, want ErrActuatorBusy", err)
	}
	if h.Active() != CommandHeadDown {
		t.Errorf("Active() = %q, want %q", h.Active(), CommandHeadDown)
	}
	if err := h.End(); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if err := h.End(); err != nil {
		t.Errorf("End() while idle error = %v, want nil", err)
	}
	if host.activeCount() != 0 {
		t.Errorf("host still has %d active commands", host.activeCount())
	}
}

func TestActuatorHandleObserverAndPulse(t *testing.T) {
	host := newFakeHost()
	h := NewActuatorHandle(host)

	var events []string
	h.SetObserver(func(cmd string, active bool) {
		if active {
			events = append(events, "+"+cmd)
		} else {
			events = append(events, "-"+cmd)
		}
	})

	if err := h.Pulse(CommandBrakesMax); err != nil {
		t.Fatalf("Pulse() error = %v", err)
	}
	want := []string{"+" + CommandBrakesMax, "-" + CommandBrakesMax}
	if len(events) != 2 || events[0] != want[0] || events[1] != want[1] {
		t.Errorf("events = %v, want %v", events, want)
	}
}

func TestActuatorHandleBeginFailureLeavesIdle(t *testing.T) {
	host := newFakeHost()
	host.failOn = CommandHeadDown
	h := NewActuatorHandle(host)

	if err := h.Begin(CommandHeadDown); err == nil {
		t.Fatal("Begin() succeeded, want host error")
	}
	if h.Active() != "" {
		t.Errorf("Active() = %q after failed begin", h.Active())
	}
}

func TestResolveReportsFirstMissing(t *testing.T) {
	host := newFakeHost()
	host.floats["a"] = 1
	host.commands["c"] = true

	setup := Resolve(host, host, Requirements{Sensors: []string{"a", "b"}, Commands: []string{"c", "d"}})
	if setup.Ready() {
		t.Fatal("Ready() = true with missing identifiers")
	}
	if setup.Missing != "b" {
		t.Errorf("Missing = %q, want b", setup.Missing)
	}
	if !errors.Is(setup.Err(), ErrNotReady) {
		t.Errorf("Err() = %v, want ErrNotReady", setup.Err())
	}

	if (Setup{}).Ready() {
		t.Error("zero Setup is ready")
	}
	if !errors.Is(UnsupportedSetup("cessna").Err(), ErrUnsupportedVehicle) {
		t.Error("UnsupportedSetup does not wrap ErrUnsupportedVehicle")
	}
}
