package types

import "testing"

func TestParseCommand(t *testing.T) {
	for _, c := range Commands {
		got, err := ParseCommand(string(c))
		if err != nil {
			t.Fatalf("ParseCommand(%q) failed: %v", c, err)
		}
		if got != c {
			t.Errorf("ParseCommand(%q) = %q", c, got)
		}
	}

	if _, err := ParseCommand("throttle-manager:launch"); err == nil {
		t.Error("Expected error for unknown command")
	}
}

func TestParseLifecycleEvent(t *testing.T) {
	if ev, err := ParseLifecycleEvent("plane-crashed"); err != nil || ev != VehicleCrashed {
		t.Errorf("ParseLifecycleEvent(plane-crashed) = %q, %v", ev, err)
	}
	if _, err := ParseLifecycleEvent("plane-exploded"); err == nil {
		t.Error("Expected error for unknown event")
	}
}
