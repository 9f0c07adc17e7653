package messaging

import (
	"testing"
	"time"

	"cockpit-service/internal/logger"
)

func TestMirrorTopics(t *testing.T) {
	l := logger.NewLogger(nil, logger.LogLevelNone)

	m := NewMirror(MirrorOptions{Backend: "mqtt"}, l)
	if got := m.Topic("report"); got != "cockpit/report" {
		t.Errorf("mqtt topic = %q", got)
	}

	k := NewMirror(MirrorOptions{Backend: "kafka", TopicPrefix: "sim1"}, l)
	if got := k.Topic("landing"); got != "sim1.landing" {
		t.Errorf("kafka topic = %q", got)
	}
}

func TestMQTTConnectGivesUpOnUnreachableBroker(t *testing.T) {
	l := logger.NewLogger(nil, logger.LogLevelNone)

	m := NewMirror(MirrorOptions{
		Backend:        "mqtt",
		MQTTBroker:     "tcp://127.0.0.1:1",
		MQTTClientID:   "cockpit-test",
		ConnectTimeout: 200 * time.Millisecond,
	}, l)

	done := make(chan error, 1)
	go func() { done <- m.Connect() }()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Connect() succeeded against a closed port")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Connect() did not return for an unreachable broker")
	}
	if m.IsConnected() {
		t.Error("IsConnected() = true after a failed connect")
	}
	if err := m.PublishReport("Brake released"); err == nil {
		t.Error("PublishReport() succeeded after a failed connect")
	}
	m.Close()
}

func TestMirrorNotConnected(t *testing.T) {
	l := logger.NewLogger(nil, logger.LogLevelNone)

	m := NewMirror(MirrorOptions{Backend: "mqtt"}, l)
	if err := m.PublishReport("Brake released"); err == nil {
		t.Error("PublishReport() succeeded without a connection")
	}
	if m.IsConnected() {
		t.Error("IsConnected() = true before Connect")
	}

	if err := NewMirror(MirrorOptions{Backend: "carrier-pigeon"}, l).Connect(); err == nil {
		t.Error("Connect() accepted an unknown backend")
	}
	if err := NewMirror(MirrorOptions{Backend: "kafka"}, l).Connect(); err == nil {
		t.Error("Connect() accepted kafka without brokers")
	}
}

func TestMirrorKafkaWriter(t *testing.T) {
	l := logger.NewLogger(nil, logger.LogLevelNone)
	m := NewMirror(MirrorOptions{Backend: "kafka", KafkaBrokers: []string{"localhost:9092"}}, l)
	if err := m.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !m.IsConnected() {
		t.Error("IsConnected() = false after Connect")
	}
	m.Close()
	if m.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
}

func TestTriggerCommand(t *testing.T) {
	tests := []struct {
		key, value string
		want       string
		wantErr    bool
	}{
		{"cockpit:throttle-manager", "enable", "throttle-manager:enable", false},
		{"cockpit:throttle-manager", "stop\n", "throttle-manager:stop", false},
		{"cockpit:touchdown-motion", "toggle", "touchdown-motion:toggle", false},
		{"cockpit:parking-brake", "release", "parking-brake:release", false},
		{"cockpit:parking-brake", "engage", "", true},
	}
	for _, tt := range tests {
		got, err := TriggerCommand(tt.key, tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("TriggerCommand(%q, %q) error = %v", tt.key, tt.value, err)
			continue
		}
		if string(got) != tt.want {
			t.Errorf("TriggerCommand(%q, %q) = %q, want %q", tt.key, tt.value, got, tt.want)
		}
	}
}
