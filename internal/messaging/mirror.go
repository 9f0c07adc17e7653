package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	kafkago "github.com/segmentio/kafka-go"

	"cockpit-service/internal/automation"
	"cockpit-service/internal/logger"
)

// MirrorOptions selects the broker the mirror publishes to.
type MirrorOptions struct {
	Backend      string // "mqtt" or "kafka"
	TopicPrefix  string
	MQTTBroker   string
	MQTTClientID string
	KafkaBrokers []string

	// ConnectTimeout bounds the initial broker connect. Zero means
	// DefaultConnectTimeout.
	ConnectTimeout time.Duration
}

const DefaultConnectTimeout = 5 * time.Second

// Mirror copies cockpit events to an MQTT or Kafka broker for dashboards.
// Publishing is best effort and never waits for broker acknowledgement.
type Mirror struct {
	mu       sync.RWMutex
	opts     MirrorOptions
	logger   *logger.Logger
	mqttConn mqtt.Client
	kafkaW   *kafkago.Writer
}

func NewMirror(opts MirrorOptions, l *logger.Logger) *Mirror {
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = "cockpit"
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	return &Mirror{opts: opts, logger: l}
}

// Connect establishes the broker connection.
func (m *Mirror) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.opts.Backend {
	case "mqtt":
		return m.connectMQTT()
	case "kafka":
		return m.connectKafka()
	default:
		return fmt.Errorf("unknown mirror backend: %s", m.opts.Backend)
	}
}

func (m *Mirror) connectMQTT() error {
	opts := mqtt.NewClientOptions().
		AddBroker(m.opts.MQTTBroker).
		SetClientID(m.opts.MQTTClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	// with connect retry the token only completes once a broker answers
	if !token.WaitTimeout(m.opts.ConnectTimeout) {
		client.Disconnect(0)
		return fmt.Errorf("mqtt connect to %s: no answer within %v", m.opts.MQTTBroker, m.opts.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return fmt.Errorf("mqtt connect: %w", err)
	}
	m.mqttConn = client
	m.logger.Infof("Mirroring to MQTT broker %s", m.opts.MQTTBroker)
	return nil
}

func (m *Mirror) connectKafka() error {
	if len(m.opts.KafkaBrokers) == 0 {
		return fmt.Errorf("kafka: no brokers configured")
	}
	m.kafkaW = &kafkago.Writer{
		Addr:         kafkago.TCP(m.opts.KafkaBrokers...),
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
		Async:        true,
	}
	m.logger.Infof("Mirroring to Kafka brokers %v", m.opts.KafkaBrokers)
	return nil
}

// Topic builds a topic name for an event kind. MQTT levels are separated by
// "/", Kafka topic names by ".".
func (m *Mirror) Topic(kind string) string {
	if m.opts.Backend == "kafka" {
		return m.opts.TopicPrefix + "." + kind
	}
	return m.opts.TopicPrefix + "/" + kind
}

func (m *Mirror) publish(kind string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	topic := m.Topic(kind)

	m.mu.RLock()
	defer m.mu.RUnlock()

	switch m.opts.Backend {
	case "mqtt":
		if m.mqttConn == nil || !m.mqttConn.IsConnected() {
			return fmt.Errorf("mqtt not connected")
		}
		token := m.mqttConn.Publish(topic, 1, false, payload)
		select {
		case <-token.Done():
			return token.Error()
		default:
			// delivery continues inside the client
			return nil
		}
	case "kafka":
		if m.kafkaW == nil {
			return fmt.Errorf("kafka writer not initialized")
		}
		return m.kafkaW.WriteMessages(context.Background(), kafkago.Message{Topic: topic, Value: payload})
	default:
		return fmt.Errorf("unknown mirror backend: %s", m.opts.Backend)
	}
}

type reportEvent struct {
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

type stateEvent struct {
	Machine string    `json:"machine"`
	State   string    `json:"state"`
	Time    time.Time `json:"time"`
}

type sessionEvent struct {
	ID    string    `json:"id"`
	State string    `json:"state"`
	Time  time.Time `json:"time"`
}

func (m *Mirror) PublishReport(msg string) error {
	return m.publish("report", reportEvent{Message: msg, Time: time.Now()})
}

func (m *Mirror) PublishMachineState(machine, state string) error {
	return m.publish("state", stateEvent{Machine: machine, State: state, Time: time.Now()})
}

func (m *Mirror) PublishLanding(l automation.Landing) error {
	return m.publish("landing", l)
}

func (m *Mirror) PublishSession(id, state string) error {
	return m.publish("session", sessionEvent{ID: id, State: state, Time: time.Now()})
}

// IsConnected returns whether the broker connection is up.
func (m *Mirror) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch m.opts.Backend {
	case "mqtt":
		return m.mqttConn != nil && m.mqttConn.IsConnected()
	case "kafka":
		return m.kafkaW != nil
	default:
		return false
	}
}

// Close shuts down the broker connection.
func (m *Mirror) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mqttConn != nil {
		m.mqttConn.Disconnect(1000)
		m.mqttConn = nil
	}
	if m.kafkaW != nil {
		if err := m.kafkaW.Close(); err != nil {
			m.logger.Warnf("Failed to close kafka writer: %v", err)
		}
		m.kafkaW = nil
	}
}
