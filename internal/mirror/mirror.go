package mirror

import (
	"fmt"
	"log/slog"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Config selects the broker and topic. An empty Broker disables mirroring.
type Config struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Enabled reports whether a broker is configured.
func (c Config) Enabled() bool { return c.Broker != "" }

// Publisher sends one payload per call to the configured topic.
type Publisher interface {
	Publish(payload []byte) error
	Close() error
}

// New connects to the broker described by cfg. retained controls the MQTT
// retain flag on every publish. When cfg has no broker a no-op Publisher is
// returned.
func New(cfg Config, retained bool) (Publisher, error) {
	if !cfg.Enabled() {
		return Nop{}, nil
	}
	opts := mqtt.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mirror: mqtt connect %s: %w", cfg.Broker, token.Error())
	}
	slog.Info("mirror: connected", "broker", cfg.Broker, "topic", cfg.Topic)
	return newMQTT(client, cfg.Topic, retained), nil
}

// MQTTPublisher publishes to a single topic at QoS 0.
type MQTTPublisher struct {
	client   mqtt.Client
	topic    string
	retained bool
}

func newMQTT(client mqtt.Client, topic string, retained bool) *MQTTPublisher {
	return &MQTTPublisher{client: client, topic: topic, retained: retained}
}

// Publish implements Publisher.
func (m *MQTTPublisher) Publish(payload []byte) error {
	if m.client == nil {
		return fmt.Errorf("mirror: mqtt client not connected")
	}
	token := m.client.Publish(m.topic, 0, m.retained, payload)
	token.Wait()
	return token.Error()
}

// Close disconnects from the broker.
func (m *MQTTPublisher) Close() error {
	if m.client != nil {
		m.client.Disconnect(250)
	}
	return nil
}

// Nop discards every payload.
type Nop struct{}

func (Nop) Publish([]byte) error { return nil }
func (Nop) Close() error         { return nil }
