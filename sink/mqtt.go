// Package sink implements registry sinks for MQTT and Kafka.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/st-keller/librefollow/component"
)

// mqttClient is the part of mqtt.Client used by MQTT.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTOptions configures NewMQTT.
type MQTTOptions struct {
	Broker   string // e.g. tcp://homeassistant.local:1883
	ClientID string
	Topic    string
	Username string
	Password string
	QoS      byte
	Retained bool
	Timeout  time.Duration
}

// MQTT publishes components as JSON to one topic.
type MQTT struct {
	client   mqttClient
	topic    string
	qos      byte
	retained bool
}

// NewMQTT connects to the broker.
func NewMQTT(opts MQTTOptions) (*MQTT, error) {
	if opts.Broker == "" || opts.Topic == "" {
		return nil, fmt.Errorf("mqtt broker and topic required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	o := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(opts.Timeout)
	if opts.Username != "" {
		o.SetUsername(opts.Username)
		o.SetPassword(opts.Password)
	}

	client := mqtt.NewClient(o)
	token := client.Connect()
	if !token.WaitTimeout(opts.Timeout) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", opts.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", opts.Broker, err)
	}
	return newMQTT(client, opts.Topic, opts.QoS, opts.Retained), nil
}

func newMQTT(client mqttClient, topic string, qos byte, retained bool) *MQTT {
	return &MQTT{client: client, topic: topic, qos: qos, retained: retained}
}

// Publish sends c and waits for the broker acknowledgement or ctx.
func (m *MQTT) Publish(ctx context.Context, c component.Component) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal component: %w", err)
	}
	token := m.client.Publish(m.topic, m.qos, m.retained, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disconnects, allowing 250ms for in-flight work.
func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}
